package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clasak/compassiq/internal/ingest"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implements ingest.Repository on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store backed by pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate applies the schema idempotently.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// classify maps driver errors onto the repository's sentinel errors.
// Unique violations become ErrDuplicateEvent; connection-level failures
// become ErrStoreUnavailable so the coordinator fails the run instead of
// counting every remaining row invalid.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ingest.ErrDuplicateEvent
		}
		// Class 08: connection exception. Class 53: insufficient
		// resources. Class 57: operator intervention (shutdown).
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57"):
			return fmt.Errorf("%w: %v", ingest.ErrStoreUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", ingest.ErrStoreUnavailable, err)
	}

	return err
}

func (p *Postgres) InsertRawEvent(ctx context.Context, event ingest.RawEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO raw_events (id, org_id, connection_id, event_type, payload, dedupe_hash, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.OrgID, event.ConnectionID, event.EventType, payload, event.DedupeHash, event.ReceivedAt,
	)
	return classify(err)
}

func (p *Postgres) InsertMetricValue(ctx context.Context, value ingest.MetricValue) error {
	valueNum := pgtype.Float8{}
	if value.ValueNum != nil {
		valueNum = pgtype.Float8{Float64: *value.ValueNum, Valid: true}
	}
	valueText := pgtype.Text{}
	if value.ValueText != nil {
		valueText = pgtype.Text{String: *value.ValueText, Valid: true}
	}
	source := pgtype.Text{}
	if value.Source != nil {
		source = pgtype.Text{String: *value.Source, Valid: true}
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO metric_values (id, org_id, connection_id, raw_event_id, metric_key, occurred_on, value_num, value_text, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), value.OrgID, value.ConnectionID, value.RawEventID, value.MetricKey,
		pgtype.Date{Time: value.OccurredOn, Valid: true}, valueNum, valueText, source,
	)
	return classify(err)
}

func (p *Postgres) GetMappingDefinition(ctx context.Context, orgID, connectionID uuid.UUID) (ingest.MappingDefinition, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT definition FROM mapping_definitions
		WHERE org_id = $1 AND connection_id = $2 AND target = $3`,
		orgID, connectionID, ingest.MappingTarget,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.MappingDefinition{}, ingest.ErrMappingNotFound
	}
	if err != nil {
		return ingest.MappingDefinition{}, classify(err)
	}

	return ingest.DecodeMappingDefinition(raw)
}

func (p *Postgres) SaveMappingDefinition(ctx context.Context, orgID, connectionID uuid.UUID, def ingest.MappingDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode mapping definition: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO mapping_definitions (org_id, connection_id, target, definition, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (org_id, connection_id, target)
		DO UPDATE SET definition = EXCLUDED.definition, updated_at = now()`,
		orgID, connectionID, ingest.MappingTarget, raw,
	)
	return classify(err)
}

func (p *Postgres) GetConnection(ctx context.Context, connectionID uuid.UUID) (ingest.SourceConnection, error) {
	conn := ingest.SourceConnection{ID: connectionID}
	err := p.pool.QueryRow(ctx, `
		SELECT org_id, type, token_hash FROM source_connections WHERE id = $1`,
		connectionID,
	).Scan(&conn.OrgID, &conn.Type, &conn.TokenHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.SourceConnection{}, ingest.ErrConnectionNotFound
	}
	if err != nil {
		return ingest.SourceConnection{}, classify(err)
	}
	return conn, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run ingest.IngestionRun) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ingestion_runs (id, org_id, connection_id, status, rows_in, rows_valid, rows_invalid, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.OrgID, run.ConnectionID, run.Status, run.RowsIn, run.RowsValid, run.RowsInvalid, run.StartedAt,
	)
	return classify(err)
}

func (p *Postgres) UpdateRun(ctx context.Context, run ingest.IngestionRun) error {
	finished := pgtype.Timestamptz{}
	if run.FinishedAt != nil {
		finished = pgtype.Timestamptz{Time: *run.FinishedAt, Valid: true}
	}
	errMsg := pgtype.Text{}
	if run.ErrorMessage != nil {
		errMsg = pgtype.Text{String: *run.ErrorMessage, Valid: true}
	}

	_, err := p.pool.Exec(ctx, `
		UPDATE ingestion_runs
		SET status = $2, rows_in = $3, rows_valid = $4, rows_invalid = $5, finished_at = $6, error_message = $7
		WHERE id = $1`,
		run.ID, run.Status, run.RowsIn, run.RowsValid, run.RowsInvalid, finished, errMsg,
	)
	return classify(err)
}

func (p *Postgres) GetRun(ctx context.Context, id uuid.UUID) (ingest.IngestionRun, error) {
	run := ingest.IngestionRun{ID: id}
	var finished pgtype.Timestamptz
	var errMsg pgtype.Text

	err := p.pool.QueryRow(ctx, `
		SELECT org_id, connection_id, status, rows_in, rows_valid, rows_invalid, started_at, finished_at, error_message
		FROM ingestion_runs WHERE id = $1`,
		id,
	).Scan(&run.OrgID, &run.ConnectionID, &run.Status, &run.RowsIn, &run.RowsValid, &run.RowsInvalid,
		&run.StartedAt, &finished, &errMsg)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.IngestionRun{}, ingest.ErrRunNotFound
	}
	if err != nil {
		return ingest.IngestionRun{}, classify(err)
	}

	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if errMsg.Valid {
		s := errMsg.String
		run.ErrorMessage = &s
	}
	return run, nil
}
