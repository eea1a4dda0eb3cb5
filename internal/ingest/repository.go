package ingest

// repository.go declares the storage contract the pipeline depends on.
// Implementations live in internal/store; the pipeline never sees SQL.

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors implementations use to classify storage outcomes.
var (
	// ErrDuplicateEvent reports a raw event whose (org, dedupe hash) pair
	// is already stored. The coordinator treats it as "already ingested,
	// skip", never as a failure.
	ErrDuplicateEvent = errors.New("raw event already ingested")

	// ErrMappingNotFound reports that no mapping definition is configured
	// for the connection.
	ErrMappingNotFound = errors.New("mapping definition not found")

	// ErrConnectionNotFound reports an unknown source connection.
	ErrConnectionNotFound = errors.New("source connection not found")

	// ErrRunNotFound reports an unknown ingestion run.
	ErrRunNotFound = errors.New("ingestion run not found")

	// ErrStoreUnavailable reports that storage is down, not a transient
	// per-row problem. The coordinator fails the whole run on it rather
	// than reporting every row invalid.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Repository is the persistence boundary of the pipeline. Implementations
// own timeouts and retries; the pipeline only classifies the errors they
// return.
type Repository interface {
	// InsertRawEvent stores one raw event, returning ErrDuplicateEvent if
	// an event with the same (org, dedupe hash) already exists.
	InsertRawEvent(ctx context.Context, event RawEvent) error

	// InsertMetricValue stores one normalized metric value.
	InsertMetricValue(ctx context.Context, value MetricValue) error

	// GetMappingDefinition returns the mapping for a connection, or
	// ErrMappingNotFound.
	GetMappingDefinition(ctx context.Context, orgID, connectionID uuid.UUID) (MappingDefinition, error)

	// SaveMappingDefinition creates or replaces the connection's mapping.
	SaveMappingDefinition(ctx context.Context, orgID, connectionID uuid.UUID, def MappingDefinition) error

	// GetConnection returns the source connection, or ErrConnectionNotFound.
	GetConnection(ctx context.Context, connectionID uuid.UUID) (SourceConnection, error)

	// CreateRun stores a new run in its initial state.
	CreateRun(ctx context.Context, run IngestionRun) error

	// UpdateRun writes the run's terminal state. Called exactly once per run.
	UpdateRun(ctx context.Context, run IngestionRun) error

	// GetRun returns a run by id, or ErrRunNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (IngestionRun, error)
}

// SourceConnection is a configured external data source. The pipeline only
// reads it; provisioning belongs to the admin surface.
type SourceConnection struct {
	ID    uuid.UUID      `json:"id"`
	OrgID uuid.UUID      `json:"org_id"`
	Type  ConnectionType `json:"type"`

	// TokenHash is the bcrypt hash of the webhook bearer token. Empty for
	// CSV connections.
	TokenHash string `json:"-"`
}

// VerifyToken checks a presented bearer token against the stored hash.
func (c SourceConnection) VerifyToken(token string) bool {
	if c.TokenHash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.TokenHash), []byte(token)) == nil
}

// HashToken derives the stored form of a webhook bearer token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
