package ingest

// run.go drives one ingestion operation end to end: a CSV upload processed
// as a batch, or a webhook delivery processed as a one-row run. Each run is
// a single sequential worker; concurrent runs are made safe by the storage
// uniqueness constraint on (org, dedupe hash), not by locking here.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// rowOutcome classifies the result of processing one record. Making the
// per-row result explicit keeps the fail-open policy visible: only
// rowFatal ever stops the loop.
type rowOutcome int

const (
	rowValid rowOutcome = iota
	rowInvalid
	rowFatal
)

// Coordinator orchestrates ingestion runs against a Repository.
type Coordinator struct {
	repo Repository
	now  func() time.Time
}

// NewCoordinator creates a Coordinator backed by repo.
func NewCoordinator(repo Repository) *Coordinator {
	return &Coordinator{repo: repo, now: time.Now}
}

// IngestCSV processes one uploaded CSV file for a connection and returns
// the completed run record.
//
// Row zero is the header; every later row is paired with it to build the
// flat field map (missing trailing cells become empty strings). A file
// without a header and at least one data row fails the run before any row
// work. Individual bad rows never abort the run; they are absorbed into
// the rows_invalid counter.
//
// The returned error covers bookkeeping failures only (the run record
// itself could not be written). A run that completed with status failed is
// returned with a nil error.
func (c *Coordinator) IngestCSV(ctx context.Context, orgID, connectionID uuid.UUID, text string) (IngestionRun, error) {
	run, err := c.startRun(ctx, orgID, connectionID)
	if err != nil {
		return run, err
	}

	rows := ParseGrid(text)
	if len(rows) < 2 {
		return c.fail(ctx, run, "csv input requires a header row and at least one data row")
	}

	header := rows[0]
	def, hasMapping, err := c.lookupMapping(ctx, orgID, connectionID)
	if errors.Is(err, ErrStoreUnavailable) {
		return c.fail(ctx, run, fmt.Sprintf("load mapping definition: %v", err))
	}

	for idx, row := range rows[1:] {
		// A lone empty cell is a blank line, not a record.
		if len(row) == 1 && row[0] == "" {
			continue
		}

		run.RowsIn++

		data := make(map[string]any, len(header))
		for j, name := range header {
			if j < len(row) {
				data[name] = row[j]
			} else {
				data[name] = ""
			}
		}
		payload := RowPayload{Data: data, RowIndex: idx}

		outcome, rowErr := c.ingestRecord(ctx, &run, EventCSVRow, payload, def, hasMapping)
		switch outcome {
		case rowValid:
			run.RowsValid++
		case rowInvalid:
			run.RowsInvalid++
		case rowFatal:
			// Keep rows_in = rows_valid + rows_invalid before aborting.
			run.RowsInvalid++
			return c.fail(ctx, run, fmt.Sprintf("storage unavailable at row %d: %v", idx, rowErr))
		}
	}

	return c.complete(ctx, run)
}

// IngestWebhook processes one webhook delivery as the single-record case
// of the CSV algorithm: the flat JSON body becomes the field map of a
// synthesized one-row run. eventType tags the stored raw event; pass
// EventWebhook unless the delivery names its own type.
func (c *Coordinator) IngestWebhook(ctx context.Context, orgID, connectionID uuid.UUID, eventType string, body map[string]any) (IngestionRun, error) {
	run, err := c.startRun(ctx, orgID, connectionID)
	if err != nil {
		return run, err
	}

	if body == nil {
		return c.fail(ctx, run, "webhook payload must be a flat JSON object")
	}
	if eventType == "" {
		eventType = EventWebhook
	}

	def, hasMapping, err := c.lookupMapping(ctx, orgID, connectionID)
	if errors.Is(err, ErrStoreUnavailable) {
		return c.fail(ctx, run, fmt.Sprintf("load mapping definition: %v", err))
	}

	run.RowsIn = 1
	payload := RowPayload{Data: body, RowIndex: 0}

	outcome, rowErr := c.ingestRecord(ctx, &run, eventType, payload, def, hasMapping)
	switch outcome {
	case rowValid:
		run.RowsValid++
	case rowInvalid:
		run.RowsInvalid++
	case rowFatal:
		run.RowsInvalid++
		return c.fail(ctx, run, fmt.Sprintf("storage unavailable: %v", rowErr))
	}

	return c.complete(ctx, run)
}

// ingestRecord runs the per-record pipeline: hash, persist raw event,
// normalize, persist metric value. Every failure mode short of storage
// being down resolves to rowInvalid.
func (c *Coordinator) ingestRecord(ctx context.Context, run *IngestionRun, eventType string, payload RowPayload, def MappingDefinition, hasMapping bool) (rowOutcome, error) {
	event := RawEvent{
		ID:           uuid.New(),
		OrgID:        run.OrgID,
		ConnectionID: run.ConnectionID,
		EventType:    eventType,
		Payload:      payload,
		DedupeHash:   DedupeHash(run.OrgID, &run.ConnectionID, eventType, payload),
		ReceivedAt:   c.now().UTC(),
	}

	switch err := c.repo.InsertRawEvent(ctx, event); {
	case errors.Is(err, ErrStoreUnavailable):
		return rowFatal, err
	case errors.Is(err, ErrDuplicateEvent):
		// Already ingested; skip quietly.
		return rowInvalid, nil
	case err != nil:
		slog.Warn("raw event insert failed",
			"run_id", run.ID, "row_index", payload.RowIndex, "error", err)
		return rowInvalid, nil
	}

	if !hasMapping {
		// Unmapped is a valid state for a connection awaiting
		// configuration; the raw event is kept for later replay.
		return rowInvalid, nil
	}

	value, ok := Normalize(def, payload, c.now())
	if !ok {
		return rowInvalid, nil
	}
	value.OrgID = run.OrgID
	value.ConnectionID = run.ConnectionID
	value.RawEventID = event.ID

	switch err := c.repo.InsertMetricValue(ctx, *value); {
	case errors.Is(err, ErrStoreUnavailable):
		return rowFatal, err
	case err != nil:
		slog.Warn("metric value insert failed",
			"run_id", run.ID, "row_index", payload.RowIndex, "error", err)
		return rowInvalid, nil
	}

	return rowValid, nil
}

// lookupMapping fetches the connection's mapping once per run. A missing
// mapping is not an error; every row simply counts invalid until an
// administrator configures one.
func (c *Coordinator) lookupMapping(ctx context.Context, orgID, connectionID uuid.UUID) (MappingDefinition, bool, error) {
	def, err := c.repo.GetMappingDefinition(ctx, orgID, connectionID)
	switch {
	case errors.Is(err, ErrMappingNotFound):
		return MappingDefinition{}, false, nil
	case errors.Is(err, ErrStoreUnavailable):
		return MappingDefinition{}, false, err
	case err != nil:
		slog.Warn("mapping lookup failed, treating connection as unmapped", "error", err)
		return MappingDefinition{}, false, nil
	}
	return def, true, nil
}

func (c *Coordinator) startRun(ctx context.Context, orgID, connectionID uuid.UUID) (IngestionRun, error) {
	run := IngestionRun{
		ID:           uuid.New(),
		OrgID:        orgID,
		ConnectionID: connectionID,
		Status:       RunRunning,
		StartedAt:    c.now().UTC(),
	}
	if err := c.repo.CreateRun(ctx, run); err != nil {
		return run, fmt.Errorf("create ingestion run: %w", err)
	}
	return run, nil
}

// complete writes the run's single terminal update with status success.
func (c *Coordinator) complete(ctx context.Context, run IngestionRun) (IngestionRun, error) {
	run.Status = RunSuccess
	finished := c.now().UTC()
	run.FinishedAt = &finished

	if err := c.repo.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("finalize ingestion run: %w", err)
	}

	slog.Info("ingestion run complete",
		"run_id", run.ID,
		"connection_id", run.ConnectionID,
		"rows_in", run.RowsIn,
		"rows_valid", run.RowsValid,
		"rows_invalid", run.RowsInvalid,
	)
	return run, nil
}

// fail writes the run's single terminal update with status failed and a
// descriptive message.
func (c *Coordinator) fail(ctx context.Context, run IngestionRun, msg string) (IngestionRun, error) {
	run.Status = RunFailed
	run.ErrorMessage = &msg
	finished := c.now().UTC()
	run.FinishedAt = &finished

	if err := c.repo.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("finalize ingestion run: %w", err)
	}

	slog.Warn("ingestion run failed",
		"run_id", run.ID,
		"connection_id", run.ConnectionID,
		"rows_in", run.RowsIn,
		"error", msg,
	)
	return run, nil
}
