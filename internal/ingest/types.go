package ingest

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags the origin of a raw event.
const (
	EventCSVRow  = "csv_row"
	EventWebhook = "webhook_event"
)

// ConnectionType declares how a source connection delivers data.
type ConnectionType string

const (
	ConnectionCSV     ConnectionType = "csv"
	ConnectionWebhook ConnectionType = "webhook"
)

// RowPayload is the validated shape of every raw-event payload: a flat
// field map plus the zero-based position of the record within its batch.
// Webhook deliveries use row index 0.
type RowPayload struct {
	Data     map[string]any `json:"data"`
	RowIndex int            `json:"row_index"`
}

// RawEvent is one ingested unit before normalization. Events are created
// once and never mutated; (OrgID, DedupeHash) is unique per organization.
type RawEvent struct {
	ID           uuid.UUID  `json:"id"`
	OrgID        uuid.UUID  `json:"org_id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	EventType    string     `json:"event_type"`
	Payload      RowPayload `json:"payload"`
	DedupeHash   string     `json:"dedupe_hash"`
	ReceivedAt   time.Time  `json:"received_at"`
}

// MetricValue is the canonical output record of the pipeline: one value of
// one metric series on one calendar date. ValueNum and ValueText are never
// both nil; a record with neither is a normalization failure, not a value.
type MetricValue struct {
	OrgID        uuid.UUID `json:"org_id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	RawEventID   uuid.UUID `json:"raw_event_id"`
	MetricKey    string    `json:"metric_key"`
	OccurredOn   time.Time `json:"occurred_on"`
	ValueNum     *float64  `json:"value_num"`
	ValueText    *string   `json:"value_text"`
	Source       *string   `json:"source"`
}

// RunStatus is the lifecycle state of an ingestion run. Transitions only
// move forward: running to exactly one of the terminal states.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// IngestionRun is the bookkeeping record for one ingestion operation.
// At completion RowsIn == RowsValid + RowsInvalid, and FinishedAt is
// non-nil exactly when Status is terminal.
type IngestionRun struct {
	ID           uuid.UUID  `json:"id"`
	OrgID        uuid.UUID  `json:"org_id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	Status       RunStatus  `json:"status"`
	RowsIn       int        `json:"rows_in"`
	RowsValid    int        `json:"rows_valid"`
	RowsInvalid  int        `json:"rows_invalid"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	ErrorMessage *string    `json:"error_message"`
}
