package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clasak/compassiq/internal/ingest"
)

func TestMemory_InsertRawEvent_DuplicateHash(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	orgID := uuid.New()

	event := ingest.RawEvent{
		ID:         uuid.New(),
		OrgID:      orgID,
		EventType:  ingest.EventCSVRow,
		DedupeHash: "aabbcc",
	}
	if err := m.InsertRawEvent(ctx, event); err != nil {
		t.Fatalf("first insert error = %v", err)
	}

	// Same org and hash with a fresh ID is still a duplicate.
	event.ID = uuid.New()
	if err := m.InsertRawEvent(ctx, event); !errors.Is(err, ingest.ErrDuplicateEvent) {
		t.Errorf("second insert error = %v, want ErrDuplicateEvent", err)
	}
	if m.RawEventCount() != 1 {
		t.Errorf("RawEventCount() = %d, want 1", m.RawEventCount())
	}
}

func TestMemory_InsertRawEvent_SameHashDifferentOrg(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		event := ingest.RawEvent{
			ID:         uuid.New(),
			OrgID:      uuid.New(),
			EventType:  ingest.EventWebhook,
			DedupeHash: "aabbcc",
		}
		if err := m.InsertRawEvent(ctx, event); err != nil {
			t.Fatalf("insert %d error = %v (dedupe is scoped per org)", i, err)
		}
	}
	if m.RawEventCount() != 2 {
		t.Errorf("RawEventCount() = %d, want 2", m.RawEventCount())
	}
}

func TestMemory_MappingRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	orgID, connID := uuid.New(), uuid.New()

	if _, err := m.GetMappingDefinition(ctx, orgID, connID); !errors.Is(err, ingest.ErrMappingNotFound) {
		t.Fatalf("GetMappingDefinition() before save error = %v, want ErrMappingNotFound", err)
	}

	def := ingest.MappingDefinition{
		Version:    1,
		Target:     "metric_values",
		MetricKey:  "signups",
		OccurredOn: ingest.OccurredOnRule{Mode: ingest.ModeToday},
		ValueNum:   &ingest.FieldRef{Field: "count"},
	}
	if err := m.SaveMappingDefinition(ctx, orgID, connID, def); err != nil {
		t.Fatalf("SaveMappingDefinition() error = %v", err)
	}

	got, err := m.GetMappingDefinition(ctx, orgID, connID)
	if err != nil {
		t.Fatalf("GetMappingDefinition() error = %v", err)
	}
	if got.MetricKey != "signups" || got.ValueNum == nil || got.ValueNum.Field != "count" {
		t.Errorf("GetMappingDefinition() = %+v", got)
	}

	// The mapping is scoped to (org, connection), not connection alone.
	if _, err := m.GetMappingDefinition(ctx, uuid.New(), connID); !errors.Is(err, ingest.ErrMappingNotFound) {
		t.Errorf("cross-org lookup error = %v, want ErrMappingNotFound", err)
	}
}

func TestMemory_SaveMappingDefinition_Replaces(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	orgID, connID := uuid.New(), uuid.New()

	first := ingest.MappingDefinition{
		Version:    1,
		Target:     "metric_values",
		MetricKey:  "revenue",
		OccurredOn: ingest.OccurredOnRule{Mode: ingest.ModeToday},
		ValueNum:   &ingest.FieldRef{Field: "amount"},
	}
	second := first
	second.MetricKey = "mrr"

	if err := m.SaveMappingDefinition(ctx, orgID, connID, first); err != nil {
		t.Fatalf("first save error = %v", err)
	}
	if err := m.SaveMappingDefinition(ctx, orgID, connID, second); err != nil {
		t.Fatalf("second save error = %v", err)
	}

	got, err := m.GetMappingDefinition(ctx, orgID, connID)
	if err != nil {
		t.Fatalf("GetMappingDefinition() error = %v", err)
	}
	if got.MetricKey != "mrr" {
		t.Errorf("MetricKey = %q, want replacement to win", got.MetricKey)
	}
}

func TestMemory_Connections(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetConnection(ctx, uuid.New()); !errors.Is(err, ingest.ErrConnectionNotFound) {
		t.Fatalf("GetConnection() error = %v, want ErrConnectionNotFound", err)
	}

	conn := ingest.SourceConnection{
		ID:    uuid.New(),
		OrgID: uuid.New(),
		Type:  ingest.ConnectionCSV,
	}
	m.AddConnection(conn)

	got, err := m.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if got.OrgID != conn.OrgID || got.Type != ingest.ConnectionCSV {
		t.Errorf("GetConnection() = %+v", got)
	}
}

func TestMemory_RunLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetRun(ctx, uuid.New()); !errors.Is(err, ingest.ErrRunNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrRunNotFound", err)
	}

	run := ingest.IngestionRun{
		ID:        uuid.New(),
		OrgID:     uuid.New(),
		Status:    ingest.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := m.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	finished := time.Now().UTC()
	run.Status = ingest.RunSuccess
	run.RowsIn, run.RowsValid = 3, 3
	run.FinishedAt = &finished
	if err := m.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}

	got, err := m.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != ingest.RunSuccess || got.RowsValid != 3 || got.FinishedAt == nil {
		t.Errorf("GetRun() = %+v", got)
	}
}

func TestMemory_MetricValuesCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	num := 12.5
	value := ingest.MetricValue{
		OrgID:      uuid.New(),
		MetricKey:  "revenue",
		OccurredOn: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ValueNum:   &num,
	}
	if err := m.InsertMetricValue(ctx, value); err != nil {
		t.Fatalf("InsertMetricValue() error = %v", err)
	}

	got := m.MetricValues()
	if len(got) != 1 {
		t.Fatalf("MetricValues() len = %d, want 1", len(got))
	}
	got[0].MetricKey = "tampered"
	if m.MetricValues()[0].MetricKey != "revenue" {
		t.Error("MetricValues() must return a copy, not the backing slice")
	}
}
