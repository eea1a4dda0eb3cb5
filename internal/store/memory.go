// Package store provides Repository implementations for the ingestion
// pipeline: a Postgres store for production and an in-memory store for
// tests and local development.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clasak/compassiq/internal/ingest"
)

// Memory is an in-memory Repository. Safe for concurrent use; contents are
// lost on restart. It mirrors the Postgres store's semantics, including
// the uniqueness constraint on (org, dedupe hash).
type Memory struct {
	mu          sync.RWMutex
	events      map[string]ingest.RawEvent // keyed by org + dedupe hash
	values      []ingest.MetricValue
	mappings    map[string]ingest.MappingDefinition // keyed by org + connection
	connections map[uuid.UUID]ingest.SourceConnection
	runs        map[uuid.UUID]ingest.IngestionRun
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:      make(map[string]ingest.RawEvent),
		mappings:    make(map[string]ingest.MappingDefinition),
		connections: make(map[uuid.UUID]ingest.SourceConnection),
		runs:        make(map[uuid.UUID]ingest.IngestionRun),
	}
}

func eventKey(orgID uuid.UUID, hash string) string {
	return orgID.String() + ":" + hash
}

func mappingKey(orgID, connectionID uuid.UUID) string {
	return orgID.String() + ":" + connectionID.String()
}

func (m *Memory) InsertRawEvent(_ context.Context, event ingest.RawEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := eventKey(event.OrgID, event.DedupeHash)
	if _, exists := m.events[key]; exists {
		return ingest.ErrDuplicateEvent
	}
	m.events[key] = event
	return nil
}

func (m *Memory) InsertMetricValue(_ context.Context, value ingest.MetricValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = append(m.values, value)
	return nil
}

func (m *Memory) GetMappingDefinition(_ context.Context, orgID, connectionID uuid.UUID) (ingest.MappingDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.mappings[mappingKey(orgID, connectionID)]
	if !ok {
		return ingest.MappingDefinition{}, ingest.ErrMappingNotFound
	}
	return def, nil
}

func (m *Memory) SaveMappingDefinition(_ context.Context, orgID, connectionID uuid.UUID, def ingest.MappingDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[mappingKey(orgID, connectionID)] = def
	return nil
}

func (m *Memory) GetConnection(_ context.Context, connectionID uuid.UUID) (ingest.SourceConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return ingest.SourceConnection{}, ingest.ErrConnectionNotFound
	}
	return conn, nil
}

// AddConnection registers a source connection. Provisioning is an admin
// concern; this exists for tests and local seeding.
func (m *Memory) AddConnection(conn ingest.SourceConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID] = conn
}

func (m *Memory) CreateRun(_ context.Context, run ingest.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) UpdateRun(_ context.Context, run ingest.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (ingest.IngestionRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return ingest.IngestionRun{}, ingest.ErrRunNotFound
	}
	return run, nil
}

// RawEventCount reports the number of stored raw events.
func (m *Memory) RawEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// MetricValues returns a copy of all stored metric values.
func (m *Memory) MetricValues() []ingest.MetricValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ingest.MetricValue, len(m.values))
	copy(out, m.values)
	return out
}
