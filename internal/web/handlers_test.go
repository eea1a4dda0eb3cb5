package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clasak/compassiq/internal/config"
	"github.com/clasak/compassiq/internal/ingest"
	"github.com/clasak/compassiq/internal/store"
)

// ============================================================================
// Test Fixtures
// ============================================================================

func testServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Minute},
		Ingest: config.IngestConfig{MaxBodyBytes: 1 << 20},
	}
	repo := store.NewMemory()
	return NewServer(ingest.NewCoordinator(repo), repo, cfg), repo
}

func seedConnection(repo *store.Memory, orgID uuid.UUID, connType ingest.ConnectionType, tokenHash string) ingest.SourceConnection {
	conn := ingest.SourceConnection{
		ID:        uuid.New(),
		OrgID:     orgID,
		Type:      connType,
		TokenHash: tokenHash,
	}
	repo.AddConnection(conn)
	return conn
}

func seedMapping(t *testing.T, repo *store.Memory, orgID, connID uuid.UUID) {
	t.Helper()
	def := ingest.MappingDefinition{
		Version:    1,
		Target:     "metric_values",
		MetricKey:  "revenue",
		OccurredOn: ingest.OccurredOnRule{Mode: ingest.ModeField, Field: "date"},
		ValueNum:   &ingest.FieldRef{Field: "amount"},
	}
	if err := repo.SaveMappingDefinition(context.Background(), orgID, connID, def); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) ingest.IngestionRun {
	t.Helper()
	var run ingest.IngestionRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run response: %v\nbody: %s", err, rec.Body.String())
	}
	return run
}

// ============================================================================
// Upload Endpoint Tests
// ============================================================================

func TestHandleUpload(t *testing.T) {
	s, repo := testServer(t)
	orgID := uuid.New()
	conn := seedConnection(repo, orgID, ingest.ConnectionCSV, "")
	seedMapping(t, repo, orgID, conn.ID)

	csv := "date,amount\n2024-01-01,100\n2024-01-02,abc\n"
	req := httptest.NewRequest(http.MethodPost,
		"/api/connections/"+conn.ID.String()+"/uploads", strings.NewReader(csv))
	req.Header.Set("X-Org-ID", orgID.String())

	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}

	run := decodeRun(t, rec)
	if run.Status != ingest.RunSuccess || run.RowsIn != 2 || run.RowsValid != 1 || run.RowsInvalid != 1 {
		t.Errorf("run = %+v, want success 2/1/1", run)
	}
	if len(repo.MetricValues()) != 1 {
		t.Errorf("metric values = %d, want 1", len(repo.MetricValues()))
	}
}

func TestHandleUpload_MissingOrgHeader(t *testing.T) {
	s, repo := testServer(t)
	conn := seedConnection(repo, uuid.New(), ingest.ConnectionCSV, "")

	req := httptest.NewRequest(http.MethodPost,
		"/api/connections/"+conn.ID.String()+"/uploads", strings.NewReader("a,b\n1,2\n"))

	rec := doRequest(s, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleUpload_OtherOrgConnectionHidden(t *testing.T) {
	s, repo := testServer(t)
	conn := seedConnection(repo, uuid.New(), ingest.ConnectionCSV, "")

	req := httptest.NewRequest(http.MethodPost,
		"/api/connections/"+conn.ID.String()+"/uploads", strings.NewReader("a,b\n1,2\n"))
	req.Header.Set("X-Org-ID", uuid.NewString())

	rec := doRequest(s, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (no tenant leakage)", rec.Code)
	}
}

func TestHandleUpload_WebhookConnectionRejected(t *testing.T) {
	s, repo := testServer(t)
	orgID := uuid.New()
	conn := seedConnection(repo, orgID, ingest.ConnectionWebhook, "")

	req := httptest.NewRequest(http.MethodPost,
		"/api/connections/"+conn.ID.String()+"/uploads", strings.NewReader("a,b\n1,2\n"))
	req.Header.Set("X-Org-ID", orgID.String())

	rec := doRequest(s, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHandleUpload_EmptyBodyReportsFailedRun(t *testing.T) {
	s, repo := testServer(t)
	orgID := uuid.New()
	conn := seedConnection(repo, orgID, ingest.ConnectionCSV, "")

	req := httptest.NewRequest(http.MethodPost,
		"/api/connections/"+conn.ID.String()+"/uploads", strings.NewReader(""))
	req.Header.Set("X-Org-ID", orgID.String())

	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (a failed run is still a created run)", rec.Code)
	}
	run := decodeRun(t, rec)
	if run.Status != ingest.RunFailed {
		t.Errorf("Status = %q, want failed", run.Status)
	}
}

// ============================================================================
// Webhook Endpoint Tests
// ============================================================================

func TestHandleWebhook(t *testing.T) {
	s, repo := testServer(t)
	orgID := uuid.New()

	hash, err := ingest.HashToken("secret-token")
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	conn := seedConnection(repo, orgID, ingest.ConnectionWebhook, hash)
	seedMapping(t, repo, orgID, conn.ID)

	body := `{"date":"2024-01-05","amount":42}`
	req := httptest.NewRequest(http.MethodPost, "/hooks/"+conn.ID.String(), strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-token")

	rec := doRequest(s, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202\nbody: %s", rec.Code, rec.Body.String())
	}

	run := decodeRun(t, rec)
	if run.Status != ingest.RunSuccess || run.RowsValid != 1 {
		t.Errorf("run = %+v, want success with 1 valid row", run)
	}

	values := repo.MetricValues()
	if len(values) != 1 || values[0].ValueNum == nil || *values[0].ValueNum != 42 {
		t.Errorf("metric values = %+v", values)
	}
}

func TestHandleWebhook_BadToken(t *testing.T) {
	s, repo := testServer(t)
	hash, err := ingest.HashToken("secret-token")
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	conn := seedConnection(repo, uuid.New(), ingest.ConnectionWebhook, hash)

	req := httptest.NewRequest(http.MethodPost, "/hooks/"+conn.ID.String(),
		strings.NewReader(`{"amount":1}`))
	req.Header.Set("Authorization", "Bearer wrong-token")

	rec := doRequest(s, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if repo.RawEventCount() != 0 {
		t.Errorf("raw events = %d, want 0 (nothing stored before auth)", repo.RawEventCount())
	}
}

func TestHandleWebhook_MalformedBody(t *testing.T) {
	s, repo := testServer(t)
	hash, err := ingest.HashToken("tok")
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	conn := seedConnection(repo, uuid.New(), ingest.ConnectionWebhook, hash)

	req := httptest.NewRequest(http.MethodPost, "/hooks/"+conn.ID.String(),
		strings.NewReader(`{"broken`))
	req.Header.Set("Authorization", "Bearer tok")

	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWebhook_CSVConnectionRejected(t *testing.T) {
	s, repo := testServer(t)
	conn := seedConnection(repo, uuid.New(), ingest.ConnectionCSV, "")

	req := httptest.NewRequest(http.MethodPost, "/hooks/"+conn.ID.String(),
		strings.NewReader(`{"amount":1}`))

	rec := doRequest(s, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

// ============================================================================
// Mapping Endpoint Tests
// ============================================================================

func TestMappingSaveAndGet(t *testing.T) {
	s, repo := testServer(t)
	orgID := uuid.New()
	conn := seedConnection(repo, orgID, ingest.ConnectionCSV, "")

	getReq := httptest.NewRequest(http.MethodGet,
		"/api/connections/"+conn.ID.String()+"/mapping", nil)
	getReq.Header.Set("X-Org-ID", orgID.String())
	if rec := doRequest(s, getReq); rec.Code != http.StatusNotFound {
		t.Fatalf("get before save status = %d, want 404", rec.Code)
	}

	body := `{
		"version": 1,
		"target": "metric_values",
		"metric_key": "revenue",
		"occurred_on": {"mode": "field", "field": "date"},
		"value_num": {"field": "amount"}
	}`
	putReq := httptest.NewRequest(http.MethodPut,
		"/api/connections/"+conn.ID.String()+"/mapping", strings.NewReader(body))
	putReq.Header.Set("X-Org-ID", orgID.String())

	rec := doRequest(s, putReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	getReq = httptest.NewRequest(http.MethodGet,
		"/api/connections/"+conn.ID.String()+"/mapping", nil)
	getReq.Header.Set("X-Org-ID", orgID.String())
	rec = doRequest(s, getReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("get after save status = %d, want 200", rec.Code)
	}

	var def ingest.MappingDefinition
	if err := json.Unmarshal(rec.Body.Bytes(), &def); err != nil {
		t.Fatalf("decode mapping response: %v", err)
	}
	if def.MetricKey != "revenue" || def.OccurredOn.Field != "date" {
		t.Errorf("mapping = %+v", def)
	}
}

func TestSaveMapping_InvalidDefinition(t *testing.T) {
	s, repo := testServer(t)
	orgID := uuid.New()
	conn := seedConnection(repo, orgID, ingest.ConnectionCSV, "")

	tests := []struct {
		name string
		body string
	}{
		{
			name: "wrong version",
			body: `{"version":2,"target":"metric_values","metric_key":"x","occurred_on":{"mode":"today"},"value_num":{"field":"n"}}`,
		},
		{
			name: "no value rule",
			body: `{"version":1,"target":"metric_values","metric_key":"x","occurred_on":{"mode":"today"}}`,
		},
		{
			name: "not json",
			body: `date,amount`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut,
				"/api/connections/"+conn.ID.String()+"/mapping", strings.NewReader(tt.body))
			req.Header.Set("X-Org-ID", orgID.String())

			rec := doRequest(s, req)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422\nbody: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

// ============================================================================
// Run Status Endpoint Tests
// ============================================================================

func TestHandleGetRun(t *testing.T) {
	s, repo := testServer(t)
	orgID := uuid.New()
	conn := seedConnection(repo, orgID, ingest.ConnectionCSV, "")

	uploadReq := httptest.NewRequest(http.MethodPost,
		"/api/connections/"+conn.ID.String()+"/uploads",
		strings.NewReader("date,amount\n2024-01-01,100\n"))
	uploadReq.Header.Set("X-Org-ID", orgID.String())
	created := decodeRun(t, doRequest(s, uploadReq))

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+created.ID.String(), nil)
	req.Header.Set("X-Org-ID", orgID.String())
	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	run := decodeRun(t, rec)
	if run.ID != created.ID || !run.Status.Terminal() {
		t.Errorf("run = %+v", run)
	}

	// Another org never sees the run.
	foreign := httptest.NewRequest(http.MethodGet, "/api/runs/"+created.ID.String(), nil)
	foreign.Header.Set("X-Org-ID", uuid.NewString())
	if rec := doRequest(s, foreign); rec.Code != http.StatusNotFound {
		t.Errorf("cross-org status = %d, want 404", rec.Code)
	}
}

func TestHandleGetRun_UnknownID(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+uuid.NewString(), nil)
	req.Header.Set("X-Org-ID", uuid.NewString())
	if rec := doRequest(s, req); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/runs/not-a-uuid", nil)
	bad.Header.Set("X-Org-ID", uuid.NewString())
	if rec := doRequest(s, bad); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
