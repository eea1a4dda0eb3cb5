package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clasak/compassiq/internal/ingest"
)

// handleUpload ingests one CSV file for a csv-typed connection. The file
// arrives either as a multipart "file" field or as the raw request body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromContext(r.Context())
	if !ok {
		s.respondError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing organization", nil)
		return
	}

	conn, ok := s.lookupConnection(w, r, &orgID)
	if !ok {
		return
	}
	if conn.Type != ingest.ConnectionCSV {
		s.respondError(w, r, http.StatusConflict, codeWrongType,
			"connection does not accept csv uploads", nil)
		return
	}

	data, ok := s.readUploadBody(w, r)
	if !ok {
		return
	}

	run, err := s.coord.IngestCSV(r.Context(), orgID, conn.ID, string(data))
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, codeInternal,
			"ingestion bookkeeping failed", err)
		return
	}

	respondJSON(w, http.StatusCreated, run)
}

// handleWebhook ingests one webhook delivery for a webhook-typed
// connection. The delivery authenticates with the connection's bearer
// token and carries a flat JSON object body.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.lookupConnection(w, r, nil)
	if !ok {
		return
	}
	if conn.Type != ingest.ConnectionWebhook {
		s.respondError(w, r, http.StatusConflict, codeWrongType,
			"connection does not accept webhook deliveries", nil)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !conn.VerifyToken(token) {
		s.respondError(w, r, http.StatusUnauthorized, codeUnauthorized,
			"invalid webhook token", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest,
			"webhook payload must be a flat JSON object", err)
		return
	}

	run, err := s.coord.IngestWebhook(r.Context(), conn.OrgID, conn.ID,
		r.Header.Get("X-Event-Type"), body)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, codeInternal,
			"ingestion bookkeeping failed", err)
		return
	}

	respondJSON(w, http.StatusAccepted, run)
}

// handleGetMapping returns the connection's mapping definition.
func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	orgID, _ := orgFromContext(r.Context())

	conn, ok := s.lookupConnection(w, r, &orgID)
	if !ok {
		return
	}

	def, err := s.repo.GetMappingDefinition(r.Context(), orgID, conn.ID)
	if errors.Is(err, ingest.ErrMappingNotFound) {
		s.respondError(w, r, http.StatusNotFound, codeNotFound, "no mapping configured", nil)
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, codeInternal, "mapping lookup failed", err)
		return
	}

	respondJSON(w, http.StatusOK, def)
}

// handleSaveMapping creates or replaces the connection's mapping
// definition. The definition is validated before it is stored; the same
// validation runs again at normalization time.
func (s *Server) handleSaveMapping(w http.ResponseWriter, r *http.Request) {
	orgID, _ := orgFromContext(r.Context())

	conn, ok := s.lookupConnection(w, r, &orgID)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest, "read request body", err)
		return
	}

	def, err := ingest.DecodeMappingDefinition(raw)
	if err != nil {
		s.respondError(w, r, http.StatusUnprocessableEntity, codeInvalidMapping, err.Error(), err)
		return
	}

	if err := s.repo.SaveMappingDefinition(r.Context(), orgID, conn.ID, def); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, codeInternal, "save mapping failed", err)
		return
	}

	respondJSON(w, http.StatusOK, def)
}

// handleGetRun returns one ingestion run's status and counters.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	orgID, _ := orgFromContext(r.Context())

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest, "invalid run id", err)
		return
	}

	run, err := s.repo.GetRun(r.Context(), runID)
	if errors.Is(err, ingest.ErrRunNotFound) || (err == nil && run.OrgID != orgID) {
		s.respondError(w, r, http.StatusNotFound, codeNotFound, "run not found", nil)
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, codeInternal, "run lookup failed", err)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// lookupConnection resolves the connectionID route param. When wantOrg is
// non-nil the connection must belong to that organization; a mismatch is
// reported as not found to avoid leaking other tenants' connection ids.
func (s *Server) lookupConnection(w http.ResponseWriter, r *http.Request, wantOrg *uuid.UUID) (ingest.SourceConnection, bool) {
	connID, err := uuid.Parse(chi.URLParam(r, "connectionID"))
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest, "invalid connection id", err)
		return ingest.SourceConnection{}, false
	}

	conn, err := s.repo.GetConnection(r.Context(), connID)
	if errors.Is(err, ingest.ErrConnectionNotFound) {
		s.respondError(w, r, http.StatusNotFound, codeNotFound, "connection not found", nil)
		return ingest.SourceConnection{}, false
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, codeInternal, "connection lookup failed", err)
		return ingest.SourceConnection{}, false
	}
	if wantOrg != nil && conn.OrgID != *wantOrg {
		s.respondError(w, r, http.StatusNotFound, codeNotFound, "connection not found", nil)
		return ingest.SourceConnection{}, false
	}

	return conn, true
}

// readUploadBody extracts CSV bytes from a multipart form or the raw
// request body, capped at the configured limit.
func (s *Server) readUploadBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBodyBytes)

	var reader io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, codeBadRequest,
				`multipart upload requires a "file" field`, err)
			return nil, false
		}
		defer func(f multipart.File) { _ = f.Close() }(file)
		reader = file
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, http.StatusRequestEntityTooLarge, codeBadRequest,
				"upload exceeds size limit", err)
			return nil, false
		}
		s.respondError(w, r, http.StatusBadRequest, codeBadRequest, "read request body", err)
		return nil, false
	}

	return data, true
}
