package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/pipeline"
)

// Record is a stored clinical record. Identifying fields are held in the
// protected form the pipeline produced; they are revealed only on authorized
// reads.
type Record struct {
	ID         string            `json:"id"`
	PatientID  string            `json:"patient_id"`
	Department string            `json:"department"`
	Assigned   []string          `json:"assigned"`
	Fields     map[string]string `json:"fields"`
}

// Catalog is the in-memory record registry. It exists separately from the
// Server so the pipeline's resource lookup can be wired before the server.
type Catalog struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewCatalog creates an empty record catalog.
func NewCatalog() *Catalog {
	return &Catalog{records: make(map[string]*Record)}
}

// put stores a record under a fresh ID and returns it.
func (c *Catalog) put(rec *Record) string {
	id := "rec_" + uuid.New().String()[:8]
	rec.ID = id
	c.mu.Lock()
	c.records[id] = rec
	c.mu.Unlock()
	return id
}

// get returns the record and whether it exists.
func (c *Catalog) get(id string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

// LookupResource resolves a record ID for the pipeline's policy stage.
func (c *Catalog) LookupResource(_ context.Context, resourceID string) (authz.Resource, error) {
	rec, ok := c.get(resourceID)
	if !ok {
		return authz.Resource{}, fmt.Errorf("record %s not found", resourceID)
	}
	return authz.Resource{
		UID:      rec.ID,
		Type:     "Record",
		OrgUnit:  rec.Department,
		Assigned: append([]string(nil), rec.Assigned...),
	}, nil
}

// AddRecord stores a record, protecting its identifying fields, and returns
// the generated ID.
func (s *Server) AddRecord(patientID, department string, assigned []string, fields map[string]string) (string, error) {
	protected, err := s.pipe.ProtectRecord(fields)
	if err != nil {
		return "", fmt.Errorf("failed to store record: %w", err)
	}
	return s.catalog.put(&Record{
		PatientID:  patientID,
		Department: department,
		Assigned:   append([]string(nil), assigned...),
		Fields:     protected,
	}), nil
}

// createRecordRequest is posted by the clinical records system. It is not
// pipeline-gated: record ingest happens on a trusted internal surface, the
// same trust boundary as session creation.
type createRecordRequest struct {
	PatientID  string            `json:"patient_id"`
	Department string            `json:"department"`
	Assigned   []string          `json:"assigned"`
	Fields     map[string]string `json:"fields"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.PatientID == "" || req.Department == "" {
		s.writeError(w, r, http.StatusBadRequest, "patient_id and department are required")
		return
	}

	id, err := s.AddRecord(req.PatientID, req.Department, req.Assigned, req.Fields)
	if err != nil {
		s.logger.Error("record ingest failed", "patient", req.PatientID, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to store record")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"record_id": id})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, ok := s.catalog.get(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "record not found")
		return
	}

	fields, err := s.pipe.RevealRecord(rec.Fields)
	if err != nil {
		// Fail closed: an unverifiable record is never partially returned.
		s.logger.Error("record decryption failed",
			"record", id,
			"error", err,
		)
		s.writeError(w, r, http.StatusInternalServerError, "record cannot be verified")
		return
	}

	resp := Record{
		ID:         rec.ID,
		PatientID:  rec.PatientID,
		Department: rec.Department,
		Assigned:   append([]string(nil), rec.Assigned...),
		Fields:     fields,
	}
	if d := pipeline.DecisionFromContext(r.Context()); d != nil && d.Trust != nil {
		w.Header().Set("X-Trust-Score", fmt.Sprintf("%.1f", d.Trust.Score))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListPatientRecords lists record IDs for a patient without revealing
// any protected fields.
func (s *Server) handleListPatientRecords(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")

	type summary struct {
		ID         string `json:"id"`
		Department string `json:"department"`
	}
	var out []summary

	s.catalog.mu.RLock()
	for _, rec := range s.catalog.records {
		if rec.PatientID == patientID {
			out = append(out, summary{ID: rec.ID, Department: rec.Department})
		}
	}
	s.catalog.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}
