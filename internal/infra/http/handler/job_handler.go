package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/opennhi/api/internal/app"
	infrahttp "github.com/opennhi/api/internal/infra/http"
	"github.com/opennhi/api/internal/infra/http/middleware"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/logger"
)

// JobHandler handles job HTTP requests. Jobs are created through connector
// run and ingest endpoints; this handler is read-only.
type JobHandler struct {
	service *app.JobService
	logger  *logger.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(svc *app.JobService, log *logger.Logger) *JobHandler {
	return &JobHandler{service: svc, logger: log}
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID              string     `json:"id"`
	ConnectorID     string     `json:"connector_id"`
	EnclaveID       string     `json:"enclave_id"`
	Status          string     `json:"status"`
	TriggeredBy     string     `json:"triggered_by"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RecordsFound    int        `json:"records_found"`
	FindingsCount   int        `json:"findings_count"`
	UnresolvedCount int        `json:"unresolved_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:              j.ID().String(),
		ConnectorID:     j.ConnectorID().String(),
		EnclaveID:       j.EnclaveID().String(),
		Status:          string(j.Status()),
		TriggeredBy:     string(j.TriggeredBy()),
		StartedAt:       j.StartedAt(),
		CompletedAt:     j.CompletedAt(),
		RecordsFound:    j.RecordsFound(),
		FindingsCount:   j.FindingsCount(),
		UnresolvedCount: j.UnresolvedCount(),
		ErrorMessage:    j.ErrorMessage(),
		CreatedAt:       j.CreatedAt(),
		UpdatedAt:       j.UpdatedAt(),
	}
}

// Get handles GET /api/v1/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	j, err := h.service.GetJob(r.Context(), enclaveID, infrahttp.PathParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, "Job", err)
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(j))
}

// List handles GET /api/v1/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())
	query := r.URL.Query()

	var statuses []string
	if s := query.Get("status"); s != "" {
		statuses = strings.Split(s, ",")
	}

	result, err := h.service.ListJobs(r.Context(), app.ListJobsInput{
		EnclaveID:   enclaveID,
		ConnectorID: query.Get("connector_id"),
		Statuses:    statuses,
		Page:        parseQueryInt(query.Get("page"), 1),
		PerPage:     parseQueryInt(query.Get("per_page"), 20),
	})
	if err != nil {
		handleServiceError(w, h.logger, "Job", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(result, toJobResponse))
}

// ListFindings handles GET /api/v1/jobs/{id}/findings.
func (h *JobHandler) ListFindings(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())
	query := r.URL.Query()

	result, err := h.service.ListJobFindings(r.Context(), enclaveID, infrahttp.PathParam(r, "id"),
		parseQueryInt(query.Get("page"), 1),
		parseQueryInt(query.Get("per_page"), 20))
	if err != nil {
		handleServiceError(w, h.logger, "Job", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(result, toFindingResponse))
}
