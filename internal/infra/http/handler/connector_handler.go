package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/opennhi/api/internal/app"
	infrahttp "github.com/opennhi/api/internal/infra/http"
	"github.com/opennhi/api/internal/infra/http/middleware"
	"github.com/opennhi/api/pkg/apierror"
	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/validator"
)

// ConnectorHandler handles connector HTTP requests.
type ConnectorHandler struct {
	service   *app.ConnectorService
	jobs      *app.JobService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewConnectorHandler creates a new connector handler.
func NewConnectorHandler(svc *app.ConnectorService, jobs *app.JobService, v *validator.Validator, log *logger.Logger) *ConnectorHandler {
	return &ConnectorHandler{
		service:   svc,
		jobs:      jobs,
		validator: v,
		logger:    log,
	}
}

// ConnectorResponse represents a connector in API responses. Config is
// always masked.
type ConnectorResponse struct {
	ID            string         `json:"id"`
	EnclaveID     string         `json:"enclave_id"`
	Type          string         `json:"type"`
	Name          string         `json:"name"`
	Config        map[string]any `json:"config"`
	CronExpr      string         `json:"cron_expr,omitempty"`
	Enabled       bool           `json:"enabled"`
	LastRunAt     *time.Time     `json:"last_run_at,omitempty"`
	LastRunStatus string         `json:"last_run_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ConnectorTypeResponse represents a connector type catalog entry.
type ConnectorTypeResponse struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	SourceType     string   `json:"source_type"`
	RequiredConfig []string `json:"required_config"`
	OptionalConfig []string `json:"optional_config"`
	SecretConfig   []string `json:"secret_config"`
}

// CreateConnectorRequest represents the request to create a connector.
type CreateConnectorRequest struct {
	Type     string         `json:"type" validate:"required,connector_type"`
	Name     string         `json:"name" validate:"required,min=1,max=255"`
	Config   map[string]any `json:"config" validate:"required"`
	CronExpr string         `json:"cron_expr" validate:"omitempty,cron"`
}

// UpdateConnectorRequest represents the request to update a connector.
type UpdateConnectorRequest struct {
	Name     *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Config   map[string]any `json:"config" validate:"omitempty"`
	CronExpr *string        `json:"cron_expr" validate:"omitempty,cron"`
	Enabled  *bool          `json:"enabled"`
}

func (h *ConnectorHandler) toResponse(c *connector.Connector) ConnectorResponse {
	return ConnectorResponse{
		ID:            c.ID().String(),
		EnclaveID:     c.EnclaveID().String(),
		Type:          string(c.TypeCode()),
		Name:          c.Name(),
		Config:        h.service.MaskedConfig(c),
		CronExpr:      c.CronExpression(),
		Enabled:       c.Enabled(),
		LastRunAt:     c.LastRunAt(),
		LastRunStatus: string(c.LastRunStatus()),
		CreatedAt:     c.CreatedAt(),
		UpdatedAt:     c.UpdatedAt(),
	}
}

// Create handles POST /api/v1/connectors.
func (h *ConnectorHandler) Create(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	var req CreateConnectorRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	conn, err := h.service.CreateConnector(r.Context(), app.CreateConnectorInput{
		EnclaveID: enclaveID.String(),
		Type:      req.Type,
		Name:      req.Name,
		Config:    req.Config,
		CronExpr:  req.CronExpr,
	})
	if err != nil {
		handleServiceError(w, h.logger, "Connector", err)
		return
	}

	respondJSON(w, http.StatusCreated, h.toResponse(conn))
}

// Get handles GET /api/v1/connectors/{id}.
func (h *ConnectorHandler) Get(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	conn, err := h.service.GetConnector(r.Context(), enclaveID, infrahttp.PathParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, "Connector", err)
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(conn))
}

// Update handles PATCH /api/v1/connectors/{id}.
func (h *ConnectorHandler) Update(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	var req UpdateConnectorRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	conn, err := h.service.UpdateConnector(r.Context(), enclaveID, infrahttp.PathParam(r, "id"), app.UpdateConnectorInput{
		Name:     req.Name,
		Config:   req.Config,
		CronExpr: req.CronExpr,
		Enabled:  req.Enabled,
	})
	if err != nil {
		handleServiceError(w, h.logger, "Connector", err)
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(conn))
}

// Delete handles DELETE /api/v1/connectors/{id}.
func (h *ConnectorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	if err := h.service.DeleteConnector(r.Context(), enclaveID, infrahttp.PathParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, "Connector", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/connectors.
func (h *ConnectorHandler) List(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())
	query := r.URL.Query()

	result, err := h.service.ListConnectors(r.Context(), app.ListConnectorsInput{
		EnclaveID: enclaveID.String(),
		Type:      query.Get("type"),
		Enabled:   parseQueryBoolPtr(query.Get("enabled")),
		Page:      parseQueryInt(query.Get("page"), 1),
		PerPage:   parseQueryInt(query.Get("per_page"), 20),
	})
	if err != nil {
		handleServiceError(w, h.logger, "Connector", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(result, h.toResponse))
}

// ListTypes handles GET /api/v1/connector-types.
func (h *ConnectorHandler) ListTypes(w http.ResponseWriter, _ *http.Request) {
	types := h.service.ListTypes()
	out := make([]ConnectorTypeResponse, len(types))
	for i, d := range types {
		out[i] = ConnectorTypeResponse{
			Code:           string(d.Code),
			Name:           d.Name,
			Description:    d.Description,
			SourceType:     string(d.Source),
			RequiredConfig: d.RequiredConfig,
			OptionalConfig: d.OptionalConfig,
			SecretConfig:   d.SecretConfig,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Test handles POST /api/v1/connectors/{id}/test.
func (h *ConnectorHandler) Test(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	result, err := h.service.TestConnection(r.Context(), enclaveID, infrahttp.PathParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, "Connector", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Run handles POST /api/v1/connectors/{id}/run. Returns 409 when a job for
// the connector is already in flight.
func (h *ConnectorHandler) Run(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	j, err := h.jobs.TriggerJob(r.Context(), enclaveID, infrahttp.PathParam(r, "id"), job.TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrJobInProgress):
			apierror.JobInProgress("A job for this connector is already pending or running").WriteJSON(w)
		case errors.Is(err, connector.ErrConnectorDisabled):
			apierror.Conflict("Connector is disabled").WriteJSON(w)
		default:
			handleServiceError(w, h.logger, "Connector", err)
		}
		return
	}

	respondJSON(w, http.StatusAccepted, toJobResponse(j))
}
