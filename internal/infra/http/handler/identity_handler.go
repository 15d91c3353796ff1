package handler

import (
	"net/http"
	"time"

	"github.com/opennhi/api/internal/app"
	infrahttp "github.com/opennhi/api/internal/infra/http"
	"github.com/opennhi/api/internal/infra/http/middleware"
	"github.com/opennhi/api/internal/infra/postgres"
	"github.com/opennhi/api/pkg/apierror"
	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/risk"
	"github.com/opennhi/api/pkg/validator"
)

// IdentityHandler handles identity HTTP requests.
type IdentityHandler struct {
	service   *app.IdentityService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(svc *app.IdentityService, v *validator.Validator, log *logger.Logger) *IdentityHandler {
	return &IdentityHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// RiskFactorResponse represents one contributing risk factor.
type RiskFactorResponse struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// IdentityResponse represents an identity in API responses.
type IdentityResponse struct {
	ID           string               `json:"id"`
	EnclaveID    string               `json:"enclave_id"`
	Fingerprint  string               `json:"fingerprint"`
	Type         string               `json:"type"`
	DisplayName  string               `json:"display_name"`
	Attributes   map[string]any       `json:"attributes"`
	Owner        string               `json:"owner,omitempty"`
	LinkedSystem string               `json:"linked_system,omitempty"`
	RiskScore    int                  `json:"risk_score"`
	RiskFactors  []RiskFactorResponse `json:"risk_factors"`
	FirstSeen    time.Time            `json:"first_seen"`
	LastSeen     time.Time            `json:"last_seen"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// ProvenanceResponse represents one identity-to-finding link.
type ProvenanceResponse struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	FindingID  string    `json:"finding_id"`
	JobID      string    `json:"job_id,omitempty"`
	LinkedAt   time.Time `json:"linked_at"`
}

// FindingResponse represents a raw finding in API responses.
type FindingResponse struct {
	ID            string         `json:"id"`
	JobID         string         `json:"job_id,omitempty"`
	ConnectorID   string         `json:"connector_id,omitempty"`
	EnclaveID     string         `json:"enclave_id"`
	SourceType    string         `json:"source_type"`
	RawAttributes map[string]any `json:"raw_attributes"`
	DiscoveredAt  time.Time      `json:"discovered_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EnrichIdentityRequest represents operator enrichment input.
type EnrichIdentityRequest struct {
	Owner        *string `json:"owner" validate:"omitempty,max=255"`
	LinkedSystem *string `json:"linked_system" validate:"omitempty,max=255"`
}

func toRiskFactorResponses(factors []risk.Factor) []RiskFactorResponse {
	out := make([]RiskFactorResponse, len(factors))
	for i, f := range factors {
		out[i] = RiskFactorResponse{Name: f.Name, Points: f.Points}
	}
	return out
}

func toIdentityResponse(ident *identity.Identity) IdentityResponse {
	return IdentityResponse{
		ID:           ident.ID().String(),
		EnclaveID:    ident.EnclaveID().String(),
		Fingerprint:  ident.Fingerprint(),
		Type:         string(ident.Type()),
		DisplayName:  ident.DisplayName(),
		Attributes:   ident.Attributes(),
		Owner:        ident.Owner(),
		LinkedSystem: ident.LinkedSystem(),
		RiskScore:    ident.RiskScore(),
		RiskFactors:  toRiskFactorResponses(ident.RiskFactors()),
		FirstSeen:    ident.FirstSeen(),
		LastSeen:     ident.LastSeen(),
		CreatedAt:    ident.CreatedAt(),
		UpdatedAt:    ident.UpdatedAt(),
	}
}

func toProvenanceResponse(link *identity.ProvenanceLink) ProvenanceResponse {
	resp := ProvenanceResponse{
		ID:         link.ID().String(),
		IdentityID: link.IdentityID().String(),
		FindingID:  link.FindingID().String(),
		LinkedAt:   link.LinkedAt(),
	}
	if jobID := link.JobID(); jobID != nil {
		resp.JobID = jobID.String()
	}
	return resp
}

func toFindingResponse(f *finding.Finding) FindingResponse {
	resp := FindingResponse{
		ID:            f.ID().String(),
		EnclaveID:     f.EnclaveID().String(),
		SourceType:    string(f.SourceType()),
		RawAttributes: f.RawAttributes(),
		DiscoveredAt:  f.DiscoveredAt(),
		CreatedAt:     f.CreatedAt(),
	}
	if jobID := f.JobID(); jobID != nil {
		resp.JobID = jobID.String()
	}
	if connID := f.ConnectorID(); connID != nil {
		resp.ConnectorID = connID.String()
	}
	return resp
}

// List handles GET /api/v1/identities.
func (h *IdentityHandler) List(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())
	query := r.URL.Query()

	input := app.ListIdentitiesInput{
		EnclaveID:    enclaveID,
		Type:         query.Get("type"),
		Owner:        parseQueryStrPtr(query, "owner"),
		LinkedSystem: parseQueryStrPtr(query, "linked_system"),
		Search:       query.Get("search"),
		MinRisk:      parseQueryIntPtr(query.Get("min_risk")),
		MaxRisk:      parseQueryIntPtr(query.Get("max_risk")),
		Sort:         query.Get("sort"),
		Page:         parseQueryInt(query.Get("page"), 1),
		PerPage:      parseQueryInt(query.Get("per_page"), 20),
	}
	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	sort := postgres.IdentitySortOption()
	if input.Sort != "" {
		sort.Parse(input.Sort)
	}

	result, err := h.service.ListIdentities(r.Context(), input, sort)
	if err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(result, toIdentityResponse))
}

// Get handles GET /api/v1/identities/{id}.
func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	ident, err := h.service.GetIdentity(r.Context(), enclaveID, infrahttp.PathParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(ident))
}

// Enrich handles PATCH /api/v1/identities/{id}.
func (h *IdentityHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	var req EnrichIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	ident, err := h.service.EnrichIdentity(r.Context(), enclaveID, infrahttp.PathParam(r, "id"), app.EnrichIdentityInput{
		Owner:        req.Owner,
		LinkedSystem: req.LinkedSystem,
	})
	if err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(ident))
}

// Delete handles DELETE /api/v1/identities/{id}.
func (h *IdentityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	if err := h.service.DeleteIdentity(r.Context(), enclaveID, infrahttp.PathParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProvenance handles GET /api/v1/identities/{id}/provenance.
func (h *IdentityHandler) ListProvenance(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())
	query := r.URL.Query()

	result, err := h.service.ListProvenance(r.Context(), enclaveID, infrahttp.PathParam(r, "id"),
		parseQueryInt(query.Get("page"), 1),
		parseQueryInt(query.Get("per_page"), 20))
	if err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(result, toProvenanceResponse))
}

// ListFindings handles GET /api/v1/identities/{id}/findings.
func (h *IdentityHandler) ListFindings(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())
	query := r.URL.Query()

	result, err := h.service.ListFindings(r.Context(), enclaveID, infrahttp.PathParam(r, "id"),
		parseQueryInt(query.Get("page"), 1),
		parseQueryInt(query.Get("per_page"), 20))
	if err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(result, toFindingResponse))
}

// Stats handles GET /api/v1/identities/stats.
func (h *IdentityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	stats, err := h.service.Stats(r.Context(), enclaveID)
	if err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// CorrelateResponse reports the result of a correlation pass.
type CorrelateResponse struct {
	Updated int `json:"updated"`
}

// Correlate handles POST /identities/correlate. It re-runs linked-system
// correlation over the enclave's identities.
func (h *IdentityHandler) Correlate(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	updated, err := h.service.Recorrelate(r.Context(), enclaveID)
	if err != nil {
		handleServiceError(w, h.logger, "Identity", err)
		return
	}
	respondJSON(w, http.StatusOK, CorrelateResponse{Updated: updated})
}
