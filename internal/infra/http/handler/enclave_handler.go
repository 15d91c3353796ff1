package handler

import (
	"net/http"
	"time"

	"github.com/opennhi/api/internal/app"
	infrahttp "github.com/opennhi/api/internal/infra/http"
	"github.com/opennhi/api/pkg/apierror"
	"github.com/opennhi/api/pkg/domain/enclave"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/validator"
)

// EnclaveHandler handles enclave HTTP requests.
type EnclaveHandler struct {
	service   *app.EnclaveService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewEnclaveHandler creates a new enclave handler.
func NewEnclaveHandler(svc *app.EnclaveService, v *validator.Validator, log *logger.Logger) *EnclaveHandler {
	return &EnclaveHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// EnclaveResponse represents an enclave in API responses.
type EnclaveResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateEnclaveRequest represents the request to create an enclave.
type CreateEnclaveRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=1000"`
}

// UpdateEnclaveRequest represents the request to update an enclave.
type UpdateEnclaveRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

func toEnclaveResponse(e *enclave.Enclave) EnclaveResponse {
	return EnclaveResponse{
		ID:          e.ID().String(),
		Name:        e.Name(),
		Description: e.Description(),
		CreatedAt:   e.CreatedAt(),
		UpdatedAt:   e.UpdatedAt(),
	}
}

// Create handles POST /api/v1/enclaves.
func (h *EnclaveHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEnclaveRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	enc, err := h.service.CreateEnclave(r.Context(), app.CreateEnclaveInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, h.logger, "Enclave", err)
		return
	}

	respondJSON(w, http.StatusCreated, toEnclaveResponse(enc))
}

// Get handles GET /api/v1/enclaves/{id}.
func (h *EnclaveHandler) Get(w http.ResponseWriter, r *http.Request) {
	enc, err := h.service.GetEnclave(r.Context(), infrahttp.PathParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, "Enclave", err)
		return
	}
	respondJSON(w, http.StatusOK, toEnclaveResponse(enc))
}

// Update handles PATCH /api/v1/enclaves/{id}.
func (h *EnclaveHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateEnclaveRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	enc, err := h.service.UpdateEnclave(r.Context(), infrahttp.PathParam(r, "id"), app.UpdateEnclaveInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, h.logger, "Enclave", err)
		return
	}
	respondJSON(w, http.StatusOK, toEnclaveResponse(enc))
}

// Delete handles DELETE /api/v1/enclaves/{id}.
func (h *EnclaveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteEnclave(r.Context(), infrahttp.PathParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, "Enclave", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/enclaves.
func (h *EnclaveHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := h.service.ListEnclaves(r.Context(),
		parseQueryInt(query.Get("page"), 1),
		parseQueryInt(query.Get("per_page"), 20))
	if err != nil {
		handleServiceError(w, h.logger, "Enclave", err)
		return
	}
	respondJSON(w, http.StatusOK, newListResponse(result, toEnclaveResponse))
}
