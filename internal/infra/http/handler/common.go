package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/opennhi/api/pkg/apierror"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
	"github.com/opennhi/api/pkg/validator"
)

// ListResponse represents a paginated list response.
type ListResponse[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// newListResponse maps a pagination result through fn into a ListResponse.
func newListResponse[T, R any](result pagination.Result[T], fn func(T) R) ListResponse[R] {
	data := make([]R, len(result.Data))
	for i, item := range result.Data {
		data[i] = fn(item)
	}
	return ListResponse[R]{
		Data:       data,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func handleValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]apierror.ValidationError, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{
				Field:   ve.Field,
				Message: ve.Message,
			}
		}
		apierror.ValidationFailed("Validation failed", apiErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
}

// handleServiceError maps domain sentinel errors onto API errors.
func handleServiceError(w http.ResponseWriter, log *logger.Logger, resource string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound(resource + " not found").WriteJSON(w)
	case errors.Is(err, shared.ErrAlreadyExists):
		apierror.Conflict(resource + " already exists").WriteJSON(w)
	case errors.Is(err, shared.ErrConflict):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrValidation):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	default:
		log.Error("service error", "error", err)
		apierror.Internal(err).WriteJSON(w)
	}
}

// parseQueryInt parses a query parameter as an integer, falling back to
// defaultVal on empty or invalid input.
func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// parseQueryIntPtr parses a query parameter as an optional integer.
func parseQueryIntPtr(s string) *int {
	if s == "" {
		return nil
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &val
}

// parseQueryBoolPtr parses a query parameter as an optional boolean.
// "true" and "1" are true; anything else is false.
func parseQueryBoolPtr(s string) *bool {
	if s == "" {
		return nil
	}
	val := s == "true" || s == "1"
	return &val
}

// parseQueryStrPtr returns nil for an absent parameter, keeping the
// distinction between "not filtered" and "filter on empty value".
func parseQueryStrPtr(query map[string][]string, key string) *string {
	vals, ok := query[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	return &vals[0]
}
