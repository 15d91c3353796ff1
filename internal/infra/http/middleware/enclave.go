package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/opennhi/api/pkg/apierror"
	"github.com/opennhi/api/pkg/domain/enclave"
	"github.com/opennhi/api/pkg/domain/shared"
)

type enclaveContextKey string

// EnclaveIDKey is the context key carrying the resolved enclave ID.
const EnclaveIDKey enclaveContextKey = "enclave_id"

// EnclaveHeader names the header clients use to select their enclave.
const EnclaveHeader = "X-Enclave-ID"

// EnclaveContext resolves the X-Enclave-ID header against the enclave store
// and stores the ID in the request context. Every enclave-scoped route sits
// behind this check, so a handler can assume the ID exists and is valid.
func EnclaveContext(repo enclave.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(EnclaveHeader)
			if header == "" {
				apierror.BadRequest(fmt.Sprintf("%s header is required", EnclaveHeader)).WriteJSON(w)
				return
			}

			enclaveID, err := shared.IDFromString(header)
			if err != nil {
				apierror.BadRequest(fmt.Sprintf("invalid %s header", EnclaveHeader)).WriteJSON(w)
				return
			}

			if _, err := repo.GetByID(r.Context(), enclaveID); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					apierror.NotFound("Enclave not found").WriteJSON(w)
					return
				}
				apierror.Internal(err).WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), EnclaveIDKey, enclaveID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetEnclaveID extracts the enclave ID from context.
func GetEnclaveID(ctx context.Context) shared.ID {
	if id, ok := ctx.Value(EnclaveIDKey).(shared.ID); ok {
		return id
	}
	return shared.ID{}
}

// MustGetEnclaveID extracts the enclave ID from context and panics when
// absent. Only for handlers mounted behind EnclaveContext.
func MustGetEnclaveID(ctx context.Context) shared.ID {
	id := GetEnclaveID(ctx)
	if id.IsZero() {
		panic("enclave ID missing from context")
	}
	return id
}
