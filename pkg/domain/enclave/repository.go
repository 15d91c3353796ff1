package enclave

import (
	"context"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/pagination"
)

// Repository defines enclave persistence.
type Repository interface {
	Create(ctx context.Context, e *Enclave) error
	GetByID(ctx context.Context, id shared.ID) (*Enclave, error)
	GetByName(ctx context.Context, name string) (*Enclave, error)
	Update(ctx context.Context, e *Enclave) error

	// Delete removes an enclave. The enclave is the tenancy root, so
	// deletion cascades to its connectors, jobs, findings, and identities.
	Delete(ctx context.Context, id shared.ID) error

	List(ctx context.Context, page pagination.Pagination) (pagination.Result[*Enclave], error)
}
