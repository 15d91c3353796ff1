package job

import (
	"context"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/pagination"
)

// Filter narrows job listings.
type Filter struct {
	EnclaveID   *shared.ID
	ConnectorID *shared.ID
	Statuses    []Status
}

// Repository defines job persistence.
type Repository interface {
	// CreateIfIdle inserts the job only if no pending or running job exists
	// for the same connector. Returns ErrJobInProgress otherwise. The check
	// and insert are a single conditional write at the storage layer so the
	// serialization invariant holds across multiple runner instances.
	CreateIfIdle(ctx context.Context, j *Job) error

	GetByID(ctx context.Context, enclaveID, id shared.ID) (*Job, error)
	Update(ctx context.Context, j *Job) error
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Job], error)
}
