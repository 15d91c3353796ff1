package finding

import (
	"context"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/pagination"
)

// Filter narrows finding listings.
type Filter struct {
	EnclaveID shared.ID
	JobID     *shared.ID
}

// Repository is the append-only finding store. Findings are never updated or
// rolled back, including when their job later fails.
type Repository interface {
	// Record persists a batch of findings. Each finding is written once; the
	// batch is not transactional with job state.
	Record(ctx context.Context, findings []*Finding) error

	// GetByID returns a finding by ID within an enclave.
	GetByID(ctx context.Context, enclaveID, id shared.ID) (*Finding, error)

	// ListByJob returns the findings produced by a job, oldest first.
	ListByJob(ctx context.Context, enclaveID, jobID shared.ID, p pagination.Pagination) (pagination.Result[*Finding], error)

	// ListByIdentity returns the findings linked to an identity through
	// provenance, oldest first.
	ListByIdentity(ctx context.Context, enclaveID, identityID shared.ID, p pagination.Pagination) (pagination.Result[*Finding], error)
}
