package connector

import (
	"context"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/pagination"
)

// Filter narrows connector listings.
type Filter struct {
	EnclaveID *shared.ID
	TypeCode  *TypeCode
	Enabled   *bool
}

// Repository defines connector persistence. All reads are enclave-scoped.
type Repository interface {
	Create(ctx context.Context, c *Connector) error
	GetByID(ctx context.Context, enclaveID, id shared.ID) (*Connector, error)
	Update(ctx context.Context, c *Connector) error

	// Delete removes a connector and its jobs. Findings and identities are
	// NOT removed: findings keep a nulled connector reference so the
	// provenance audit trail survives connector churn.
	Delete(ctx context.Context, enclaveID, id shared.ID) error

	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Connector], error)

	// ListScheduled returns every enabled connector with a non-empty cron
	// expression, across all enclaves. Used by the scheduler tick.
	ListScheduled(ctx context.Context) ([]*Connector, error)
}
