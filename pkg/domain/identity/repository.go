package identity

import (
	"context"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/pagination"
)

// Filter narrows identity listings.
type Filter struct {
	EnclaveID    shared.ID
	Type         *sourcetype.IdentityType
	Owner        *string // empty string matches unowned identities
	LinkedSystem *string
	Search       string // case-insensitive match on display name and fingerprint
	MinRisk      *int
	MaxRisk      *int
}

// Repository stores resolved identities. (enclave, fingerprint) is unique at
// the storage level; concurrent inserts for the same fingerprint surface as
// ErrFingerprintExists so the caller can re-fetch and merge.
type Repository interface {
	// Create inserts a new identity. Returns ErrFingerprintExists when
	// another identity with the same fingerprint already exists in the
	// enclave.
	Create(ctx context.Context, ident *Identity) error

	// GetByID returns an identity by ID within an enclave.
	GetByID(ctx context.Context, enclaveID, id shared.ID) (*Identity, error)

	// GetByFingerprint returns the identity carrying the fingerprint, or
	// ErrIdentityNotFound.
	GetByFingerprint(ctx context.Context, enclaveID shared.ID, fingerprint string) (*Identity, error)

	// Update persists changes to an existing identity.
	Update(ctx context.Context, ident *Identity) error

	// Delete removes an identity and its provenance links.
	Delete(ctx context.Context, enclaveID, id shared.ID) error

	// List returns identities matching the filter.
	List(ctx context.Context, filter Filter, p pagination.Pagination, sort *pagination.SortOption) (pagination.Result[*Identity], error)

	// AddProvenance links an identity to a finding. Linking an already
	// linked (identity, finding) pair is a no-op, not an error.
	AddProvenance(ctx context.Context, link *ProvenanceLink) error

	// ListProvenance returns an identity's provenance links, oldest first.
	ListProvenance(ctx context.Context, enclaveID, identityID shared.ID, p pagination.Pagination) (pagination.Result[*ProvenanceLink], error)

	// CountByType returns identity counts per identity type in an enclave.
	CountByType(ctx context.Context, enclaveID shared.ID) (map[sourcetype.IdentityType]int, error)
}
