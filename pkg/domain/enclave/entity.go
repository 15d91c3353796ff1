// Package enclave defines the tenant-scoping boundary. Every connector,
// finding, and identity belongs to exactly one enclave.
package enclave

import (
	"fmt"
	"time"

	"github.com/opennhi/api/pkg/domain/shared"
)

// Enclave is the tenancy root.
type Enclave struct {
	id          shared.ID
	name        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

// New creates an Enclave.
func New(name, description string) (*Enclave, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Enclave{
		id:          shared.NewID(),
		name:        name,
		description: description,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstitute recreates an Enclave from persistence.
func Reconstitute(id shared.ID, name, description string, createdAt, updatedAt time.Time) *Enclave {
	return &Enclave{
		id:          id,
		name:        name,
		description: description,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the enclave ID.
func (e *Enclave) ID() shared.ID { return e.id }

// Name returns the enclave name.
func (e *Enclave) Name() string { return e.name }

// Description returns the enclave description.
func (e *Enclave) Description() string { return e.description }

// CreatedAt returns the creation timestamp.
func (e *Enclave) CreatedAt() time.Time { return e.createdAt }

// UpdatedAt returns the last update timestamp.
func (e *Enclave) UpdatedAt() time.Time { return e.updatedAt }

// Rename updates the enclave name.
func (e *Enclave) Rename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	e.name = name
	e.updatedAt = time.Now().UTC()
	return nil
}

// UpdateDescription updates the enclave description.
func (e *Enclave) UpdateDescription(description string) {
	e.description = description
	e.updatedAt = time.Now().UTC()
}
