package app

import (
	"context"
	"fmt"

	"github.com/opennhi/api/pkg/domain/enclave"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
)

// EnclaveService handles enclave business logic. Enclaves are the tenancy
// root: every connector, job, finding, and identity belongs to exactly one.
type EnclaveService struct {
	repo   enclave.Repository
	logger *logger.Logger
}

// NewEnclaveService creates a new enclave service.
func NewEnclaveService(repo enclave.Repository, log *logger.Logger) *EnclaveService {
	return &EnclaveService{repo: repo, logger: log}
}

// CreateEnclaveInput represents input for creating an enclave.
type CreateEnclaveInput struct {
	Name        string `validate:"required,min=1,max=255"`
	Description string `validate:"max=1000"`
}

// UpdateEnclaveInput represents input for updating an enclave.
type UpdateEnclaveInput struct {
	Name        *string `validate:"omitempty,min=1,max=255"`
	Description *string `validate:"omitempty,max=1000"`
}

// CreateEnclave creates a new enclave.
func (s *EnclaveService) CreateEnclave(ctx context.Context, input CreateEnclaveInput) (*enclave.Enclave, error) {
	enc, err := enclave.New(input.Name, input.Description)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, enc); err != nil {
		return nil, err
	}

	s.logger.Info("enclave created", "enclave_id", enc.ID(), "name", enc.Name())
	return enc, nil
}

// GetEnclave retrieves an enclave by ID.
func (s *EnclaveService) GetEnclave(ctx context.Context, id string) (*enclave.Enclave, error) {
	enclaveID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid enclave ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, enclaveID)
}

// UpdateEnclave applies a partial update to an enclave.
func (s *EnclaveService) UpdateEnclave(ctx context.Context, id string, input UpdateEnclaveInput) (*enclave.Enclave, error) {
	enclaveID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid enclave ID", shared.ErrValidation)
	}

	enc, err := s.repo.GetByID(ctx, enclaveID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if err := enc.Rename(*input.Name); err != nil {
			return nil, err
		}
	}
	if input.Description != nil {
		enc.UpdateDescription(*input.Description)
	}

	if err := s.repo.Update(ctx, enc); err != nil {
		return nil, err
	}
	return enc, nil
}

// DeleteEnclave removes an enclave and everything scoped to it.
func (s *EnclaveService) DeleteEnclave(ctx context.Context, id string) error {
	enclaveID, err := shared.IDFromString(id)
	if err != nil {
		return fmt.Errorf("%w: invalid enclave ID", shared.ErrValidation)
	}

	if err := s.repo.Delete(ctx, enclaveID); err != nil {
		return err
	}

	s.logger.Info("enclave deleted", "enclave_id", enclaveID)
	return nil
}

// ListEnclaves returns a page of enclaves ordered by name.
func (s *EnclaveService) ListEnclaves(ctx context.Context, page, perPage int) (pagination.Result[*enclave.Enclave], error) {
	return s.repo.List(ctx, pagination.New(page, perPage))
}
