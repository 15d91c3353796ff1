package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opennhi/api/internal/app/pipeline"
	"github.com/opennhi/api/internal/infra/redis"
	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
)

const identityStatsTTL = 5 * time.Minute

// IdentityStats summarizes an enclave's identity inventory.
type IdentityStats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// IdentityService handles identity read and enrichment operations.
// Identities are created and merged only by the resolution pipeline; this
// service layers operator enrichment and queries on top.
type IdentityService struct {
	repo       identity.Repository
	findings   finding.Repository
	correlator *pipeline.Correlator
	stats      *redis.Cache[IdentityStats]
	logger     *logger.Logger
}

// NewIdentityService creates a new identity service. statsCache may be nil
// when Redis is not configured; stats queries then always hit the database.
func NewIdentityService(repo identity.Repository, findings finding.Repository, statsCache *redis.Cache[IdentityStats], log *logger.Logger) *IdentityService {
	return &IdentityService{
		repo:       repo,
		findings:   findings,
		correlator: pipeline.NewCorrelator(repo, log),
		stats:      statsCache,
		logger:     log,
	}
}

// ListIdentitiesInput represents input for listing identities.
type ListIdentitiesInput struct {
	EnclaveID    shared.ID
	Type         string
	Owner        *string
	LinkedSystem *string
	Search       string
	MinRisk      *int `validate:"omitempty,min=0,max=100"`
	MaxRisk      *int `validate:"omitempty,min=0,max=100"`
	Sort         string
	Page         int
	PerPage      int
}

// EnrichIdentityInput represents operator-supplied enrichment. Nil fields are
// untouched; empty strings clear the value.
type EnrichIdentityInput struct {
	Owner        *string `validate:"omitempty,max=255"`
	LinkedSystem *string `validate:"omitempty,max=255"`
}

// GetIdentity retrieves an identity by ID within an enclave.
func (s *IdentityService) GetIdentity(ctx context.Context, enclaveID shared.ID, id string) (*identity.Identity, error) {
	identityID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid identity ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, enclaveID, identityID)
}

// ListIdentities returns a page of identities matching the filter.
func (s *IdentityService) ListIdentities(ctx context.Context, input ListIdentitiesInput, sort *pagination.SortOption) (pagination.Result[*identity.Identity], error) {
	filter := identity.Filter{
		EnclaveID:    input.EnclaveID,
		Owner:        input.Owner,
		LinkedSystem: input.LinkedSystem,
		Search:       input.Search,
		MinRisk:      input.MinRisk,
		MaxRisk:      input.MaxRisk,
	}

	if input.Type != "" {
		it := sourcetype.IdentityType(input.Type)
		switch it {
		case sourcetype.IdentityServiceAccount, sourcetype.IdentityCertificate:
			filter.Type = &it
		default:
			return pagination.Result[*identity.Identity]{}, fmt.Errorf("%w: invalid identity type %q", shared.ErrValidation, input.Type)
		}
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage), sort)
}

// EnrichIdentity applies operator-assigned owner and linked system, then
// re-scores. Enrichment always wins over pipeline correlation.
func (s *IdentityService) EnrichIdentity(ctx context.Context, enclaveID shared.ID, id string, input EnrichIdentityInput) (*identity.Identity, error) {
	ident, err := s.GetIdentity(ctx, enclaveID, id)
	if err != nil {
		return nil, err
	}

	if input.Owner != nil {
		ident.SetOwner(*input.Owner)
	}
	if input.LinkedSystem != nil {
		ident.SetLinkedSystem(*input.LinkedSystem)
	}
	ident.Reassess(time.Now().UTC())

	if err := s.repo.Update(ctx, ident); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx, enclaveID)
	return ident, nil
}

// DeleteIdentity removes an identity and its provenance links. The findings
// behind it are untouched; re-running their jobs recreates it.
func (s *IdentityService) DeleteIdentity(ctx context.Context, enclaveID shared.ID, id string) error {
	identityID, err := shared.IDFromString(id)
	if err != nil {
		return fmt.Errorf("%w: invalid identity ID", shared.ErrValidation)
	}

	if err := s.repo.Delete(ctx, enclaveID, identityID); err != nil {
		return err
	}

	s.invalidateStats(ctx, enclaveID)
	s.logger.Info("identity deleted", "identity_id", identityID, "enclave_id", enclaveID)
	return nil
}

// ListProvenance returns an identity's provenance links, oldest first.
func (s *IdentityService) ListProvenance(ctx context.Context, enclaveID shared.ID, id string, page, perPage int) (pagination.Result[*identity.ProvenanceLink], error) {
	identityID, err := shared.IDFromString(id)
	if err != nil {
		return pagination.Result[*identity.ProvenanceLink]{}, fmt.Errorf("%w: invalid identity ID", shared.ErrValidation)
	}

	// 404 before an empty page when the identity does not exist
	if _, err := s.repo.GetByID(ctx, enclaveID, identityID); err != nil {
		return pagination.Result[*identity.ProvenanceLink]{}, err
	}

	return s.repo.ListProvenance(ctx, enclaveID, identityID, pagination.New(page, perPage))
}

// ListFindings returns the findings that produced an identity, oldest first.
func (s *IdentityService) ListFindings(ctx context.Context, enclaveID shared.ID, id string, page, perPage int) (pagination.Result[*finding.Finding], error) {
	identityID, err := shared.IDFromString(id)
	if err != nil {
		return pagination.Result[*finding.Finding]{}, fmt.Errorf("%w: invalid identity ID", shared.ErrValidation)
	}

	if _, err := s.repo.GetByID(ctx, enclaveID, identityID); err != nil {
		return pagination.Result[*finding.Finding]{}, err
	}

	return s.findings.ListByIdentity(ctx, enclaveID, identityID, pagination.New(page, perPage))
}

// Stats returns identity counts for an enclave, cached briefly. A cache
// failure degrades to a database read.
func (s *IdentityService) Stats(ctx context.Context, enclaveID shared.ID) (IdentityStats, error) {
	if s.stats != nil {
		cached, err := s.stats.Get(ctx, enclaveID.String())
		if err == nil {
			return *cached, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.logger.Warn("identity stats cache read failed", "enclave_id", enclaveID, "error", err)
		}
	}

	counts, err := s.repo.CountByType(ctx, enclaveID)
	if err != nil {
		return IdentityStats{}, err
	}

	stats := IdentityStats{ByType: make(map[string]int, len(counts))}
	for it, n := range counts {
		stats.ByType[string(it)] = n
		stats.Total += n
	}

	if s.stats != nil {
		if err := s.stats.SetWithTTL(ctx, enclaveID.String(), stats, identityStatsTTL); err != nil {
			s.logger.Warn("identity stats cache write failed", "enclave_id", enclaveID, "error", err)
		}
	}
	return stats, nil
}

// Recorrelate re-runs linked-system correlation across the enclave's
// identities. Identities that already carry a linked system are skipped.
// Returns the number of identities updated.
func (s *IdentityService) Recorrelate(ctx context.Context, enclaveID shared.ID) (int, error) {
	updated, err := s.correlator.Correlate(ctx, enclaveID)
	if err != nil {
		return updated, err
	}
	if updated > 0 {
		s.invalidateStats(ctx, enclaveID)
	}
	s.logger.Info("identity correlation pass finished", "enclave_id", enclaveID, "updated", updated)
	return updated, nil
}

func (s *IdentityService) invalidateStats(ctx context.Context, enclaveID shared.ID) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Delete(ctx, enclaveID.String()); err != nil {
		s.logger.Warn("identity stats cache invalidation failed", "enclave_id", enclaveID, "error", err)
	}
}
