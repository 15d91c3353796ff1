package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opennhi/api/internal/metrics"
	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/logger"
)

// Stats summarizes one resolution pass.
type Stats struct {
	Resolved   int `json:"resolved"`
	Created    int `json:"created"`
	Merged     int `json:"merged"`
	Unresolved int `json:"unresolved"`
}

// Resolver turns raw findings into deduplicated identities. Each finding is
// fingerprinted, matched against existing identities in its enclave, and
// either merged into the match or materialized as a new identity. Every
// resolved finding leaves a provenance link behind.
type Resolver struct {
	identities identity.Repository
	logger     *logger.Logger
}

// NewResolver creates a Resolver.
func NewResolver(identities identity.Repository, log *logger.Logger) *Resolver {
	return &Resolver{identities: identities, logger: log}
}

// Resolve processes findings one at a time. A finding that cannot be
// fingerprinted is tallied as unresolved and skipped; it stays queryable by
// job but produces no identity. Re-running over the same findings yields the
// same identities with no duplicate provenance.
func (r *Resolver) Resolve(ctx context.Context, findings []*finding.Finding) (Stats, error) {
	var stats Stats

	for _, f := range findings {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		created, err := r.resolveOne(ctx, f)
		if err != nil {
			if errors.Is(err, sourcetype.ErrMissingKeyAttribute) {
				stats.Unresolved++
				metrics.UnresolvedFindingsTotal.WithLabelValues(
					f.EnclaveID().String(), string(f.SourceType())).Inc()
				r.logger.Warn("finding unresolved",
					"finding_id", f.ID(),
					"source_type", f.SourceType(),
					"error", err)
				continue
			}
			return stats, fmt.Errorf("resolve finding %s: %w", f.ID(), err)
		}

		stats.Resolved++
		outcome := "merged"
		if created {
			stats.Created++
			outcome = "created"
		} else {
			stats.Merged++
		}
		metrics.IdentitiesUpsertedTotal.WithLabelValues(f.EnclaveID().String(), outcome).Inc()
	}

	return stats, nil
}

// resolveOne upserts the identity for a single finding and records
// provenance. Reports whether a new identity was created.
func (r *Resolver) resolveOne(ctx context.Context, f *finding.Finding) (bool, error) {
	raw := f.RawAttributes()

	fingerprint, err := sourcetype.Fingerprint(f.SourceType(), raw)
	if err != nil {
		return false, err
	}

	attrs, err := sourcetype.Normalize(f.SourceType(), raw)
	if err != nil {
		return false, err
	}
	displayName := sourcetype.DisplayName(f.SourceType(), raw)

	ident, created, err := r.upsert(ctx, f, fingerprint, displayName, attrs)
	if err != nil {
		return false, err
	}

	link := identity.NewProvenanceLink(ident.ID(), f.ID(), f.JobID(), f.DiscoveredAt())
	if err := r.identities.AddProvenance(ctx, link); err != nil {
		return false, fmt.Errorf("add provenance: %w", err)
	}

	return created, nil
}

// upsert finds or creates the identity for a fingerprint. A create that loses
// a race to a concurrent insert falls back to merging into the winner.
func (r *Resolver) upsert(ctx context.Context, f *finding.Finding, fingerprint, displayName string, attrs map[string]any) (*identity.Identity, bool, error) {
	ident, err := r.identities.GetByFingerprint(ctx, f.EnclaveID(), fingerprint)
	switch {
	case err == nil:
		return ident, false, r.merge(ctx, ident, f, displayName, attrs)

	case errors.Is(err, identity.ErrIdentityNotFound):
		family, _ := sourcetype.Lookup(f.SourceType())
		ident, err = identity.New(f.EnclaveID(), fingerprint, family.Identity, displayName, attrs, f.DiscoveredAt())
		if err != nil {
			return nil, false, err
		}
		r.correlate(ident)
		ident.Reassess(nowUTC())

		err = r.identities.Create(ctx, ident)
		if err == nil {
			return ident, true, nil
		}
		if !errors.Is(err, identity.ErrFingerprintExists) {
			return nil, false, fmt.Errorf("create identity: %w", err)
		}

		// lost the race; the row exists now, merge into it
		ident, err = r.identities.GetByFingerprint(ctx, f.EnclaveID(), fingerprint)
		if err != nil {
			return nil, false, fmt.Errorf("refetch after conflict: %w", err)
		}
		return ident, false, r.merge(ctx, ident, f, displayName, attrs)

	default:
		return nil, false, fmt.Errorf("lookup fingerprint: %w", err)
	}
}

func (r *Resolver) merge(ctx context.Context, ident *identity.Identity, f *finding.Finding, displayName string, attrs map[string]any) error {
	ident.Absorb(displayName, attrs, f.DiscoveredAt())
	r.correlate(ident)
	ident.Reassess(nowUTC())
	if err := r.identities.Update(ctx, ident); err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

// correlate fills the linked system when empty. Operator-assigned values and
// previously correlated values are never replaced.
func (r *Resolver) correlate(ident *identity.Identity) {
	if ident.LinkedSystem() != "" {
		return
	}
	if suggestion := SuggestLinkedSystem(ident.Type(), ident.Attributes()); suggestion != "" {
		ident.FillLinkedSystem(suggestion)
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
