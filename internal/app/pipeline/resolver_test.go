package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
)

// mockIdentityRepo is an in-memory identity.Repository keyed by
// (enclave, fingerprint), mirroring the storage-level uniqueness.
type mockIdentityRepo struct {
	identities map[string]*identity.Identity // enclave|fingerprint
	links      []*identity.ProvenanceLink
	linked     map[string]bool // identity|finding

	// conflictWith, when set, makes the next Create lose the race: the
	// given identity is inserted as the winner and ErrFingerprintExists
	// is returned.
	conflictWith *identity.Identity

	creates int
	updates int
}

func newMockIdentityRepo() *mockIdentityRepo {
	return &mockIdentityRepo{
		identities: make(map[string]*identity.Identity),
		linked:     make(map[string]bool),
	}
}

func (m *mockIdentityRepo) key(enclaveID shared.ID, fingerprint string) string {
	return enclaveID.String() + "|" + fingerprint
}

func (m *mockIdentityRepo) Create(ctx context.Context, ident *identity.Identity) error {
	k := m.key(ident.EnclaveID(), ident.Fingerprint())
	if m.conflictWith != nil {
		m.identities[k] = m.conflictWith
		m.conflictWith = nil
		return identity.ErrFingerprintExists
	}
	if _, exists := m.identities[k]; exists {
		return identity.ErrFingerprintExists
	}
	m.identities[k] = ident
	m.creates++
	return nil
}

func (m *mockIdentityRepo) GetByID(ctx context.Context, enclaveID, id shared.ID) (*identity.Identity, error) {
	for _, ident := range m.identities {
		if ident.EnclaveID().Equals(enclaveID) && ident.ID().Equals(id) {
			return ident, nil
		}
	}
	return nil, identity.ErrIdentityNotFound
}

func (m *mockIdentityRepo) GetByFingerprint(ctx context.Context, enclaveID shared.ID, fingerprint string) (*identity.Identity, error) {
	ident, ok := m.identities[m.key(enclaveID, fingerprint)]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	return ident, nil
}

func (m *mockIdentityRepo) Update(ctx context.Context, ident *identity.Identity) error {
	m.identities[m.key(ident.EnclaveID(), ident.Fingerprint())] = ident
	m.updates++
	return nil
}

func (m *mockIdentityRepo) Delete(ctx context.Context, enclaveID, id shared.ID) error {
	for k, ident := range m.identities {
		if ident.EnclaveID().Equals(enclaveID) && ident.ID().Equals(id) {
			delete(m.identities, k)
			return nil
		}
	}
	return identity.ErrIdentityNotFound
}

func (m *mockIdentityRepo) List(ctx context.Context, filter identity.Filter, p pagination.Pagination, sort *pagination.SortOption) (pagination.Result[*identity.Identity], error) {
	data := make([]*identity.Identity, 0)
	for _, ident := range m.identities {
		if ident.EnclaveID().Equals(filter.EnclaveID) {
			data = append(data, ident)
		}
	}
	return pagination.NewResult(data, int64(len(data)), p), nil
}

func (m *mockIdentityRepo) AddProvenance(ctx context.Context, link *identity.ProvenanceLink) error {
	k := link.IdentityID().String() + "|" + link.FindingID().String()
	if m.linked[k] {
		return nil
	}
	m.linked[k] = true
	m.links = append(m.links, link)
	return nil
}

func (m *mockIdentityRepo) ListProvenance(ctx context.Context, enclaveID, identityID shared.ID, p pagination.Pagination) (pagination.Result[*identity.ProvenanceLink], error) {
	data := make([]*identity.ProvenanceLink, 0)
	for _, link := range m.links {
		if link.IdentityID().Equals(identityID) {
			data = append(data, link)
		}
	}
	return pagination.NewResult(data, int64(len(data)), p), nil
}

func (m *mockIdentityRepo) CountByType(ctx context.Context, enclaveID shared.ID) (map[sourcetype.IdentityType]int, error) {
	out := make(map[sourcetype.IdentityType]int)
	for _, ident := range m.identities {
		if ident.EnclaveID().Equals(enclaveID) {
			out[ident.Type()]++
		}
	}
	return out, nil
}

func mustFinding(t *testing.T, jobID, enclaveID shared.ID, st sourcetype.SourceType, raw map[string]any, discoveredAt time.Time) *finding.Finding {
	t.Helper()
	f, err := finding.New(jobID, shared.NewID(), enclaveID, st, raw, discoveredAt)
	require.NoError(t, err)
	return f
}

func TestResolve_CreatesIdentity(t *testing.T) {
	repo := newMockIdentityRepo()
	resolver := NewResolver(repo, logger.NewDefault())
	enclaveID := shared.NewID()

	f := mustFinding(t, shared.NewID(), enclaveID, sourcetype.ADServiceAccount, map[string]any{
		"objectSid":      "S-1-5-21-1-2-3-1105",
		"sAMAccountName": "svc-backup",
	}, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	stats, err := resolver.Resolve(context.Background(), []*finding.Finding{f})
	require.NoError(t, err)

	assert.Equal(t, Stats{Resolved: 1, Created: 1}, stats)

	ident, err := repo.GetByFingerprint(context.Background(), enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1105")
	require.NoError(t, err)
	assert.Equal(t, "svc-backup", ident.DisplayName())
	assert.Equal(t, sourcetype.IdentityServiceAccount, ident.Type())
	assert.Greater(t, ident.RiskScore(), 0)
	require.Len(t, repo.links, 1)
	assert.Equal(t, f.ID(), repo.links[0].FindingID())
	assert.Equal(t, ident.ID(), repo.links[0].IdentityID())
	// provenance orders by discovery, so the link carries the finding's
	// discovery timestamp rather than the resolution time
	assert.True(t, repo.links[0].LinkedAt().Equal(f.DiscoveredAt()))
}

func TestResolve_DeduplicatesOnFingerprint(t *testing.T) {
	repo := newMockIdentityRepo()
	resolver := NewResolver(repo, logger.NewDefault())
	enclaveID := shared.NewID()
	jobID := shared.NewID()

	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	findings := []*finding.Finding{
		mustFinding(t, jobID, enclaveID, sourcetype.ADServiceAccount, map[string]any{
			"objectSid":      "S-1-5-21-1-2-3-1105",
			"sAMAccountName": "svc-backup",
		}, base),
		mustFinding(t, jobID, enclaveID, sourcetype.ADServiceAccount, map[string]any{
			"objectSid":      "S-1-5-21-1-2-3-1105",
			"sAMAccountName": "svc-backup",
			"distinguishedName": "CN=svc-backup,DC=corp",
		}, base.Add(time.Hour)),
		mustFinding(t, jobID, enclaveID, sourcetype.ADServiceAccount, map[string]any{
			"objectSid":      "S-1-5-21-1-2-3-1105",
			"sAMAccountName": "svc-backup",
		}, base.Add(2*time.Hour)),
	}

	stats, err := resolver.Resolve(context.Background(), findings)
	require.NoError(t, err)

	assert.Equal(t, Stats{Resolved: 3, Created: 1, Merged: 2}, stats)
	assert.Len(t, repo.identities, 1)

	ident, err := repo.GetByFingerprint(context.Background(), enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1105")
	require.NoError(t, err)
	assert.Equal(t, base, ident.FirstSeen())
	assert.Equal(t, base.Add(2*time.Hour), ident.LastSeen())
	assert.Equal(t, "CN=svc-backup,DC=corp", ident.Attributes()["dn"])

	// one provenance link per finding
	assert.Len(t, repo.links, 3)
}

func TestResolve_RerunAddsNoDuplicateProvenance(t *testing.T) {
	repo := newMockIdentityRepo()
	resolver := NewResolver(repo, logger.NewDefault())
	enclaveID := shared.NewID()

	f := mustFinding(t, shared.NewID(), enclaveID, sourcetype.ADServiceAccount, map[string]any{
		"objectSid": "S-1-5-21-1-2-3-1105",
	}, time.Now().UTC())

	_, err := resolver.Resolve(context.Background(), []*finding.Finding{f})
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), []*finding.Finding{f})
	require.NoError(t, err)

	assert.Len(t, repo.identities, 1)
	assert.Len(t, repo.links, 1)
}

func TestResolve_MissingKeyAttributeIsUnresolved(t *testing.T) {
	repo := newMockIdentityRepo()
	resolver := NewResolver(repo, logger.NewDefault())
	enclaveID := shared.NewID()
	jobID := shared.NewID()

	findings := []*finding.Finding{
		mustFinding(t, jobID, enclaveID, sourcetype.ADServiceAccount, map[string]any{
			"sAMAccountName": "no-sid",
		}, time.Now().UTC()),
		mustFinding(t, jobID, enclaveID, sourcetype.ADServiceAccount, map[string]any{
			"objectSid": "S-1-5-21-1-2-3-1106",
		}, time.Now().UTC()),
	}

	stats, err := resolver.Resolve(context.Background(), findings)
	require.NoError(t, err)

	// the unresolved finding is skipped, the rest still resolve
	assert.Equal(t, Stats{Resolved: 1, Created: 1, Unresolved: 1}, stats)
	assert.Len(t, repo.identities, 1)
	assert.Len(t, repo.links, 1)
}

func TestResolve_CreateConflictFallsBackToMerge(t *testing.T) {
	repo := newMockIdentityRepo()
	resolver := NewResolver(repo, logger.NewDefault())
	enclaveID := shared.NewID()

	winner, err := identity.New(enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1105",
		sourcetype.IdentityServiceAccount, "svc-backup",
		map[string]any{"object_sid": "S-1-5-21-1-2-3-1105"}, time.Now().UTC())
	require.NoError(t, err)
	repo.conflictWith = winner

	f := mustFinding(t, shared.NewID(), enclaveID, sourcetype.ADServiceAccount, map[string]any{
		"objectSid":         "S-1-5-21-1-2-3-1105",
		"distinguishedName": "CN=svc-backup,DC=corp",
	}, time.Now().UTC())

	stats, err := resolver.Resolve(context.Background(), []*finding.Finding{f})
	require.NoError(t, err)

	// losing the insert race counts as a merge, not a create
	assert.Equal(t, Stats{Resolved: 1, Merged: 1}, stats)
	assert.Len(t, repo.identities, 1)

	merged, err := repo.GetByFingerprint(context.Background(), enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1105")
	require.NoError(t, err)
	assert.Equal(t, winner.ID(), merged.ID())
	assert.Equal(t, "CN=svc-backup,DC=corp", merged.Attributes()["dn"])
}

func TestResolve_CertificateCorrelatesLinkedSystem(t *testing.T) {
	repo := newMockIdentityRepo()
	resolver := NewResolver(repo, logger.NewDefault())
	enclaveID := shared.NewID()

	f := mustFinding(t, shared.NewID(), enclaveID, sourcetype.ADCSCertificate, map[string]any{
		"subject_dn":    "CN=web01.corp.example.com",
		"issuer_dn":     "CN=Corp CA",
		"serial_number": "AA01",
		"san":           []string{"web01.corp.example.com"},
	}, time.Now().UTC())

	stats, err := resolver.Resolve(context.Background(), []*finding.Finding{f})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	ident, err := repo.GetByFingerprint(context.Background(), enclaveID, "adcs_cert:CN=Corp CA|AA01")
	require.NoError(t, err)
	assert.Equal(t, "web01.corp.example.com", ident.LinkedSystem())
}

func TestResolve_ContextCancellation(t *testing.T) {
	repo := newMockIdentityRepo()
	resolver := NewResolver(repo, logger.NewDefault())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := mustFinding(t, shared.NewID(), shared.NewID(), sourcetype.ADServiceAccount, map[string]any{
		"objectSid": "S-1-5-21-1-2-3-1105",
	}, time.Now().UTC())

	_, err := resolver.Resolve(ctx, []*finding.Finding{f})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, repo.identities)
}
