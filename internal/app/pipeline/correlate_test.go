package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/logger"
)

func TestSuggestLinkedSystem_CertSANStrings(t *testing.T) {
	got := SuggestLinkedSystem(sourcetype.IdentityCertificate, map[string]any{
		"san": []any{"web01.corp.example.com", "web01"},
	})
	assert.Equal(t, "web01.corp.example.com", got)
}

func TestSuggestLinkedSystem_CertSANStringSlice(t *testing.T) {
	got := SuggestLinkedSystem(sourcetype.IdentityCertificate, map[string]any{
		"san": []string{"api.corp.example.com"},
	})
	assert.Equal(t, "api.corp.example.com", got)
}

func TestSuggestLinkedSystem_CertSANObjects(t *testing.T) {
	// JSON exports with typed SAN entries
	got := SuggestLinkedSystem(sourcetype.IdentityCertificate, map[string]any{
		"san": []any{
			map[string]any{"type": "rfc822Name", "value": "admin@corp.example.com"},
			map[string]any{"type": "dnsName", "value": "db01.corp.example.com"},
		},
	})
	assert.Equal(t, "db01.corp.example.com", got)
}

func TestSuggestLinkedSystem_CertFallsBackToSubjectCN(t *testing.T) {
	got := SuggestLinkedSystem(sourcetype.IdentityCertificate, map[string]any{
		"san":        []string{},
		"subject_dn": "CN=web01.corp.example.com, OU=Servers, DC=corp, DC=example, DC=com",
	})
	assert.Equal(t, "web01.corp.example.com", got)
}

func TestSuggestLinkedSystem_CertNonHostnameCNIgnored(t *testing.T) {
	// a person or template shaped CN carries no dot and is not a system
	got := SuggestLinkedSystem(sourcetype.IdentityCertificate, map[string]any{
		"subject_dn": "CN=WebServerTemplate, OU=PKI, DC=corp",
	})
	assert.Empty(t, got)
}

func TestSuggestLinkedSystem_ServiceAccountSPN(t *testing.T) {
	got := SuggestLinkedSystem(sourcetype.IdentityServiceAccount, map[string]any{
		"spn": []string{"HTTP/web01.corp.example.com:8080", "HTTP/web01.corp.example.com"},
	})
	assert.Equal(t, "web01.corp.example.com", got)
}

func TestSuggestLinkedSystem_ServiceAccountSPNAnySlice(t *testing.T) {
	got := SuggestLinkedSystem(sourcetype.IdentityServiceAccount, map[string]any{
		"spn": []any{"MSSQLSvc/sql01.corp.example.com:1433"},
	})
	assert.Equal(t, "sql01.corp.example.com", got)
}

func TestSuggestLinkedSystem_ServiceAccountSingleStringSPN(t *testing.T) {
	got := SuggestLinkedSystem(sourcetype.IdentityServiceAccount, map[string]any{
		"spn": "HOST/app02.corp.example.com",
	})
	assert.Equal(t, "app02.corp.example.com", got)
}

func TestSuggestLinkedSystem_MalformedSPNSkipped(t *testing.T) {
	got := SuggestLinkedSystem(sourcetype.IdentityServiceAccount, map[string]any{
		"spn": []string{"no-slash-here", "HTTP/web01.corp.example.com"},
	})
	assert.Equal(t, "web01.corp.example.com", got)
}

func TestSuggestLinkedSystem_NothingToSuggest(t *testing.T) {
	assert.Empty(t, SuggestLinkedSystem(sourcetype.IdentityServiceAccount, map[string]any{}))
	assert.Empty(t, SuggestLinkedSystem(sourcetype.IdentityCertificate, map[string]any{}))
	assert.Empty(t, SuggestLinkedSystem(sourcetype.IdentityType("other"), map[string]any{
		"spn": []string{"HTTP/web01.corp.example.com"},
	}))
}

func TestCorrelator_FillsMissingLinkedSystems(t *testing.T) {
	repo := newMockIdentityRepo()
	enclaveID := shared.NewID()
	seen := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	unlinked, err := identity.New(enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1105",
		sourcetype.IdentityServiceAccount, "svc-web",
		map[string]any{"spn": []string{"HTTP/web01.corp.example.com"}}, seen)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), unlinked))

	assigned, err := identity.New(enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1106",
		sourcetype.IdentityServiceAccount, "svc-sql",
		map[string]any{"spn": []string{"MSSQLSvc/sql01.corp.example.com"}}, seen)
	require.NoError(t, err)
	assigned.SetLinkedSystem("operator-assigned")
	require.NoError(t, repo.Create(context.Background(), assigned))

	hopeless, err := identity.New(enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1107",
		sourcetype.IdentityServiceAccount, "svc-batch",
		map[string]any{}, seen)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), hopeless))

	correlator := NewCorrelator(repo, logger.NewDefault())
	updated, err := correlator.Correlate(context.Background(), enclaveID)
	require.NoError(t, err)

	assert.Equal(t, 1, updated)
	assert.Equal(t, "web01.corp.example.com", unlinked.LinkedSystem())
	// an operator-assigned value always wins
	assert.Equal(t, "operator-assigned", assigned.LinkedSystem())
	assert.Empty(t, hopeless.LinkedSystem())
}

func TestCorrelator_ReassessesUpdatedIdentities(t *testing.T) {
	repo := newMockIdentityRepo()
	enclaveID := shared.NewID()

	ident, err := identity.New(enclaveID, "ad_svc_acct:S-1-5-21-1-2-3-1105",
		sourcetype.IdentityServiceAccount, "svc-web",
		map[string]any{
			"spn":               []string{"HTTP/web01.corp.example.com"},
			"enabled":           true,
			"password_last_set": time.Now().UTC().Format(time.RFC3339),
		}, time.Now().UTC())
	require.NoError(t, err)
	ident.Reassess(time.Now().UTC())
	before := ident.RiskScore()
	require.NoError(t, repo.Create(context.Background(), ident))

	correlator := NewCorrelator(repo, logger.NewDefault())
	updated, err := correlator.Correlate(context.Background(), enclaveID)
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	// filling the linked system drops the no_linked_system factor
	assert.Less(t, ident.RiskScore(), before)
	assert.Equal(t, 1, repo.updates)
}

func TestCorrelator_EmptyEnclave(t *testing.T) {
	repo := newMockIdentityRepo()
	correlator := NewCorrelator(repo, logger.NewDefault())

	updated, err := correlator.Correlate(context.Background(), shared.NewID())
	require.NoError(t, err)
	assert.Zero(t, updated)
}
