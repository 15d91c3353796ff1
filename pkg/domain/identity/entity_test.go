package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
)

func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	ident, err := New(
		shared.NewID(),
		"ad_svc_acct:S-1-5-21-1-2-3-1105",
		sourcetype.IdentityServiceAccount,
		"svc-backup",
		map[string]any{
			"sam_account_name": "svc-backup",
			"object_sid":       "S-1-5-21-1-2-3-1105",
			"enabled":          true,
		},
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return ident
}

func TestNew_Validation(t *testing.T) {
	_, err := New(shared.ID{}, "fp", sourcetype.IdentityServiceAccount, "x", nil, time.Time{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.NewID(), "", sourcetype.IdentityServiceAccount, "x", nil, time.Time{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNew_SeenAtSeedsBothTimestamps(t *testing.T) {
	seen := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	ident, err := New(shared.NewID(), "fp", sourcetype.IdentityCertificate, "x", nil, seen)
	require.NoError(t, err)
	assert.Equal(t, seen, ident.FirstSeen())
	assert.Equal(t, seen, ident.LastSeen())
}

func TestAbsorb_NewValuesWin(t *testing.T) {
	ident := newTestIdentity(t)

	ident.Absorb("svc-backup-renamed", map[string]any{
		"sam_account_name": "svc-backup-renamed",
		"dn":               "CN=svc-backup,DC=corp",
	}, ident.LastSeen().Add(time.Hour))

	attrs := ident.Attributes()
	assert.Equal(t, "svc-backup-renamed", ident.DisplayName())
	assert.Equal(t, "svc-backup-renamed", attrs["sam_account_name"])
	assert.Equal(t, "CN=svc-backup,DC=corp", attrs["dn"])
	// keys absent from the new snapshot keep their stored values
	assert.Equal(t, "S-1-5-21-1-2-3-1105", attrs["object_sid"])
}

func TestAbsorb_NilValuesSkipped(t *testing.T) {
	ident := newTestIdentity(t)

	ident.Absorb("", map[string]any{"sam_account_name": nil}, ident.LastSeen())

	assert.Equal(t, "svc-backup", ident.Attributes()["sam_account_name"])
}

func TestAbsorb_EmptyDisplayNameKeepsCurrent(t *testing.T) {
	ident := newTestIdentity(t)
	ident.Absorb("", map[string]any{}, ident.LastSeen())
	assert.Equal(t, "svc-backup", ident.DisplayName())
}

func TestAbsorb_SeenWindow(t *testing.T) {
	ident := newTestIdentity(t)
	first := ident.FirstSeen()
	last := ident.LastSeen()

	// a later sighting extends lastSeen only
	later := last.Add(48 * time.Hour)
	ident.Absorb("", nil, later)
	assert.Equal(t, first, ident.FirstSeen())
	assert.Equal(t, later, ident.LastSeen())

	// an earlier sighting (backfill) extends firstSeen only
	earlier := first.Add(-48 * time.Hour)
	ident.Absorb("", nil, earlier)
	assert.Equal(t, earlier, ident.FirstSeen())
	assert.Equal(t, later, ident.LastSeen())
}

func TestAbsorb_StaleSnapshotCannotRegressAttributes(t *testing.T) {
	ident := newTestIdentity(t)
	last := ident.LastSeen()

	// a backfilled snapshot older than the last sighting fills gaps only
	ident.Absorb("svc-backup-old", map[string]any{
		"sam_account_name": "svc-backup-old",
		"dn":               "CN=svc-backup,DC=corp",
	}, last.Add(-24*time.Hour))

	attrs := ident.Attributes()
	assert.Equal(t, "svc-backup", ident.DisplayName())
	assert.Equal(t, "svc-backup", attrs["sam_account_name"])
	// keys the identity never had are still absorbed
	assert.Equal(t, "CN=svc-backup,DC=corp", attrs["dn"])
	assert.Equal(t, last.Add(-24*time.Hour), ident.FirstSeen())
	assert.Equal(t, last, ident.LastSeen())
}

func TestAbsorb_DoesNotTouchOwnerOrLinkedSystem(t *testing.T) {
	ident := newTestIdentity(t)
	ident.SetOwner("platform-team")
	ident.SetLinkedSystem("web01.corp.example.com")

	ident.Absorb("new-name", map[string]any{"enabled": false}, ident.LastSeen().Add(time.Hour))

	assert.Equal(t, "platform-team", ident.Owner())
	assert.Equal(t, "web01.corp.example.com", ident.LinkedSystem())
}

func TestFillLinkedSystem(t *testing.T) {
	ident := newTestIdentity(t)

	assert.False(t, ident.FillLinkedSystem(""))
	assert.Empty(t, ident.LinkedSystem())

	assert.True(t, ident.FillLinkedSystem("web01.corp.example.com"))
	assert.Equal(t, "web01.corp.example.com", ident.LinkedSystem())

	// an existing value is never replaced
	assert.False(t, ident.FillLinkedSystem("other.corp.example.com"))
	assert.Equal(t, "web01.corp.example.com", ident.LinkedSystem())
}

func TestSetOwner_EmptyClears(t *testing.T) {
	ident := newTestIdentity(t)
	ident.SetOwner("platform-team")
	assert.Equal(t, "platform-team", ident.Owner())
	ident.SetOwner("")
	assert.Empty(t, ident.Owner())
}

func TestReassess_OwnershipChangesScore(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	ident := newTestIdentity(t)
	ident.Absorb("", map[string]any{
		"password_last_set": now.Add(-24 * time.Hour).Format(time.RFC3339),
	}, ident.LastSeen())

	ident.Reassess(now)
	unowned := ident.RiskScore()
	require.Greater(t, unowned, 0)

	names := make([]string, 0)
	for _, f := range ident.RiskFactors() {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "no_owner")

	ident.SetOwner("platform-team")
	ident.SetLinkedSystem("web01")
	ident.Reassess(now)
	assert.Less(t, ident.RiskScore(), unowned)
}

func TestAttributesReturnsCopy(t *testing.T) {
	ident := newTestIdentity(t)
	attrs := ident.Attributes()
	attrs["object_sid"] = "tampered"
	assert.Equal(t, "S-1-5-21-1-2-3-1105", ident.Attributes()["object_sid"])
}

func TestReconstitute_RoundTrip(t *testing.T) {
	id := shared.NewID()
	enclaveID := shared.NewID()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	ident := Reconstitute(
		id, enclaveID,
		"adcs_cert:CN=CA|AA01",
		sourcetype.IdentityCertificate,
		"CN=web01",
		nil,
		"pki-team", "web01",
		40, nil,
		first, last, first, last,
	)

	assert.Equal(t, id, ident.ID())
	assert.Equal(t, enclaveID, ident.EnclaveID())
	assert.Equal(t, sourcetype.IdentityCertificate, ident.Type())
	assert.Equal(t, "pki-team", ident.Owner())
	assert.Equal(t, 40, ident.RiskScore())
	assert.NotNil(t, ident.Attributes())
}
