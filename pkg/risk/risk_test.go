package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/sourcetype"
)

var scoreNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func factorNames(a Assessment) []string {
	names := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		names = append(names, f.Name)
	}
	return names
}

func TestScore_OwnershipFactors(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityServiceAccount,
		Attributes: map[string]any{
			"enabled":           true,
			"password_last_set": scoreNow.Add(-24 * time.Hour).Format(time.RFC3339),
		},
		Now: scoreNow,
	})

	assert.Equal(t, []string{"no_owner", "no_linked_system"}, factorNames(a))
	assert.Equal(t, PointsNoOwner+PointsNoLinkedSystem, a.Score)
}

func TestScore_OwnedAndLinkedHasNoOwnershipFactors(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityServiceAccount,
		Owner:        "platform-team",
		LinkedSystem: "web01.corp.example.com",
		Attributes: map[string]any{
			"enabled":           true,
			"password_last_set": scoreNow.Add(-24 * time.Hour).Format(time.RFC3339),
		},
		Now: scoreNow,
	})

	assert.Empty(t, a.Factors)
	assert.Equal(t, 0, a.Score)
}

func TestScore_CertExpiryTiers(t *testing.T) {
	tests := []struct {
		name       string
		notAfter   string
		wantFactor string
		wantPoints int
	}{
		{"expired", scoreNow.Add(-time.Hour).Format(time.RFC3339), "cert_expired", PointsCertExpired},
		{"within 30 days", scoreNow.Add(10 * 24 * time.Hour).Format(time.RFC3339), "cert_expires_30d", PointsCertExpiring30d},
		{"within 90 days", scoreNow.Add(60 * 24 * time.Hour).Format(time.RFC3339), "cert_expires_90d", PointsCertExpiring90d},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Score(Input{
				IdentityType: sourcetype.IdentityCertificate,
				Owner:        "pki-team",
				LinkedSystem: "web01",
				Attributes: map[string]any{
					"not_after": tt.notAfter,
					"san":       []string{"web01.corp.example.com"},
				},
				Now: scoreNow,
			})

			// the three tiers are mutually exclusive
			require.Equal(t, []string{tt.wantFactor}, factorNames(a))
			assert.Equal(t, tt.wantPoints, a.Score)
		})
	}
}

func TestScore_CertFarExpiryNoTier(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityCertificate,
		Owner:        "pki-team",
		LinkedSystem: "web01",
		Attributes: map[string]any{
			"not_after": scoreNow.Add(200 * 24 * time.Hour).Format(time.RFC3339),
			"san":       []string{"web01.corp.example.com"},
		},
		Now: scoreNow,
	})
	assert.Empty(t, a.Factors)
}

func TestScore_CertNoSAN(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityCertificate,
		Owner:        "pki-team",
		LinkedSystem: "web01",
		Attributes: map[string]any{
			"not_after": scoreNow.Add(200 * 24 * time.Hour).Format(time.RFC3339),
			"san":       []string{},
		},
		Now: scoreNow,
	})
	assert.Equal(t, []string{"cert_no_san"}, factorNames(a))
	assert.Equal(t, PointsCertNoSAN, a.Score)
}

func TestScore_StalePassword(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityServiceAccount,
		Owner:        "db-team",
		LinkedSystem: "sql01",
		Attributes: map[string]any{
			"enabled":           true,
			"password_last_set": scoreNow.Add(-400 * 24 * time.Hour).Format(time.RFC3339),
		},
		Now: scoreNow,
	})
	assert.Equal(t, []string{"stale_password"}, factorNames(a))
}

func TestScore_MissingPasswordLastSetCountsAsStale(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityServiceAccount,
		Owner:        "db-team",
		LinkedSystem: "sql01",
		Attributes:   map[string]any{"enabled": true},
		Now:          scoreNow,
	})
	assert.Contains(t, factorNames(a), "stale_password")
}

func TestScore_AccountDisabled(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityServiceAccount,
		Owner:        "db-team",
		LinkedSystem: "sql01",
		Attributes: map[string]any{
			"enabled":           false,
			"password_last_set": scoreNow.Add(-24 * time.Hour).Format(time.RFC3339),
		},
		Now: scoreNow,
	})
	assert.Equal(t, []string{"account_disabled"}, factorNames(a))
}

func TestScore_DisabledRequiresBoolFalse(t *testing.T) {
	// "false" as a string is not a disabled marker
	a := Score(Input{
		IdentityType: sourcetype.IdentityServiceAccount,
		Owner:        "db-team",
		LinkedSystem: "sql01",
		Attributes: map[string]any{
			"enabled":           "false",
			"password_last_set": scoreNow.Add(-24 * time.Hour).Format(time.RFC3339),
		},
		Now: scoreNow,
	})
	assert.NotContains(t, factorNames(a), "account_disabled")
}

func TestScore_ClampedAtMax(t *testing.T) {
	// every certificate factor at once: 25+15+40+10 = 90, still under the
	// ceiling, so stack a worst-case service account instead
	a := Score(Input{
		IdentityType: sourcetype.IdentityCertificate,
		Attributes: map[string]any{
			"not_after": scoreNow.Add(-time.Hour).Format(time.RFC3339),
		},
		Now: scoreNow,
	})
	assert.Equal(t, 90, a.Score)
	assert.LessOrEqual(t, a.Score, MaxScore)
}

func TestScore_ServiceAccountRulesIgnoreCerts(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityCertificate,
		Owner:        "pki-team",
		LinkedSystem: "web01",
		Attributes: map[string]any{
			"not_after": scoreNow.Add(200 * 24 * time.Hour).Format(time.RFC3339),
			"san":       []string{"web01"},
			"enabled":   false,
		},
		Now: scoreNow,
	})
	assert.NotContains(t, factorNames(a), "account_disabled")
	assert.NotContains(t, factorNames(a), "stale_password")
}

func TestScore_ZeroNowDefaultsToCurrentTime(t *testing.T) {
	a := Score(Input{
		IdentityType: sourcetype.IdentityCertificate,
		Owner:        "pki-team",
		LinkedSystem: "web01",
		Attributes: map[string]any{
			"not_after": "2001-01-01T00:00:00Z",
			"san":       []string{"web01"},
		},
	})
	assert.Equal(t, []string{"cert_expired"}, factorNames(a))
}

func TestParseTime_Layouts(t *testing.T) {
	for _, s := range []string{
		"2026-06-01T12:00:00Z",
		"2026-06-01T12:00:00.123Z",
		"2026-06-01T12:00:00",
		"2026-06-01 12:00:00",
		"2026-06-01",
	} {
		_, ok := parseTime(s)
		assert.True(t, ok, "layout %q", s)
	}

	_, ok := parseTime("")
	assert.False(t, ok)
	_, ok = parseTime("not a time")
	assert.False(t, ok)
	_, ok = parseTime(nil)
	assert.False(t, ok)
	_, ok = parseTime((*time.Time)(nil))
	assert.False(t, ok)

	parsed, ok := parseTime(scoreNow)
	require.True(t, ok)
	assert.Equal(t, scoreNow, parsed)
}
