// Package risk scores identities from their normalized attributes. The rules
// live in a data table so the weights can be tested and extended without
// touching the normalization pipeline.
package risk

import (
	"time"

	"github.com/opennhi/api/pkg/domain/sourcetype"
)

// MaxScore is the score ceiling.
const MaxScore = 100

// Factor weights.
const (
	PointsNoOwner         = 25
	PointsNoLinkedSystem  = 15
	PointsCertExpired     = 40
	PointsCertExpiring30d = 30
	PointsCertExpiring90d = 15
	PointsCertNoSAN       = 10
	PointsStalePassword   = 20
	PointsDisabledAccount = 10
)

// Input is everything the scorer looks at. Attributes is the identity's
// current normalized snapshot.
type Input struct {
	IdentityType sourcetype.IdentityType
	Owner        string
	LinkedSystem string
	Attributes   map[string]any
	Now          time.Time
}

// Factor is one contributing rule with its point weight.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Assessment is the scoring result: clamped score plus the ordered factor
// breakdown used for display and audit.
type Assessment struct {
	Score   int      `json:"score"`
	Factors []Factor `json:"factors"`
}

type rule struct {
	name    string
	points  int
	applies func(Input) bool
}

// The rule order fixes the factor ordering in the breakdown. The three
// certificate expiry tiers are mutually exclusive: expired supersedes the
// 30-day tier, which supersedes the 90-day tier.
var rules = []rule{
	{"no_owner", PointsNoOwner, func(in Input) bool {
		return in.Owner == ""
	}},
	{"no_linked_system", PointsNoLinkedSystem, func(in Input) bool {
		return in.LinkedSystem == ""
	}},
	{"cert_expired", PointsCertExpired, func(in Input) bool {
		return in.IdentityType == sourcetype.IdentityCertificate && expiryTier(in) == tierExpired
	}},
	{"cert_expires_30d", PointsCertExpiring30d, func(in Input) bool {
		return in.IdentityType == sourcetype.IdentityCertificate && expiryTier(in) == tier30d
	}},
	{"cert_expires_90d", PointsCertExpiring90d, func(in Input) bool {
		return in.IdentityType == sourcetype.IdentityCertificate && expiryTier(in) == tier90d
	}},
	{"cert_no_san", PointsCertNoSAN, func(in Input) bool {
		return in.IdentityType == sourcetype.IdentityCertificate && !hasSAN(in.Attributes)
	}},
	{"stale_password", PointsStalePassword, func(in Input) bool {
		return in.IdentityType == sourcetype.IdentityServiceAccount && stalePassword(in)
	}},
	{"account_disabled", PointsDisabledAccount, func(in Input) bool {
		return in.IdentityType == sourcetype.IdentityServiceAccount && disabled(in.Attributes)
	}},
}

// Score evaluates the rule table against in. Pure: no I/O, no hidden state.
func Score(in Input) Assessment {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	var out Assessment
	for _, r := range rules {
		if r.applies(in) {
			out.Factors = append(out.Factors, Factor{Name: r.name, Points: r.points})
			out.Score += r.points
		}
	}
	if out.Score > MaxScore {
		out.Score = MaxScore
	}
	return out
}

type tier int

const (
	tierNone tier = iota
	tierExpired
	tier30d
	tier90d
)

func expiryTier(in Input) tier {
	notAfter, ok := parseTime(in.Attributes["not_after"])
	if !ok {
		return tierNone
	}
	switch {
	case notAfter.Before(in.Now):
		return tierExpired
	case notAfter.Before(in.Now.Add(30 * 24 * time.Hour)):
		return tier30d
	case notAfter.Before(in.Now.Add(90 * 24 * time.Hour)):
		return tier90d
	default:
		return tierNone
	}
}

func hasSAN(attrs map[string]any) bool {
	v, ok := attrs["san"]
	if !ok || v == nil {
		return false
	}
	switch s := v.(type) {
	case []any:
		return len(s) > 0
	case []string:
		return len(s) > 0
	case string:
		return s != ""
	default:
		return true
	}
}

func stalePassword(in Input) bool {
	lastSet, ok := parseTime(in.Attributes["password_last_set"])
	if !ok {
		// Never set or unknown counts as stale.
		return true
	}
	return lastSet.Before(in.Now.Add(-365 * 24 * time.Hour))
}

func disabled(attrs map[string]any) bool {
	v, ok := attrs["enabled"]
	if !ok {
		return false
	}
	enabled, isBool := v.(bool)
	return isBool && !enabled
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		if t == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
