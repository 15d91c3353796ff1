// Package sourcetype defines the source-type families a connector can emit
// and everything keyed off them: the fingerprint formula, the raw-to-normalized
// attribute mapping, and the derived identity type. Keeping these in one table
// means adding a family is a single entry instead of scattered type switches.
package sourcetype

import (
	"errors"
	"fmt"
	"strings"
)

// SourceType identifies the family of a raw record.
type SourceType string

// Known source types.
const (
	ADServiceAccount SourceType = "ad_svc_acct"
	ADCSCertificate  SourceType = "adcs_cert"
)

// IdentityType is the normalized identity classification derived from a
// source type.
type IdentityType string

// Known identity types.
const (
	IdentityServiceAccount IdentityType = "svc_acct"
	IdentityCertificate    IdentityType = "cert"
)

// ErrUnknownSourceType is returned for source types with no registered family.
var ErrUnknownSourceType = errors.New("unknown source type")

// ErrMissingKeyAttribute is returned when a raw record lacks the attribute(s)
// needed to compute its fingerprint. The caller must treat the record as
// unresolved rather than skip fingerprinting silently.
var ErrMissingKeyAttribute = errors.New("missing key attribute")

// MissingKeyError builds an ErrMissingKeyAttribute naming the absent field.
func MissingKeyError(sourceType SourceType, attr string) error {
	return fmt.Errorf("%w: %s requires %q", ErrMissingKeyAttribute, sourceType, attr)
}

// Family holds everything the pipeline needs to know about one source type.
type Family struct {
	Source   SourceType
	Identity IdentityType

	// KeyAttributes are the raw attribute names forming the fingerprint
	// key material, in formula order.
	KeyAttributes []string

	fingerprint func(raw map[string]any) (string, error)
	normalize   func(raw map[string]any) map[string]any
	displayName func(raw map[string]any) string
}

var families = map[SourceType]Family{
	ADServiceAccount: {
		Source:        ADServiceAccount,
		Identity:      IdentityServiceAccount,
		KeyAttributes: []string{"objectSid"},
		fingerprint:   svcAcctFingerprint,
		normalize:     svcAcctNormalize,
		displayName:   svcAcctDisplayName,
	},
	ADCSCertificate: {
		Source:        ADCSCertificate,
		Identity:      IdentityCertificate,
		KeyAttributes: []string{"issuer_dn", "serial_number"},
		fingerprint:   certFingerprint,
		normalize:     certNormalize,
		displayName:   certDisplayName,
	},
}

// Lookup returns the family for a source type.
func Lookup(st SourceType) (Family, bool) {
	f, ok := families[st]
	return f, ok
}

// All returns every registered family.
func All() []Family {
	out := make([]Family, 0, len(families))
	for _, f := range families {
		out = append(out, f)
	}
	return out
}

// IsValid reports whether st has a registered family.
func IsValid(st SourceType) bool {
	_, ok := families[st]
	return ok
}

// Fingerprint deterministically maps a raw record to its identity key of the
// form "<family>:<key-material>". Pure: identical input yields identical
// output on every call.
func Fingerprint(st SourceType, raw map[string]any) (string, error) {
	f, ok := families[st]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSourceType, st)
	}
	return f.fingerprint(raw)
}

// Normalize maps raw attributes to the identity attribute snapshot for the
// given source type. Absent raw values are omitted so they cannot clobber
// previously recorded attributes during a merge.
func Normalize(st SourceType, raw map[string]any) (map[string]any, error) {
	f, ok := families[st]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, st)
	}
	return f.normalize(raw), nil
}

// DisplayName derives the identity display name from raw attributes.
func DisplayName(st SourceType, raw map[string]any) string {
	f, ok := families[st]
	if !ok {
		return ""
	}
	return f.displayName(raw)
}

// --- AD service account family ---

func svcAcctFingerprint(raw map[string]any) (string, error) {
	sid := stringAttr(raw, "objectSid")
	if sid == "" {
		return "", MissingKeyError(ADServiceAccount, "objectSid")
	}
	return string(ADServiceAccount) + ":" + sid, nil
}

func svcAcctNormalize(raw map[string]any) map[string]any {
	out := make(map[string]any)
	putString(out, "sam_account_name", raw, "sAMAccountName")
	putString(out, "dn", raw, "distinguishedName")
	putString(out, "object_sid", raw, "objectSid")
	if spn, ok := raw["servicePrincipalName"]; ok && spn != nil {
		out["spn"] = spn
	}
	if enabled, ok := raw["userAccountControl_enabled"]; ok {
		out["enabled"] = enabled
	} else {
		out["enabled"] = true
	}
	putString(out, "password_last_set", raw, "pwdLastSet")
	putString(out, "last_logon", raw, "lastLogonTimestamp")
	return out
}

func svcAcctDisplayName(raw map[string]any) string {
	if sam := stringAttr(raw, "sAMAccountName"); sam != "" {
		return sam
	}
	if cn := stringAttr(raw, "cn"); cn != "" {
		return cn
	}
	return "Unknown"
}

// --- ADCS certificate family ---

func certFingerprint(raw map[string]any) (string, error) {
	issuer := stringAttr(raw, "issuer_dn")
	if issuer == "" {
		return "", MissingKeyError(ADCSCertificate, "issuer_dn")
	}
	serial := stringAttr(raw, "serial_number")
	if serial == "" {
		return "", MissingKeyError(ADCSCertificate, "serial_number")
	}
	return string(ADCSCertificate) + ":" + issuer + "|" + serial, nil
}

func certNormalize(raw map[string]any) map[string]any {
	out := make(map[string]any)
	putString(out, "subject_dn", raw, "subject_dn")
	putString(out, "issuer_dn", raw, "issuer_dn")
	putString(out, "serial_number", raw, "serial_number")
	putString(out, "not_before", raw, "not_before")
	putString(out, "not_after", raw, "not_after")
	putString(out, "template_name", raw, "template_name")
	putString(out, "thumbprint", raw, "thumbprint")
	putString(out, "key_usage", raw, "key_usage")
	if san, ok := raw["san"]; ok && san != nil {
		out["san"] = san
	}
	return out
}

func certDisplayName(raw map[string]any) string {
	if subject := stringAttr(raw, "subject_dn"); subject != "" {
		return subject
	}
	if cn := stringAttr(raw, "common_name"); cn != "" {
		return cn
	}
	return "Unknown Cert"
}

// --- helpers ---

func stringAttr(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func putString(out map[string]any, outKey string, raw map[string]any, rawKey string) {
	if s := stringAttr(raw, rawKey); s != "" {
		out[outKey] = s
	}
}
