package connector

import (
	"fmt"
	"sort"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
)

// TypeCode identifies a connector implementation.
type TypeCode string

// Registered connector types.
const (
	TypeADLDAP     TypeCode = "ad_ldap"
	TypeADCSFile   TypeCode = "adcs_file"
	TypeADCSRemote TypeCode = "adcs_remote"
)

// TypeDescriptor is the static registry entry for one connector type:
// metadata, config schema, and the source-type family it produces. The
// family in turn carries the fingerprint formula and normalization mapping,
// so everything type-specific hangs off this one table.
type TypeDescriptor struct {
	Code           TypeCode
	Name           string
	Description    string
	Source         sourcetype.SourceType
	RequiredConfig []string
	OptionalConfig []string
	SecretConfig   []string // config keys encrypted at rest and masked in API output
}

var typeRegistry = map[TypeCode]TypeDescriptor{
	TypeADLDAP: {
		Code:           TypeADLDAP,
		Name:           "Active Directory (LDAP)",
		Description:    "Discovers service accounts and other non-human identities via LDAP.",
		Source:         sourcetype.ADServiceAccount,
		RequiredConfig: []string{"server", "bind_dn", "bind_password", "search_base"},
		OptionalConfig: []string{"port", "use_ssl", "search_filter", "page_size"},
		SecretConfig:   []string{"bind_password"},
	},
	TypeADCSFile: {
		Code:           TypeADCSFile,
		Name:           "AD Certificate Services (File)",
		Description:    "Ingests certificate inventories exported from ADCS as CSV or JSON.",
		Source:         sourcetype.ADCSCertificate,
		RequiredConfig: []string{},
		OptionalConfig: []string{"file_path"},
	},
	TypeADCSRemote: {
		Code:           TypeADCSRemote,
		Name:           "AD Certificate Services (Remote)",
		Description:    "Pulls issued-certificate batches from a remote ADCS collector.",
		Source:         sourcetype.ADCSCertificate,
		RequiredConfig: []string{"collector_url"},
		OptionalConfig: []string{"bearer_token", "verify_ssl"},
		SecretConfig:   []string{"bearer_token"},
	},
}

// LookupType returns the descriptor for a type code.
func LookupType(code TypeCode) (TypeDescriptor, bool) {
	d, ok := typeRegistry[code]
	return d, ok
}

// Types returns all registered descriptors ordered by code.
func Types() []TypeDescriptor {
	out := make([]TypeDescriptor, 0, len(typeRegistry))
	for _, d := range typeRegistry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ValidateConfig checks that every required config key is present and
// non-empty.
func (d TypeDescriptor) ValidateConfig(config map[string]any) error {
	for _, key := range d.RequiredConfig {
		v, ok := config[key]
		if !ok || v == nil || v == "" {
			return fmt.Errorf("%w: connector type %s requires config key %q", shared.ErrValidation, d.Code, key)
		}
	}
	return nil
}

// IsSecret reports whether a config key holds a credential.
func (d TypeDescriptor) IsSecret(key string) bool {
	for _, s := range d.SecretConfig {
		if s == key {
			return true
		}
	}
	return false
}
