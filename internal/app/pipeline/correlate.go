package pipeline

import (
	"context"
	"strings"

	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
)

// SuggestLinkedSystem derives the system an identity most likely belongs to
// from its normalized attributes. Certificates resolve through SAN DNS names,
// then a hostname-shaped subject CN; service accounts through the host part
// of their first SPN. Returns empty when nothing matches.
func SuggestLinkedSystem(it sourcetype.IdentityType, attrs map[string]any) string {
	switch it {
	case sourcetype.IdentityCertificate:
		if dns := sanDNSNames(attrs["san"]); len(dns) > 0 {
			return dns[0]
		}
		return hostFromSubjectCN(stringValue(attrs["subject_dn"]))
	case sourcetype.IdentityServiceAccount:
		for _, spn := range stringList(attrs["spn"]) {
			if host := hostFromSPN(spn); host != "" {
				return host
			}
		}
	}
	return ""
}

// sanDNSNames pulls DNS names from a SAN list. Entries may be plain strings
// or {"type": "dnsName", "value": ...} objects.
func sanDNSNames(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if strs, ok := v.([]string); ok {
			return strs
		}
		return nil
	}

	names := make([]string, 0, len(list))
	for _, entry := range list {
		switch e := entry.(type) {
		case string:
			if e != "" {
				names = append(names, e)
			}
		case map[string]any:
			switch strings.ToLower(stringValue(e["type"])) {
			case "dnsname", "dns", "ipaddress", "ip":
				if value := stringValue(e["value"]); value != "" {
					names = append(names, value)
				}
			}
		}
	}
	return names
}

// hostFromSubjectCN extracts a hostname.domain CN value from a subject DN.
func hostFromSubjectCN(subjectDN string) string {
	for _, part := range strings.Split(subjectDN, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(strings.ToUpper(part), "CN=") {
			continue
		}
		cn := strings.TrimSpace(part[3:])
		// only hostname-shaped CNs count
		if strings.Contains(cn, ".") {
			return cn
		}
		return ""
	}
	return ""
}

// hostFromSPN extracts the host portion of a service/host[:port] SPN.
func hostFromSPN(spn string) string {
	idx := strings.Index(spn, "/")
	if idx < 0 {
		return ""
	}
	host := spn[idx+1:]
	if colon := strings.Index(host, ":"); colon >= 0 {
		host = host[:colon]
	}
	return strings.TrimSpace(host)
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	default:
		return nil
	}
}

// Correlator re-runs linked-system correlation across an enclave's existing
// identities. Only identities with no linked system are touched; an
// operator-assigned value always wins.
type Correlator struct {
	identities identity.Repository
	logger     *logger.Logger
}

// NewCorrelator creates a Correlator.
func NewCorrelator(identities identity.Repository, log *logger.Logger) *Correlator {
	return &Correlator{identities: identities, logger: log}
}

// Correlate walks every identity in the enclave and fills missing linked
// systems. Returns the number of identities updated.
func (c *Correlator) Correlate(ctx context.Context, enclaveID shared.ID) (int, error) {
	updated := 0
	page := pagination.New(1, 100)

	for {
		result, err := c.identities.List(ctx, identity.Filter{EnclaveID: enclaveID}, page, nil)
		if err != nil {
			return updated, err
		}

		for _, ident := range result.Data {
			if ident.LinkedSystem() != "" {
				continue
			}
			suggestion := SuggestLinkedSystem(ident.Type(), ident.Attributes())
			if suggestion == "" {
				continue
			}
			if ident.FillLinkedSystem(suggestion) {
				ident.Reassess(nowUTC())
				if err := c.identities.Update(ctx, ident); err != nil {
					return updated, err
				}
				updated++
			}
		}

		if page.Page >= result.TotalPages {
			break
		}
		page.Page++
	}

	c.logger.Info("correlation pass complete", "enclave_id", enclaveID, "updated", updated)
	return updated, nil
}
