package connectors

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/logger"
)

// ldapAttributes are the attributes requested from the directory.
var ldapAttributes = []string{
	"sAMAccountName",
	"cn",
	"distinguishedName",
	"objectSid",
	"servicePrincipalName",
	"userAccountControl",
	"pwdLastSet",
	"lastLogonTimestamp",
}

// defaultSearchFilter matches user objects carrying at least one SPN.
const defaultSearchFilter = "(&(objectCategory=person)(objectClass=user)(servicePrincipalName=*))"

// accountDisabledBit is the ACCOUNTDISABLE flag in userAccountControl.
const accountDisabledBit = 0x0002

// LDAPSource fetches service accounts from an Active Directory domain
// controller.
type LDAPSource struct {
	server       string
	port         int
	useSSL       bool
	bindDN       string
	bindPassword string
	searchBase   string
	searchFilter string
	pageSize     uint32
	logger       *logger.Logger

	// dial is swappable for tests.
	dial func(ctx context.Context, url string) (ldapConn, error)
}

// ldapConn is the subset of *ldap.Conn the source uses.
type ldapConn interface {
	Bind(username, password string) error
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	SetTimeout(d time.Duration)
	Close() error
}

// ldapDialTimeout bounds the TCP connect when the caller sets no deadline.
const ldapDialTimeout = 30 * time.Second

func newLDAPSource(cfg map[string]any, log *logger.Logger) *LDAPSource {
	return &LDAPSource{
		server:       configString(cfg, "server", "localhost"),
		port:         configInt(cfg, "port", 389),
		useSSL:       configBool(cfg, "use_ssl", false),
		bindDN:       configString(cfg, "bind_dn", ""),
		bindPassword: configString(cfg, "bind_password", ""),
		searchBase:   configString(cfg, "search_base", ""),
		searchFilter: configString(cfg, "search_filter", defaultSearchFilter),
		pageSize:     uint32(configInt(cfg, "page_size", 500)),
		logger:       log,
		dial: func(ctx context.Context, url string) (ldapConn, error) {
			dialer := &net.Dialer{Timeout: ldapDialTimeout}
			if deadline, ok := ctx.Deadline(); ok {
				dialer.Deadline = deadline
			}
			return ldap.DialURL(url, ldap.DialWithDialer(dialer))
		},
	}
}

// Fetch connects to the directory, runs a paged search and converts each
// entry to a raw record. Entries that fail conversion are skipped.
func (s *LDAPSource) Fetch(ctx context.Context) ([]Record, error) {
	scheme := "ldap"
	if s.useSSL {
		scheme = "ldaps"
	}
	url := fmt.Sprintf("%s://%s:%d", scheme, s.server, s.port)

	conn, err := s.dial(ctx, url)
	if err != nil {
		return nil, connector.NewFetchError(connector.TypeADLDAP, "connect failed", err)
	}
	defer conn.Close()

	// The ldap client takes a per-request timeout, not a context; map the
	// remaining deadline onto it so bind and search cannot outlive ctx.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}

	if err := conn.Bind(s.bindDN, s.bindPassword); err != nil {
		return nil, connector.NewFetchError(connector.TypeADLDAP, "bind failed", err)
	}

	req := ldap.NewSearchRequest(
		s.searchBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		s.searchFilter,
		ldapAttributes,
		nil,
	)

	result, err := conn.SearchWithPaging(req, s.pageSize)
	if err != nil {
		return nil, connector.NewFetchError(connector.TypeADLDAP, "search failed", err)
	}

	records := make([]Record, 0, len(result.Entries))
	for _, entry := range result.Entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := entryToRecord(entry)
		if err != nil {
			s.logger.Warn("skipping malformed ldap entry", "dn", entry.DN, "error", err)
			continue
		}
		records = append(records, rec)
	}

	s.logger.Info("ldap fetch complete",
		"server", s.server,
		"entries", len(result.Entries),
		"records", len(records),
	)
	return records, nil
}

// entryToRecord converts one LDAP entry into a raw record. objectSid is
// decoded to its string form, FILETIME attributes to RFC 3339, and the
// userAccountControl bitmask to an enabled flag.
func entryToRecord(entry *ldap.Entry) (Record, error) {
	rec := make(Record)

	if v := entry.GetAttributeValue("sAMAccountName"); v != "" {
		rec["sAMAccountName"] = v
	}
	if v := entry.GetAttributeValue("cn"); v != "" {
		rec["cn"] = v
	}
	if v := entry.GetAttributeValue("distinguishedName"); v != "" {
		rec["distinguishedName"] = v
	} else {
		rec["distinguishedName"] = entry.DN
	}

	sidBytes := entry.GetRawAttributeValue("objectSid")
	if len(sidBytes) > 0 {
		sid, err := decodeSID(sidBytes)
		if err != nil {
			return nil, fmt.Errorf("decode objectSid: %w", err)
		}
		rec["objectSid"] = sid
	}

	if spns := entry.GetAttributeValues("servicePrincipalName"); len(spns) > 0 {
		rec["servicePrincipalName"] = spns
	}

	enabled := true
	if v := entry.GetAttributeValue("userAccountControl"); v != "" {
		if uac, err := strconv.ParseInt(v, 10, 64); err == nil {
			enabled = uac&accountDisabledBit == 0
		}
	}
	rec["userAccountControl_enabled"] = enabled

	if t := filetimeValue(entry.GetAttributeValue("pwdLastSet")); t != nil {
		rec["pwdLastSet"] = t.Format(time.RFC3339)
	}
	if t := filetimeValue(entry.GetAttributeValue("lastLogonTimestamp")); t != nil {
		rec["lastLogonTimestamp"] = t.Format(time.RFC3339)
	}

	return rec, nil
}

const (
	filetimeEpochOffset = 116444736000000000
	filetimeNever       = int64(9223372036854775807)
)

// filetimeValue converts a Windows FILETIME string to a time. Zero and
// "never" sentinels map to nil.
func filetimeValue(s string) *time.Time {
	if s == "" || s == "0" {
		return nil
	}
	ft, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ft == 0 || ft == filetimeNever {
		return nil
	}
	t := time.Unix(0, (ft-filetimeEpochOffset)*100).UTC()
	return &t
}

// decodeSID formats a binary security identifier as its S-R-A-S... string.
func decodeSID(sid []byte) (string, error) {
	// Minimum SID length is 8 bytes: revision (1), sub-authority count (1),
	// authority (6)
	if len(sid) < 8 {
		return "", fmt.Errorf("invalid SID: too short")
	}

	revision := sid[0]
	subAuthorityCount := int(sid[1])
	authority := binary.BigEndian.Uint64(append([]byte{0, 0}, sid[2:8]...))

	if len(sid) < 8+subAuthorityCount*4 {
		return "", fmt.Errorf("invalid SID: insufficient length for sub-authorities")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "S-%d-%d", revision, authority)
	offset := 8
	for i := 0; i < subAuthorityCount; i++ {
		fmt.Fprintf(&buf, "-%d", binary.LittleEndian.Uint32(sid[offset:offset+4]))
		offset += 4
	}

	return buf.String(), nil
}
