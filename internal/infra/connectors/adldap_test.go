package connectors

import (
	"context"
	"encoding/binary"
	"strconv"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/logger"
)

// buildSID encodes a binary SID with the given authority and sub-authorities.
func buildSID(revision byte, authority uint64, subAuthorities ...uint32) []byte {
	sid := []byte{revision, byte(len(subAuthorities))}
	var auth [8]byte
	binary.BigEndian.PutUint64(auth[:], authority)
	sid = append(sid, auth[2:]...)
	for _, sa := range subAuthorities {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], sa)
		sid = append(sid, buf[:]...)
	}
	return sid
}

func filetimeString(t time.Time) string {
	return strconv.FormatInt(t.UnixNano()/100+filetimeEpochOffset, 10)
}

func TestDecodeSID(t *testing.T) {
	sid, err := decodeSID(buildSID(1, 5, 21, 1111, 2222, 3333, 1105))
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1111-2222-3333-1105", sid)
}

func TestDecodeSID_WellKnown(t *testing.T) {
	// local system: S-1-5-18
	sid, err := decodeSID(buildSID(1, 5, 18))
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-18", sid)
}

func TestDecodeSID_TooShort(t *testing.T) {
	_, err := decodeSID([]byte{1, 2, 0})
	assert.Error(t, err)
}

func TestDecodeSID_TruncatedSubAuthorities(t *testing.T) {
	// claims 5 sub-authorities, carries 1
	sid := buildSID(1, 5, 21)
	sid[1] = 5
	_, err := decodeSID(sid)
	assert.Error(t, err)
}

func TestFiletimeValue(t *testing.T) {
	want := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	got := filetimeValue(filetimeString(want))
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestFiletimeValue_Sentinels(t *testing.T) {
	assert.Nil(t, filetimeValue(""))
	assert.Nil(t, filetimeValue("0"))
	assert.Nil(t, filetimeValue("9223372036854775807"))
	assert.Nil(t, filetimeValue("not a number"))
}

func TestEntryToRecord(t *testing.T) {
	pwdLastSet := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	entry := &ldap.Entry{
		DN: "CN=svc-web,OU=Service Accounts,DC=corp,DC=example,DC=com",
		Attributes: []*ldap.EntryAttribute{
			ldap.NewEntryAttribute("sAMAccountName", []string{"svc-web"}),
			ldap.NewEntryAttribute("cn", []string{"svc-web"}),
			ldap.NewEntryAttribute("servicePrincipalName", []string{"HTTP/web01.corp.example.com", "HTTP/web01"}),
			ldap.NewEntryAttribute("userAccountControl", []string{"512"}),
			ldap.NewEntryAttribute("pwdLastSet", []string{filetimeString(pwdLastSet)}),
			{Name: "objectSid", ByteValues: [][]byte{buildSID(1, 5, 21, 1111, 2222, 3333, 1105)}},
		},
	}

	rec, err := entryToRecord(entry)
	require.NoError(t, err)

	assert.Equal(t, "svc-web", rec["sAMAccountName"])
	assert.Equal(t, "S-1-5-21-1111-2222-3333-1105", rec["objectSid"])
	assert.Equal(t, []string{"HTTP/web01.corp.example.com", "HTTP/web01"}, rec["servicePrincipalName"])
	assert.Equal(t, true, rec["userAccountControl_enabled"])
	assert.Equal(t, "2024-01-15T08:30:00Z", rec["pwdLastSet"])
	// distinguishedName falls back to the entry DN
	assert.Equal(t, entry.DN, rec["distinguishedName"])
}

func TestEntryToRecord_DisabledAccount(t *testing.T) {
	entry := &ldap.Entry{
		DN: "CN=svc-old,DC=corp",
		Attributes: []*ldap.EntryAttribute{
			// 514 = NORMAL_ACCOUNT | ACCOUNTDISABLE
			ldap.NewEntryAttribute("userAccountControl", []string{"514"}),
			{Name: "objectSid", ByteValues: [][]byte{buildSID(1, 5, 21, 1, 2, 3, 500)}},
		},
	}

	rec, err := entryToRecord(entry)
	require.NoError(t, err)
	assert.Equal(t, false, rec["userAccountControl_enabled"])
}

func TestEntryToRecord_MissingUACDefaultsEnabled(t *testing.T) {
	entry := &ldap.Entry{
		DN:         "CN=svc-min,DC=corp",
		Attributes: []*ldap.EntryAttribute{},
	}

	rec, err := entryToRecord(entry)
	require.NoError(t, err)
	assert.Equal(t, true, rec["userAccountControl_enabled"])

	_, hasSID := rec["objectSid"]
	assert.False(t, hasSID)
	_, hasPwd := rec["pwdLastSet"]
	assert.False(t, hasPwd)
}

func TestEntryToRecord_MalformedSID(t *testing.T) {
	entry := &ldap.Entry{
		DN: "CN=svc-bad,DC=corp",
		Attributes: []*ldap.EntryAttribute{
			{Name: "objectSid", ByteValues: [][]byte{{1, 2}}},
		},
	}

	_, err := entryToRecord(entry)
	assert.Error(t, err)
}

// fakeLDAPConn records the per-request timeout and serves a canned search
// result.
type fakeLDAPConn struct {
	timeout time.Duration
	bound   bool
	result  *ldap.SearchResult
}

func (c *fakeLDAPConn) Bind(username, password string) error { c.bound = true; return nil }

func (c *fakeLDAPConn) SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error) {
	return c.result, nil
}

func (c *fakeLDAPConn) SetTimeout(d time.Duration) { c.timeout = d }

func (c *fakeLDAPConn) Close() error { return nil }

func TestLDAPFetch_AppliesContextDeadline(t *testing.T) {
	conn := &fakeLDAPConn{
		result: &ldap.SearchResult{
			Entries: []*ldap.Entry{
				{
					DN: "CN=svc-web,DC=corp",
					Attributes: []*ldap.EntryAttribute{
						ldap.NewEntryAttribute("sAMAccountName", []string{"svc-web"}),
						{Name: "objectSid", ByteValues: [][]byte{buildSID(1, 5, 21, 1111, 2222, 3333, 1105)}},
					},
				},
			},
		},
	}

	src := newLDAPSource(map[string]any{"server": "dc01.corp"}, logger.NewDefault())
	src.dial = func(ctx context.Context, url string) (ldapConn, error) {
		assert.Equal(t, "ldap://dc01.corp:389", url)
		return conn, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, conn.bound)

	// the remaining deadline lands on the connection as its request timeout
	assert.Greater(t, conn.timeout, time.Duration(0))
	assert.LessOrEqual(t, conn.timeout, 5*time.Second)
}

func TestLDAPFetch_WithoutDeadlineSetsNoTimeout(t *testing.T) {
	conn := &fakeLDAPConn{result: &ldap.SearchResult{}}

	src := newLDAPSource(map[string]any{}, logger.NewDefault())
	src.dial = func(ctx context.Context, url string) (ldapConn, error) { return conn, nil }

	_, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, conn.timeout)
}
