package connectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCertExport_CSV(t *testing.T) {
	data := []byte(`Subject DN,Issuer DN,Serial Number,Not After,SAN
"CN=web01.corp.example.com","CN=Corp CA",AA01,2026-12-01,web01.corp.example.com;web01
"CN=db01.corp.example.com","CN=Corp CA",AA02,2027-01-15,
`)

	records, err := ParseCertExport(data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// headers are lowered and space-joined with underscores
	assert.Equal(t, "CN=web01.corp.example.com", records[0]["subject_dn"])
	assert.Equal(t, "CN=Corp CA", records[0]["issuer_dn"])
	assert.Equal(t, "AA01", records[0]["serial_number"])
	assert.Equal(t, "2026-12-01", records[0]["not_after"])
	assert.Equal(t, []string{"web01.corp.example.com", "web01"}, records[0]["san"])

	// empty SAN column becomes an empty list
	assert.Equal(t, []string{}, records[1]["san"])
}

func TestParseCertExport_CSVWithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("subject_dn,serial_number\nCN=web01,AA01\n")...)

	records, err := ParseCertExport(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CN=web01", records[0]["subject_dn"])
}

func TestParseCertExport_CSVRaggedRows(t *testing.T) {
	data := []byte("subject_dn,issuer_dn,serial_number\nCN=web01,CN=Corp CA\nCN=db01,CN=Corp CA,AA02,extra\n")

	records, err := ParseCertExport(data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	_, hasSerial := records[0]["serial_number"]
	assert.False(t, hasSerial)
	assert.Equal(t, "AA02", records[1]["serial_number"])
}

func TestParseCertExport_CSVSkipsEmptyRows(t *testing.T) {
	data := []byte("subject_dn,serial_number\nCN=web01,AA01\n,\n")

	records, err := ParseCertExport(data)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseCertExport_JSONArray(t *testing.T) {
	data := []byte(`[
		{"subject_dn": "CN=web01", "issuer_dn": "CN=Corp CA", "serial_number": "AA01", "san": ["web01.corp.example.com"]},
		{"subject_dn": "CN=db01", "issuer_dn": "CN=Corp CA", "serial_number": "AA02"}
	]`)

	records, err := ParseCertExport(data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "CN=web01", records[0]["subject_dn"])
	assert.Equal(t, []any{"web01.corp.example.com"}, records[0]["san"])
	// absent san becomes an empty list
	assert.Equal(t, []string{}, records[1]["san"])
}

func TestParseCertExport_JSONEnvelope(t *testing.T) {
	data := []byte(`{"records": [{"subject_dn": "CN=web01", "serial_number": "AA01", "san": "web01;web01.corp.example.com"}]}`)

	records, err := ParseCertExport(data)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// semicolon string form is split like the CSV path
	assert.Equal(t, []string{"web01", "web01.corp.example.com"}, records[0]["san"])
}

func TestParseCertExport_JSONLeadingWhitespace(t *testing.T) {
	data := []byte("\n\t [{\"subject_dn\": \"CN=web01\"}]")

	records, err := ParseCertExport(data)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseCertExport_InvalidJSON(t *testing.T) {
	_, err := ParseCertExport([]byte(`[{"subject_dn": `))
	assert.Error(t, err)
}

func TestNormalizeSAN(t *testing.T) {
	rec := Record{"san": "a.example.com ; b.example.com;;"}
	normalizeSAN(rec)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, rec["san"])

	rec = Record{}
	normalizeSAN(rec)
	assert.Equal(t, []string{}, rec["san"])

	// already-listed SANs from JSON are left alone
	rec = Record{"san": []any{"a.example.com"}}
	normalizeSAN(rec)
	assert.Equal(t, []any{"a.example.com"}, rec["san"])
}
