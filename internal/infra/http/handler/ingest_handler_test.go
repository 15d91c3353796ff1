package handler

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPayload_RawBody(t *testing.T) {
	body := `[{"serial_number": "AA01"}]`
	r := httptest.NewRequest("POST", "/api/v1/connectors/x/ingest", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	payload, err := readPayload(r)
	require.NoError(t, err)
	assert.Equal(t, body, string(payload))
}

func TestReadPayload_MultipartFile(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "certs.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Serial Number,Issuer DN\nAA01,CN=Corp CA\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := httptest.NewRequest("POST", "/api/v1/connectors/x/ingest", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())

	payload, err := readPayload(r)
	require.NoError(t, err)
	assert.Equal(t, "Serial Number,Issuer DN\nAA01,CN=Corp CA\n", string(payload))
}

func TestReadPayload_MultipartWithoutFileField(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("notes", "no export attached"))
	require.NoError(t, w.Close())

	r := httptest.NewRequest("POST", "/api/v1/connectors/x/ingest", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())

	_, err := readPayload(r)
	assert.Error(t, err)
}
