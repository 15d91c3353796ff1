package connectors

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/logger"
)

// FileSource reads certificate inventories exported from ADCS as CSV or
// JSON. Scheduled runs read from the configured file path; push ingestion
// parses uploaded content through the same parsers.
type FileSource struct {
	filePath string
	logger   *logger.Logger
}

func newFileSource(cfg map[string]any, log *logger.Logger) *FileSource {
	return &FileSource{
		filePath: configString(cfg, "file_path", ""),
		logger:   log,
	}
}

// Fetch reads and parses the configured export file.
func (s *FileSource) Fetch(ctx context.Context) ([]Record, error) {
	if s.filePath == "" {
		return nil, connector.NewFetchError(connector.TypeADCSFile, "no file_path configured", nil)
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, connector.NewFetchError(connector.TypeADCSFile, "read file failed", err)
	}

	records, err := ParseCertExport(data)
	if err != nil {
		return nil, connector.NewFetchError(connector.TypeADCSFile, "parse failed", err)
	}

	s.logger.Info("adcs file fetch complete", "path", s.filePath, "records", len(records))
	return records, nil
}

// ParseCertExport parses certificate records from CSV or JSON content.
// Content starting with '[' or '{' is treated as JSON.
func ParseCertExport(data []byte) ([]Record, error) {
	trimmed := bytes.TrimLeft(stripBOM(data), " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return parseCertJSON(trimmed)
	}
	return parseCertCSV(trimmed)
}

// parseCertCSV parses rows into records. Header names are lowered and
// space-separated words joined with underscores. Malformed rows are skipped.
func parseCertCSV(data []byte) ([]Record, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
	}

	records := make([]Record, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// skip row-level parse errors, keep reading
			continue
		}

		rec := make(Record)
		empty := true
		for i, value := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			value = strings.TrimSpace(value)
			if value != "" {
				empty = false
			}
			rec[header[i]] = value
		}
		if empty {
			continue
		}

		normalizeSAN(rec)
		records = append(records, rec)
	}

	return records, nil
}

// parseCertJSON parses a JSON array of record objects, or an object with a
// "records" array as pushed by the remote collector.
func parseCertJSON(data []byte) ([]Record, error) {
	if data[0] == '[' {
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse json records: %w", err)
		}
		for _, rec := range records {
			normalizeSAN(rec)
		}
		return records, nil
	}

	var envelope struct {
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse json envelope: %w", err)
	}
	for _, rec := range envelope.Records {
		normalizeSAN(rec)
	}
	return envelope.Records, nil
}

// normalizeSAN splits a semicolon-delimited SAN string into a list.
func normalizeSAN(rec Record) {
	raw, ok := rec["san"].(string)
	if !ok {
		if _, present := rec["san"]; !present {
			rec["san"] = []string{}
		}
		return
	}

	sans := make([]string, 0)
	for _, s := range strings.Split(raw, ";") {
		if s = strings.TrimSpace(s); s != "" {
			sans = append(sans, s)
		}
	}
	rec["san"] = sans
}

// stripBOM removes a UTF-8 byte order mark, common in Windows CSV exports.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}
