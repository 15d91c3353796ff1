package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the API HTTP client.
type Client struct {
	baseURL    string
	enclaveID  string
	httpClient *http.Client
	verbose    bool
}

// NewClient creates a new API client. enclaveID may be empty for unscoped
// commands such as enclave management.
func NewClient(baseURL, enclaveID string, verbose bool) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		enclaveID: enclaveID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		verbose: verbose,
	}
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(method, path string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(context.Background(), method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	if c.enclaveID != "" {
		req.Header.Set("X-Enclave-ID", c.enclaveID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.verbose {
		fmt.Printf(">>> %s %s\n", method, url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Printf("<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) ([]byte, error) {
	data, _, err := c.Do(http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPost, path, body)
	return data, err
}

// Patch performs a PATCH request.
func (c *Client) Patch(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPatch, path, body)
	return data, err
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) error {
	_, _, err := c.Do(http.MethodDelete, path, nil)
	return err
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error.Message != "" {
			apiErr.Code = parsed.Error.Code
			apiErr.Message = parsed.Error.Message
		} else if parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
	}

	if apiErr.Message == "" {
		switch statusCode {
		case 404:
			apiErr.Message = "resource not found"
		case 409:
			apiErr.Message = "conflict: resource already exists or a run is in progress"
		default:
			apiErr.Message = fmt.Sprintf("API error: %d %s", statusCode, http.StatusText(statusCode))
		}
	}

	return apiErr
}

// Response types matching server handler structs.

type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

type EnclaveResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type ConnectorResponse struct {
	ID            string         `json:"id"`
	EnclaveID     string         `json:"enclave_id"`
	Type          string         `json:"type"`
	Name          string         `json:"name"`
	Config        map[string]any `json:"config"`
	CronExpr      string         `json:"cron_expr,omitempty"`
	Enabled       bool           `json:"enabled"`
	LastRunAt     *string        `json:"last_run_at,omitempty"`
	LastRunStatus string         `json:"last_run_status"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

type ConnectorTypeResponse struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	SourceType     string   `json:"source_type"`
	RequiredConfig []string `json:"required_config"`
	OptionalConfig []string `json:"optional_config"`
	SecretConfig   []string `json:"secret_config"`
}

type TestConnectionResponse struct {
	Success      bool   `json:"success"`
	RecordsFound int    `json:"records_found"`
	Error        string `json:"error,omitempty"`
}

type JobResponse struct {
	ID              string  `json:"id"`
	ConnectorID     string  `json:"connector_id"`
	EnclaveID       string  `json:"enclave_id"`
	Status          string  `json:"status"`
	TriggeredBy     string  `json:"triggered_by"`
	StartedAt       *string `json:"started_at,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	RecordsFound    int     `json:"records_found"`
	FindingsCount   int     `json:"findings_count"`
	UnresolvedCount int     `json:"unresolved_count"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type RiskFactorResponse struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type IdentityResponse struct {
	ID           string               `json:"id"`
	EnclaveID    string               `json:"enclave_id"`
	Fingerprint  string               `json:"fingerprint"`
	Type         string               `json:"type"`
	DisplayName  string               `json:"display_name"`
	Attributes   map[string]any       `json:"attributes"`
	Owner        string               `json:"owner,omitempty"`
	LinkedSystem string               `json:"linked_system,omitempty"`
	RiskScore    int                  `json:"risk_score"`
	RiskFactors  []RiskFactorResponse `json:"risk_factors"`
	FirstSeen    string               `json:"first_seen"`
	LastSeen     string               `json:"last_seen"`
	CreatedAt    string               `json:"created_at"`
	UpdatedAt    string               `json:"updated_at"`
}

type ProvenanceResponse struct {
	ID         string `json:"id"`
	IdentityID string `json:"identity_id"`
	FindingID  string `json:"finding_id"`
	JobID      string `json:"job_id"`
	LinkedAt   string `json:"linked_at"`
}

type FindingResponse struct {
	ID            string         `json:"id"`
	JobID         string         `json:"job_id"`
	ConnectorID   string         `json:"connector_id,omitempty"`
	EnclaveID     string         `json:"enclave_id"`
	SourceType    string         `json:"source_type"`
	RawAttributes map[string]any `json:"raw_attributes"`
	DiscoveredAt  string         `json:"discovered_at"`
	CreatedAt     string         `json:"created_at"`
}

type IdentityStatsResponse struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

type CorrelateResponse struct {
	Updated int `json:"updated"`
}

// ListResponse is the paginated envelope every list endpoint returns.
type ListResponse[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}
