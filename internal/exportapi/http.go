package exportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harborcare/careexport/internal/model"
)

// HTTPClient talks to the careexport API over HTTP. It satisfies API.
type HTTPClient struct {
	baseURL string
	actorID string
	tier    model.AccessTier
	client  *http.Client
}

// NewHTTPClient constructs a client for the API at baseURL. The actor
// identity and tier ride along as headers on every request.
func NewHTTPClient(baseURL, actorID string, tier model.AccessTier) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		actorID: actorID,
		tier:    tier,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// StartExport submits a new export job.
func (c *HTTPClient) StartExport(ctx context.Context, req StartExportRequest) (*StartExportResponse, error) {
	var resp StartExportResponse
	if err := c.do(ctx, http.MethodPost, "/v1/exports", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetExportStatus fetches the server's view of one job.
func (c *HTTPClient) GetExportStatus(ctx context.Context, jobID string) (*ExportStatusResponse, error) {
	var resp ExportStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/exports/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordAuditEvent writes one compliance event.
func (c *HTTPClient) RecordAuditEvent(ctx context.Context, event model.AuditEvent) error {
	return c.do(ctx, http.MethodPost, "/v1/audit-events", event, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-ID", c.actorID)
	req.Header.Set("X-Actor-Tier", string(c.tier))
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, apiErrorMessage(resp))
	}
	if out != nil {
		return decodeJSON(resp.Body, out)
	}
	return nil
}

func decodeJSON(r io.Reader, out interface{}) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiErrorMessage prefers the server's error body over the bare status line.
func apiErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.Status
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
