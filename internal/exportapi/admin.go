package exportapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/harborcare/careexport/internal/model"
)

// Admin operations used by the operator CLI. These sit outside the API
// interface because the export job core does not depend on them.

// ListEntitlements returns the deployment's module toggles.
func (c *HTTPClient) ListEntitlements(ctx context.Context) ([]model.ModuleEntitlement, error) {
	var out []model.ModuleEntitlement
	if err := c.do(ctx, http.MethodGet, "/v1/entitlements", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetEntitlement toggles one module.
func (c *HTTPClient) SetEntitlement(ctx context.Context, module string, enabled bool) (*model.ModuleEntitlement, error) {
	req := struct {
		Module  string `json:"module"`
		Enabled bool   `json:"enabled"`
	}{Module: module, Enabled: enabled}
	var out model.ModuleEntitlement
	if err := c.do(ctx, http.MethodPut, "/v1/entitlements", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentAuditEvents returns the newest compliance events.
func (c *HTTPClient) RecentAuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	path := "/v1/audit-events"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out []model.AuditEvent
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadForm submits a scanned paper form for extraction and returns the
// submission id.
func (c *HTTPClient) UploadForm(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open form: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("build form part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish form body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/forms", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Actor-ID", c.actorID)
	req.Header.Set("X-Actor-Tier", string(c.tier))
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload form: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("upload form: %s", apiErrorMessage(resp))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}
