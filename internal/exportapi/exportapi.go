// Package exportapi defines the remote operations the export job client
// depends on, plus their HTTP implementation against the careexport API.
package exportapi

import (
	"context"
	"time"

	"github.com/harborcare/careexport/internal/model"
)

// StartExportRequest asks the platform to begin generating an export. The
// job identifier is generated by the caller and echoed through the lifecycle.
type StartExportRequest struct {
	JobID       string              `json:"jobId"`
	ExportType  model.ExportType    `json:"exportType"`
	Filters     model.ExportFilters `json:"filters"`
	RequestedBy string              `json:"requestedBy,omitempty"`
}

// StartExportResponse is returned on acceptance.
type StartExportResponse struct {
	EstimatedRecords int64 `json:"estimatedRecords"`
}

// ExportStatusResponse is the server's authoritative view of one job. The
// client replaces its record wholesale from this; it never merges partial
// updates.
type ExportStatusResponse struct {
	Status           model.ExportStatus `json:"status"`
	Progress         int                `json:"progress"`
	TotalRecords     int64              `json:"totalRecords"`
	ProcessedRecords int64              `json:"processedRecords"`
	DownloadURL      *string            `json:"downloadUrl,omitempty"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
	Error            *string            `json:"error,omitempty"`
}

// API is the remote surface consumed by the export job client. Implementations
// must treat RecordAuditEvent as advisory; callers ignore its failure.
type API interface {
	StartExport(ctx context.Context, req StartExportRequest) (*StartExportResponse, error)
	GetExportStatus(ctx context.Context, jobID string) (*ExportStatusResponse, error)
	RecordAuditEvent(ctx context.Context, event model.AuditEvent) error
}
