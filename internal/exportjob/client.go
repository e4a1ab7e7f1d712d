package exportjob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/exportapi"
	"github.com/harborcare/careexport/internal/model"
)

// Client validates and submits export requests on behalf of one actor.
type Client struct {
	api      exportapi.API
	registry *Registry
	auditor  *AuditNotifier
	actorID  string
	tier     model.AccessTier
}

// NewClient constructs a submission client. auditor may be shared with the
// Downloader.
func NewClient(api exportapi.API, registry *Registry, auditor *AuditNotifier, actorID string, tier model.AccessTier) *Client {
	return &Client{
		api:      api,
		registry: registry,
		auditor:  auditor,
		actorID:  actorID,
		tier:     tier,
	}
}

// Submit validates the request, registers a pending job, and dispatches the
// remote start-export call.
//
// Validation failures return a *ValidationError and leave no job record. A
// rejected or unreachable remote marks the job failed before the error is
// returned, so a job is never stranded in pending with no further updates.
// On acceptance the job is in processing with the server's record estimate.
func (c *Client) Submit(ctx context.Context, exportType model.ExportType, filters model.ExportFilters) (model.ExportJob, error) {
	if !model.KnownExportType(exportType) {
		return model.ExportJob{}, &ValidationError{ExportType: exportType, Reason: "unknown export type"}
	}
	if !model.PermittedExportType(exportType, c.tier) {
		return model.ExportJob{}, &ValidationError{ExportType: exportType, Reason: fmt.Sprintf("not permitted for tier %q", c.tier)}
	}
	if filters.Format == "" {
		filters.Format = model.FormatCSV
	}
	if filters.Format != model.FormatCSV && filters.Format != model.FormatJSON {
		return model.ExportJob{}, &ValidationError{ExportType: exportType, Reason: fmt.Sprintf("unsupported format %q", filters.Format)}
	}
	if !filters.DateTo.IsZero() && filters.DateTo.Before(filters.DateFrom) {
		return model.ExportJob{}, &ValidationError{ExportType: exportType, Reason: "date range ends before it starts"}
	}
	if len(filters.Categories) > 0 {
		if _, ok := model.CategoryFilterable(exportType); !ok {
			return model.ExportJob{}, &ValidationError{ExportType: exportType, Reason: "category filters are not supported for this export type"}
		}
	}

	job := model.ExportJob{
		ID:          uuid.NewString(),
		ExportType:  exportType,
		Status:      model.StatusPending,
		RequestedBy: c.actorID,
		Filters:     filters,
		StartedAt:   time.Now().UTC(),
	}
	if err := c.registry.Insert(job); err != nil {
		return model.ExportJob{}, fmt.Errorf("register job: %w", err)
	}
	if model.ContainsPHI(exportType) {
		c.auditor.Notify(ctx, model.ActionExportInitiated, "export_job", job.ID, map[string]string{
			"exportType": string(exportType),
			"format":     string(filters.Format),
		})
	}

	resp, err := c.api.StartExport(ctx, exportapi.StartExportRequest{
		JobID:       job.ID,
		ExportType:  exportType,
		Filters:     filters,
		RequestedBy: c.actorID,
	})
	if err != nil {
		c.registry.MarkFailed(job.ID, err.Error())
		logrus.WithError(err).WithField("job", job.ID).Error("export submission failed")
		return model.ExportJob{}, fmt.Errorf("start export: %w", err)
	}
	c.registry.MarkProcessing(job.ID, resp.EstimatedRecords)
	logrus.WithFields(logrus.Fields{
		"job":        job.ID,
		"exportType": exportType,
		"estimated":  resp.EstimatedRecords,
	}).Info("export accepted")
	snapshot, _ := c.registry.Get(job.ID)
	return snapshot, nil
}

// PermittedTypes lists the export types this client's tier may submit.
func (c *Client) PermittedTypes() []model.ExportType {
	return model.PermittedExportTypes(c.tier)
}
