package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/harborcare/careexport/internal/model"
)

const (
	// GenerateExportTask is scheduled each time an export job is accepted.
	GenerateExportTask = "export:generate"
	// ExtractFormTask is scheduled each time a paper-form scan is uploaded.
	ExtractFormTask = "form:extract"
)

// GeneratePayload tells the worker which export to build.
type GeneratePayload struct {
	JobID       string              `json:"job_id"`
	ExportType  model.ExportType    `json:"export_type"`
	Filters     model.ExportFilters `json:"filters"`
	RequestedBy string              `json:"requested_by"`
}

// ExtractPayload tells the worker which scan to pull from object storage.
type ExtractPayload struct {
	FormID    string `json:"form_id"`
	ObjectKey string `json:"object_key"`
	FileName  string `json:"file_name"`
}

// EnqueueGenerate enqueues an export generation job. Retries are capped low:
// a failed export is surfaced to the operator, who resubmits explicitly.
func EnqueueGenerate(ctx context.Context, client *asynq.Client, payload GeneratePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(GenerateExportTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(1)); err != nil {
		return fmt.Errorf("enqueue generate task: %w", err)
	}
	return nil
}

// EnqueueExtract enqueues a form extraction job.
func EnqueueExtract(ctx context.Context, client *asynq.Client, payload ExtractPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ExtractFormTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue extract task: %w", err)
	}
	return nil
}
