// Package worker executes the queued export-generation and form-extraction
// tasks.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/formscan"
	"github.com/harborcare/careexport/internal/model"
	"github.com/harborcare/careexport/internal/queue"
	"github.com/harborcare/careexport/internal/repository"
	"github.com/harborcare/careexport/internal/s3storage"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	exports       *repository.ExportRepository
	forms         *repository.FormRepository
	store         *s3storage.Storage
	progressBatch int64
}

// NewProcessor constructs a worker processor. progressBatch is how many rows
// are encoded between progress writes.
func NewProcessor(exports *repository.ExportRepository, forms *repository.FormRepository, store *s3storage.Storage, progressBatch int64) *Processor {
	if progressBatch <= 0 {
		progressBatch = 250
	}
	return &Processor{
		exports:       exports,
		forms:         forms,
		store:         store,
		progressBatch: progressBatch,
	}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.GenerateExportTask, p.handleGenerate)
	mux.HandleFunc(queue.ExtractFormTask, p.handleExtract)
	return mux
}

func (p *Processor) handleGenerate(ctx context.Context, task *asynq.Task) error {
	var payload queue.GeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	log := logrus.WithFields(logrus.Fields{"job": payload.JobID, "exportType": payload.ExportType})
	failure := func(err error) error {
		log.WithError(err).Error("export generation failed")
		_ = p.exports.MarkFailed(ctx, payload.JobID, err.Error())
		return err
	}

	rec, err := p.exports.Get(ctx, payload.JobID)
	if err != nil {
		return failure(err)
	}
	if rec.Status.Terminal() {
		log.Warn("skipping already finished job")
		return nil
	}

	rows, err := p.exports.SourceRows(ctx, payload.ExportType, payload.Filters)
	if err != nil {
		return failure(err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	enc, err := newArtifactEncoder(&buf, payload.Filters)
	if err != nil {
		return failure(err)
	}
	var processed int64
	for rows.Next() {
		if err := enc.writeRow(rows); err != nil {
			return failure(err)
		}
		processed++
		if processed%p.progressBatch == 0 {
			if err := p.exports.UpdateProgress(ctx, payload.JobID, progressPercent(processed, rec.TotalRecords), processed); err != nil {
				return failure(err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return failure(fmt.Errorf("iterate source rows: %w", err))
	}
	if err := enc.close(); err != nil {
		return failure(err)
	}

	objectKey := fmt.Sprintf("exports/%s/%s", payload.JobID, artifactFileName(payload))
	if err := p.store.UploadExport(ctx, objectKey, &buf, int64(buf.Len()), enc.contentType()); err != nil {
		return failure(err)
	}
	if err := p.exports.MarkCompleted(ctx, payload.JobID, objectKey, processed); err != nil {
		return failure(err)
	}
	log.WithFields(logrus.Fields{"records": processed, "bytes": buf.Len()}).Info("export artifact ready")
	return nil
}

func (p *Processor) handleExtract(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	log := logrus.WithField("form", payload.FormID)
	failure := func(err error) error {
		log.WithError(err).Error("form extraction failed")
		_ = p.forms.MarkFailed(ctx, payload.FormID, err.Error())
		return err
	}
	if err := p.forms.MarkProcessing(ctx, payload.FormID); err != nil {
		return failure(err)
	}
	data, err := p.store.DownloadScan(ctx, payload.ObjectKey)
	if err != nil {
		return failure(err)
	}
	text, err := formscan.ExtractText(data)
	if err != nil {
		return failure(err)
	}
	fields := formscan.ParseFields(text)
	if len(fields) == 0 {
		return failure(fmt.Errorf("no labeled fields found in %s", payload.FileName))
	}
	if err := p.forms.MarkExtracted(ctx, payload.FormID, fields); err != nil {
		return failure(err)
	}
	if err := p.forms.InsertCheckIn(ctx, payload.FormID, fields); err != nil {
		return failure(err)
	}
	log.WithField("fields", len(fields)).Info("form extracted")
	return nil
}

// progressPercent maps processed/total onto 0-99; MarkCompleted owns 100.
func progressPercent(processed, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(processed * 100 / total)
	if pct > 99 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

func artifactFileName(payload queue.GeneratePayload) string {
	name := string(payload.ExportType) + "." + string(payload.Filters.Format)
	if payload.Filters.Format == "" {
		name = string(payload.ExportType) + "." + string(model.FormatCSV)
	}
	if payload.Filters.Compress {
		name += ".gz"
	}
	return name
}
