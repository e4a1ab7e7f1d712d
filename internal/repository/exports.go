// Package repository wraps all SQL used by the API and worker.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborcare/careexport/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ExportRecord is one row in the export_jobs table. The artifact object key
// stays server-side; clients only ever see a signed URL derived from it.
type ExportRecord struct {
	ID               string
	ExportType       model.ExportType
	Status           model.ExportStatus
	Progress         int
	TotalRecords     int64
	ProcessedRecords int64
	RequestedBy      string
	Filters          model.ExportFilters
	ObjectKey        *string
	ErrorMessage     *string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// ExportRepository persists export job lifecycle state.
type ExportRepository struct {
	pool *pgxpool.Pool
}

// NewExportRepository constructs a repository.
func NewExportRepository(pool *pgxpool.Pool) *ExportRepository {
	return &ExportRepository{pool: pool}
}

// Create inserts a pending export job before the generation task is queued.
func (r *ExportRepository) Create(ctx context.Context, rec *ExportRecord) error {
	filters, err := json.Marshal(rec.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	rec.Status = model.StatusPending
	rec.CreatedAt = time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO export_jobs (id, export_type, status, progress, total_records, processed_records, requested_by, filters, created_at)
		VALUES ($1,$2,$3,0,$4,0,$5,$6,$7)
	`, rec.ID, rec.ExportType, rec.Status, rec.TotalRecords, rec.RequestedBy, filters, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert export job: %w", err)
	}
	return nil
}

// Get returns an export job by id.
func (r *ExportRepository) Get(ctx context.Context, id string) (*ExportRecord, error) {
	var (
		rec       ExportRecord
		filters   []byte
		objectKey sql.NullString
		errorMsg  sql.NullString
		completed sql.NullTime
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, export_type, status, progress, total_records, processed_records, requested_by, filters, object_key, error_message, created_at, completed_at
		FROM export_jobs WHERE id=$1
	`, id)
	err := row.Scan(&rec.ID, &rec.ExportType, &rec.Status, &rec.Progress, &rec.TotalRecords, &rec.ProcessedRecords,
		&rec.RequestedBy, &filters, &objectKey, &errorMsg, &rec.CreatedAt, &completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("export job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select export job: %w", err)
	}
	if err := json.Unmarshal(filters, &rec.Filters); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	if objectKey.Valid {
		key := objectKey.String
		rec.ObjectKey = &key
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		rec.ErrorMessage = &msg
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// MarkProcessing moves the job to processing with the estimated record count.
func (r *ExportRepository) MarkProcessing(ctx context.Context, id string, totalRecords int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE export_jobs SET status=$1, total_records=$2 WHERE id=$3 AND status=$4
	`, model.StatusProcessing, totalRecords, id, model.StatusPending)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// UpdateProgress records incremental generation progress.
func (r *ExportRepository) UpdateProgress(ctx context.Context, id string, progress int, processed int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE export_jobs SET progress=$1, processed_records=$2 WHERE id=$3 AND status=$4
	`, progress, processed, id, model.StatusProcessing)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a successful job with its artifact object key.
func (r *ExportRepository) MarkCompleted(ctx context.Context, id, objectKey string, processed int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE export_jobs
		SET status=$1, progress=100, processed_records=$2, object_key=$3, completed_at=$4
		WHERE id=$5 AND status <> $6
	`, model.StatusCompleted, processed, objectKey, time.Now().UTC(), id, model.StatusFailed)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed finalizes a failed job, keeping any earlier completion intact.
func (r *ExportRepository) MarkFailed(ctx context.Context, id, msg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE export_jobs SET status=$1, error_message=$2, completed_at=$3
		WHERE id=$4 AND status <> $5
	`, model.StatusFailed, msg, time.Now().UTC(), id, model.StatusCompleted)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// EstimateRecords counts the rows an export of this type, date range, and
// category subset will cover. Used for the acceptance response's
// estimatedRecords.
func (r *ExportRepository) EstimateRecords(ctx context.Context, exportType model.ExportType, filters model.ExportFilters) (int64, error) {
	src, ok := sourceTables[exportType]
	if !ok {
		return 0, fmt.Errorf("no source table for export type %q", exportType)
	}
	where, args, err := src.wherePredicate(filters)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, src.name, where)
	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("estimate records: %w", err)
	}
	return count, nil
}

// SourceRows streams the rows backing an export, oldest first. The caller
// must close the returned rows.
func (r *ExportRepository) SourceRows(ctx context.Context, exportType model.ExportType, filters model.ExportFilters) (pgx.Rows, error) {
	src, ok := sourceTables[exportType]
	if !ok {
		return nil, fmt.Errorf("no source table for export type %q", exportType)
	}
	where, args, err := src.wherePredicate(filters)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s ORDER BY recorded_at`, src.name, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query source rows: %w", err)
	}
	return rows, nil
}

// sourceTable names the clinical table backing an export type and, where one
// exists, the column a Categories filter selects on.
type sourceTable struct {
	name           string
	categoryColumn string
}

// wherePredicate builds the row predicate for an export. Table and column
// names come only from the sourceTables map, never from caller input; filter
// values ride as bind parameters.
func (s sourceTable) wherePredicate(filters model.ExportFilters) (string, []interface{}, error) {
	where := "recorded_at >= $1 AND recorded_at < $2"
	args := []interface{}{rangeStart(filters), rangeEnd(filters)}
	if len(filters.Categories) > 0 {
		if s.categoryColumn == "" {
			return "", nil, fmt.Errorf("export type backed by %s does not support category filters", s.name)
		}
		where += fmt.Sprintf(" AND %s = ANY($3)", s.categoryColumn)
		args = append(args, filters.Categories)
	}
	return where, args, nil
}

// sourceTables maps export types to the clinical tables they read. The map is
// the only place table and category-column names appear, so export SQL is
// never built from caller-supplied strings. Category columns must stay in
// step with model.CategoryFilterable.
var sourceTables = map[model.ExportType]sourceTable{
	model.ExportCheckIns:          {name: "check_ins"},
	model.ExportMedicationLogs:    {name: "medication_logs", categoryColumn: "medication"},
	model.ExportCarePlans:         {name: "care_plans"},
	model.ExportActivitySummaries: {name: "activity_summaries", categoryColumn: "activity"},
	model.ExportFHIRResources:     {name: "fhir_resources", categoryColumn: "resource_type"},
	model.ExportIncidentReports:   {name: "incident_reports", categoryColumn: "severity"},
	model.ExportAuditTrail:        {name: "audit_events", categoryColumn: "action"},
}

func rangeStart(f model.ExportFilters) time.Time {
	if f.DateFrom.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return f.DateFrom
}

func rangeEnd(f model.ExportFilters) time.Time {
	if f.DateTo.IsZero() {
		return time.Now().UTC()
	}
	// Ranges are inclusive of the end date as entered by operators.
	return f.DateTo.Add(24 * time.Hour)
}
