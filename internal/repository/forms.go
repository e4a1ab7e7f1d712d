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

// FormRepository tracks scanned paper forms through extraction.
type FormRepository struct {
	pool *pgxpool.Pool
}

// NewFormRepository constructs a repository.
func NewFormRepository(pool *pgxpool.Pool) *FormRepository {
	return &FormRepository{pool: pool}
}

// Create inserts a received form submission.
func (r *FormRepository) Create(ctx context.Context, form *model.FormSubmission) error {
	now := time.Now().UTC()
	form.Status = model.FormReceived
	form.CreatedAt = now
	form.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO form_submissions (id, file_name, object_key, status, uploaded_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, form.ID, form.FileName, form.ObjectKey, form.Status, form.UploadedBy, form.CreatedAt, form.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert form submission: %w", err)
	}
	return nil
}

// Get returns one form submission.
func (r *FormRepository) Get(ctx context.Context, id string) (*model.FormSubmission, error) {
	var (
		form     model.FormSubmission
		fields   []byte
		errorMsg sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, file_name, object_key, status, COALESCE(fields,'{}'), error_message, COALESCE(uploaded_by,''), created_at, updated_at
		FROM form_submissions WHERE id=$1
	`, id)
	err := row.Scan(&form.ID, &form.FileName, &form.ObjectKey, &form.Status, &fields, &errorMsg, &form.UploadedBy, &form.CreatedAt, &form.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("form submission %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select form submission: %w", err)
	}
	if err := json.Unmarshal(fields, &form.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		form.ErrorMessage = &msg
	}
	return &form, nil
}

// MarkProcessing sets the status to processing.
func (r *FormRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, model.FormProcessing, nil, nil)
}

// MarkExtracted stores the parsed fields and finishes the submission.
func (r *FormRepository) MarkExtracted(ctx context.Context, id string, fields map[string]string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	return r.updateStatus(ctx, id, model.FormExtracted, data, nil)
}

// MarkFailed records an extraction failure.
func (r *FormRepository) MarkFailed(ctx context.Context, id, msg string) error {
	return r.updateStatus(ctx, id, model.FormFailed, nil, &msg)
}

func (r *FormRepository) updateStatus(ctx context.Context, id string, status model.FormStatus, fields []byte, errorMsg *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE form_submissions
		SET status=$1,
			fields = COALESCE($2, fields),
			error_message = $3,
			updated_at=$4
		WHERE id=$5
	`, status, fields, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update form submission: %w", err)
	}
	return nil
}

// InsertCheckIn writes an extracted paper form into the check_ins table so it
// appears in subsequent check-in exports.
func (r *FormRepository) InsertCheckIn(ctx context.Context, formID string, fields map[string]string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal check-in payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO check_ins (resident_name, room, mood, notes, source_form_id, payload, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, fields["resident_name"], fields["room_number"], fields["mood"], fields["notes"], formID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert check-in: %w", err)
	}
	return nil
}
