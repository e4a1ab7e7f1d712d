package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborcare/careexport/internal/model"
)

// AuditRepository persists the compliance trail. Rows are append-only; there
// is deliberately no update or delete path.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs a repository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert appends one audit event.
func (r *AuditRepository) Insert(ctx context.Context, event *model.AuditEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit_events (actor_id, action, resource_type, resource_id, metadata, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, event.ActorID, event.Action, event.ResourceType, event.ResourceID, metadata, event.CreatedAt).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events for the compliance dashboard, newest
// first, capped at limit.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, action, resource_type, resource_id, metadata, recorded_at
		FROM audit_events ORDER BY recorded_at DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}
	defer rows.Close()
	var events []model.AuditEvent
	for rows.Next() {
		var (
			event    model.AuditEvent
			metadata []byte
		)
		if err := rows.Scan(&event.ID, &event.ActorID, &event.Action, &event.ResourceType, &event.ResourceID, &metadata, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
