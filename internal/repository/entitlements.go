package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborcare/careexport/internal/model"
)

// EntitlementRepository stores which platform modules are enabled.
type EntitlementRepository struct {
	pool *pgxpool.Pool
}

// NewEntitlementRepository constructs a repository.
func NewEntitlementRepository(pool *pgxpool.Pool) *EntitlementRepository {
	return &EntitlementRepository{pool: pool}
}

// Seed inserts the default module set, leaving existing rows untouched.
func (r *EntitlementRepository) Seed(ctx context.Context) error {
	for _, module := range model.DefaultModules {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO module_entitlements (module, enabled, updated_at)
			VALUES ($1, TRUE, $2)
			ON CONFLICT (module) DO NOTHING
		`, module, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("seed entitlement %s: %w", module, err)
		}
	}
	return nil
}

// List returns all entitlements ordered by module name.
func (r *EntitlementRepository) List(ctx context.Context) ([]model.ModuleEntitlement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT module, enabled, COALESCE(updated_by,''), updated_at
		FROM module_entitlements ORDER BY module
	`)
	if err != nil {
		return nil, fmt.Errorf("select entitlements: %w", err)
	}
	defer rows.Close()
	var out []model.ModuleEntitlement
	for rows.Next() {
		var ent model.ModuleEntitlement
		if err := rows.Scan(&ent.Module, &ent.Enabled, &ent.UpdatedBy, &ent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		out = append(out, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entitlements: %w", err)
	}
	return out, nil
}

// Set toggles one module. Unknown modules return ErrNotFound rather than
// creating rows, so typos cannot silently grow the entitlement surface.
func (r *EntitlementRepository) Set(ctx context.Context, module string, enabled bool, updatedBy string) (*model.ModuleEntitlement, error) {
	var ent model.ModuleEntitlement
	err := r.pool.QueryRow(ctx, `
		UPDATE module_entitlements SET enabled=$1, updated_by=$2, updated_at=$3
		WHERE module=$4
		RETURNING module, enabled, COALESCE(updated_by,''), updated_at
	`, enabled, updatedBy, time.Now().UTC(), module).Scan(&ent.Module, &ent.Enabled, &ent.UpdatedBy, &ent.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update entitlement %s: %w", module, ErrNotFound)
	}
	return &ent, nil
}
