// Package database owns the pgx pool and the in-code schema. Keeping the
// migration in code lets docker-compose bootstrap a full stack with no extra
// tooling.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the export, compliance, intake, and clinical source
// tables if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS export_jobs (
	id TEXT PRIMARY KEY,
	export_type TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INT NOT NULL DEFAULT 0,
	total_records BIGINT NOT NULL DEFAULT 0,
	processed_records BIGINT NOT NULL DEFAULT 0,
	requested_by TEXT NOT NULL DEFAULT '',
	filters JSONB NOT NULL DEFAULT '{}',
	object_key TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_export_jobs_status ON export_jobs(status);

CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_recorded_at ON audit_events(recorded_at);

CREATE TABLE IF NOT EXISTS module_entitlements (
	module TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	updated_by TEXT,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS form_submissions (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	object_key TEXT NOT NULL,
	status TEXT NOT NULL,
	fields JSONB,
	error_message TEXT,
	uploaded_by TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS check_ins (
	id BIGSERIAL PRIMARY KEY,
	resident_name TEXT NOT NULL DEFAULT '',
	room TEXT NOT NULL DEFAULT '',
	mood TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	source_form_id TEXT,
	payload JSONB NOT NULL DEFAULT '{}',
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_ins_recorded_at ON check_ins(recorded_at);

CREATE TABLE IF NOT EXISTS medication_logs (
	id BIGSERIAL PRIMARY KEY,
	resident_name TEXT NOT NULL DEFAULT '',
	medication TEXT NOT NULL DEFAULT '',
	dosage TEXT NOT NULL DEFAULT '',
	administered_by TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_medication_logs_recorded_at ON medication_logs(recorded_at);

CREATE TABLE IF NOT EXISTS care_plans (
	id BIGSERIAL PRIMARY KEY,
	resident_name TEXT NOT NULL DEFAULT '',
	goal TEXT NOT NULL DEFAULT '',
	intervention TEXT NOT NULL DEFAULT '',
	review_due TIMESTAMPTZ,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_summaries (
	id BIGSERIAL PRIMARY KEY,
	resident_name TEXT NOT NULL DEFAULT '',
	activity TEXT NOT NULL DEFAULT '',
	duration_minutes INT NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS fhir_resources (
	id BIGSERIAL PRIMARY KEY,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	resource JSONB NOT NULL DEFAULT '{}',
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS incident_reports (
	id BIGSERIAL PRIMARY KEY,
	resident_name TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	reported_by TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL
);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
