package exportjob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harborcare/careexport/internal/model"
)

func seedCompletedJob(t *testing.T, registry *Registry, id string, exportType model.ExportType, url string) model.ExportJob {
	t.Helper()
	started := time.Date(2026, 8, 14, 9, 30, 0, 0, time.UTC)
	completed := started.Add(2 * time.Minute)
	job := model.ExportJob{
		ID:          id,
		ExportType:  exportType,
		Status:      model.StatusCompleted,
		Progress:    100,
		StartedAt:   started,
		CompletedAt: &completed,
		DownloadURL: &url,
		Filters:     model.ExportFilters{Format: model.FormatCSV},
	}
	if err := registry.Insert(job); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return job
}

func TestDownloadWritesArtifactWithDerivedName(t *testing.T) {
	body := "resident_id,recorded_at\nr-1,2026-08-14T08:00:00Z\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	api := &fakeAPI{}
	registry := NewRegistry()
	job := seedCompletedJob(t, registry, "job-1", model.ExportCarePlans, srv.URL)

	dir := t.TempDir()
	path, err := NewDownloader(registry, NewAuditNotifier(api, "nurse-jackie")).Download(context.Background(), "job-1", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	want := filepath.Join(dir, "care_plans_2026-08-14.csv")
	if path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}
	if path != filepath.Join(dir, job.ArtifactName()) {
		t.Fatalf("path does not match ArtifactName")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != body {
		t.Fatalf("artifact content mismatch")
	}
	// care_plans carries no PHI; no download event is due.
	if audits := api.snapshotAudits(); len(audits) != 0 {
		t.Fatalf("expected no audit events, got %d", len(audits))
	}
}

func TestDownloadPHIEmitsAuditEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	api := &fakeAPI{}
	registry := NewRegistry()
	seedCompletedJob(t, registry, "job-1", model.ExportMedicationLogs, srv.URL)

	if _, err := NewDownloader(registry, NewAuditNotifier(api, "nurse-jackie")).Download(context.Background(), "job-1", t.TempDir()); err != nil {
		t.Fatalf("download: %v", err)
	}
	audits := api.snapshotAudits()
	if len(audits) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(audits))
	}
	if audits[0].Action != model.ActionExportDownloaded {
		t.Fatalf("action = %s", audits[0].Action)
	}
	if audits[0].ResourceID != "job-1" {
		t.Fatalf("resourceId = %s", audits[0].ResourceID)
	}
}

func TestDownloadRefusesNonCompletedJob(t *testing.T) {
	api := &fakeAPI{}
	registry := NewRegistry()
	seedProcessingJob(t, registry, "job-1")

	_, err := NewDownloader(registry, NewAuditNotifier(api, "nurse-jackie")).Download(context.Background(), "job-1", t.TempDir())
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
	if audits := api.snapshotAudits(); len(audits) != 0 {
		t.Fatalf("no audit event may fire for a refused download")
	}
}

func TestDownloadUnknownJob(t *testing.T) {
	api := &fakeAPI{}
	registry := NewRegistry()
	_, err := NewDownloader(registry, NewAuditNotifier(api, "nurse-jackie")).Download(context.Background(), "vanished", t.TempDir())
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestDownloadNon200LeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	registry := NewRegistry()
	seedCompletedJob(t, registry, "job-1", model.ExportCarePlans, srv.URL)

	dir := t.TempDir()
	if _, err := NewDownloader(registry, NewAuditNotifier(&fakeAPI{}, "nurse-jackie")).Download(context.Background(), "job-1", dir); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("partial file left behind: %v", entries)
	}
}
