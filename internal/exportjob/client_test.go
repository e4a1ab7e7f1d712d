package exportjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harborcare/careexport/internal/exportapi"
	"github.com/harborcare/careexport/internal/model"
)

func newTestClient(api exportapi.API, tier model.AccessTier) (*Client, *Registry) {
	registry := NewRegistry()
	auditor := NewAuditNotifier(api, "nurse-jackie")
	return NewClient(api, registry, auditor, "nurse-jackie", tier), registry
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	api := &fakeAPI{}
	client, registry := newTestClient(api, model.TierElevated)
	_, err := client.Submit(context.Background(), "dietary_menus", model.ExportFilters{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := len(registry.List()); got != 0 {
		t.Fatalf("expected empty registry, got %d jobs", got)
	}
	if api.startCalls != 0 {
		t.Fatalf("expected no remote call, got %d", api.startCalls)
	}
}

func TestSubmitRejectsElevatedTypeForStandardTier(t *testing.T) {
	api := &fakeAPI{}
	client, registry := newTestClient(api, model.TierStandard)
	_, err := client.Submit(context.Background(), model.ExportFHIRResources, model.ExportFilters{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := len(registry.List()); got != 0 {
		t.Fatalf("expected empty registry, got %d jobs", got)
	}
}

func TestSubmitElevatedTierCoversBaseAndExtended(t *testing.T) {
	api := &fakeAPI{startResp: exportapi.StartExportResponse{EstimatedRecords: 10}}
	client, _ := newTestClient(api, model.TierElevated)
	for _, exportType := range []model.ExportType{model.ExportCheckIns, model.ExportFHIRResources} {
		if _, err := client.Submit(context.Background(), exportType, model.ExportFilters{}); err != nil {
			t.Fatalf("submit %s: %v", exportType, err)
		}
	}
}

func TestSubmitAcceptedMovesJobToProcessing(t *testing.T) {
	api := &fakeAPI{startResp: exportapi.StartExportResponse{EstimatedRecords: 1234}}
	client, registry := newTestClient(api, model.TierStandard)
	job, err := client.Submit(context.Background(), model.ExportCheckIns, model.ExportFilters{Format: model.FormatCSV})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != model.StatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
	if job.TotalRecords != 1234 {
		t.Fatalf("totalRecords = %d, want 1234", job.TotalRecords)
	}
	stored, ok := registry.Get(job.ID)
	if !ok {
		t.Fatalf("job missing from registry")
	}
	if stored.StartedAt.IsZero() {
		t.Fatalf("startedAt not set")
	}
	if stored.CompletedAt != nil {
		t.Fatalf("completedAt set on a live job")
	}
}

func TestSubmitPHIEmitsAuditEvent(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newTestClient(api, model.TierStandard)
	if _, err := client.Submit(context.Background(), model.ExportCheckIns, model.ExportFilters{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	audits := api.snapshotAudits()
	if len(audits) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(audits))
	}
	if audits[0].Action != model.ActionExportInitiated {
		t.Fatalf("action = %s", audits[0].Action)
	}
	if audits[0].ActorID != "nurse-jackie" {
		t.Fatalf("actorId = %s", audits[0].ActorID)
	}
}

func TestSubmitNonPHISkipsAudit(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newTestClient(api, model.TierStandard)
	if _, err := client.Submit(context.Background(), model.ExportCarePlans, model.ExportFilters{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if audits := api.snapshotAudits(); len(audits) != 0 {
		t.Fatalf("expected no audit events, got %d", len(audits))
	}
}

func TestSubmitAuditFailureDoesNotBlockExport(t *testing.T) {
	api := &fakeAPI{auditErr: errors.New("audit sink down"), startResp: exportapi.StartExportResponse{EstimatedRecords: 5}}
	client, _ := newTestClient(api, model.TierStandard)
	job, err := client.Submit(context.Background(), model.ExportCheckIns, model.ExportFilters{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != model.StatusProcessing {
		t.Fatalf("status = %s, want processing despite audit failure", job.Status)
	}
}

func TestSubmitTransportFailureLeavesNoOrphanedPending(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("connection refused")}
	client, registry := newTestClient(api, model.TierStandard)
	_, err := client.Submit(context.Background(), model.ExportCheckIns, model.ExportFilters{})
	if err == nil {
		t.Fatalf("expected submission error")
	}
	jobs := registry.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed (never orphaned pending)", job.Status)
	}
	if job.Error == nil || *job.Error == "" {
		t.Fatalf("failed job has no error message")
	}
	if job.CompletedAt == nil {
		t.Fatalf("failed job has no completedAt")
	}
}

func TestSubmitRejectsBadFilters(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newTestClient(api, model.TierStandard)
	cases := []model.ExportFilters{
		{Format: "xlsx"},
		{
			DateFrom: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, filters := range cases {
		_, err := client.Submit(context.Background(), model.ExportCheckIns, filters)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("filters %+v: expected ValidationError, got %v", filters, err)
		}
	}
	if api.startCalls != 0 {
		t.Fatalf("expected no remote calls for rejected filters")
	}
}

func TestSubmitRejectsCategoriesForUnfilterableType(t *testing.T) {
	api := &fakeAPI{}
	client, registry := newTestClient(api, model.TierStandard)
	// check_ins has no category dimension, so the filter must be rejected
	// rather than silently exporting every row.
	_, err := client.Submit(context.Background(), model.ExportCheckIns, model.ExportFilters{
		Categories: []string{"morning"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := len(registry.List()); got != 0 {
		t.Fatalf("expected empty registry, got %d jobs", got)
	}
	if api.startCalls != 0 {
		t.Fatalf("expected no remote call, got %d", api.startCalls)
	}

	// medication_logs selects on the medication column; the same filter passes.
	if _, err := client.Submit(context.Background(), model.ExportMedicationLogs, model.ExportFilters{
		Categories: []string{"warfarin"},
	}); err != nil {
		t.Fatalf("submit medication_logs with categories: %v", err)
	}
}

func TestSubmittedJobsGetDistinctIDs(t *testing.T) {
	api := &fakeAPI{}
	client, registry := newTestClient(api, model.TierStandard)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		job, err := client.Submit(context.Background(), model.ExportCarePlans, model.ExportFilters{})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if seen[job.ID] {
			t.Fatalf("job id %s reused", job.ID)
		}
		seen[job.ID] = true
	}
	if got := len(registry.List()); got != 20 {
		t.Fatalf("expected 20 jobs, got %d", got)
	}
}
