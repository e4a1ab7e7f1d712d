package exportjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harborcare/careexport/internal/model"
)

func seedProcessingJob(t *testing.T, registry *Registry, id string) {
	t.Helper()
	err := registry.Insert(model.ExportJob{
		ID:         id,
		ExportType: model.ExportCheckIns,
		Status:     model.StatusPending,
		StartedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	registry.MarkProcessing(id, 100)
}

func TestPollerStopsAtCompleted(t *testing.T) {
	api := &fakeAPI{statusSteps: []statusStep{
		{resp: processingStatus(30, 30)},
		{resp: processingStatus(70, 70)},
		{resp: completedStatus("https://exports.example.com/artifact")},
	}}
	registry := NewRegistry()
	seedProcessingJob(t, registry, "job-1")

	poller := NewPoller(api, registry, time.Millisecond, 0)
	poller.Run(context.Background(), "job-1")

	job, ok := registry.Get("job-1")
	if !ok {
		t.Fatalf("job missing")
	}
	if job.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.DownloadURL == nil || *job.DownloadURL != "https://exports.example.com/artifact" {
		t.Fatalf("downloadUrl = %v", job.DownloadURL)
	}
	if job.CompletedAt == nil {
		t.Fatalf("completedAt not set")
	}
	// Three responses reach terminal; no fourth query may be dispatched.
	if calls := api.snapshotStatusCalls(); calls != 3 {
		t.Fatalf("status calls = %d, want 3", calls)
	}
}

func TestPollerAppliesProgressInOrder(t *testing.T) {
	api := &fakeAPI{statusSteps: []statusStep{
		{resp: processingStatus(10, 10)},
		{resp: processingStatus(55, 55)},
		{resp: completedStatus("u")},
	}}
	registry := NewRegistry()
	seedProcessingJob(t, registry, "job-1")

	updates, cancel := registry.Subscribe()
	defer cancel()

	NewPoller(api, registry, time.Millisecond, 0).Run(context.Background(), "job-1")

	lastRank := -1
	lastProgress := -1
	for {
		var update model.ExportJob
		select {
		case update = <-updates:
		default:
			return
		}
		if update.Status.Rank() < lastRank {
			t.Fatalf("status regressed to %s", update.Status)
		}
		lastRank = update.Status.Rank()
		if update.Status == model.StatusProcessing {
			if update.Progress < lastProgress {
				t.Fatalf("progress regressed to %d", update.Progress)
			}
			lastProgress = update.Progress
		}
		if update.Progress < 0 || update.Progress > 100 {
			t.Fatalf("progress out of bounds: %d", update.Progress)
		}
	}
}

func TestPollerTransportFailureMarksJobFailed(t *testing.T) {
	api := &fakeAPI{statusSteps: []statusStep{
		{resp: processingStatus(10, 10)},
		{err: errors.New("network unreachable")},
	}}
	registry := NewRegistry()
	seedProcessingJob(t, registry, "job-1")

	NewPoller(api, registry, time.Millisecond, 0).Run(context.Background(), "job-1")

	job, _ := registry.Get("job-1")
	if job.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Error == nil || *job.Error != pollFailureMsg {
		t.Fatalf("error = %v, want %q", job.Error, pollFailureMsg)
	}
	// The loop stops after the failure; the scripted error would repeat.
	if calls := api.snapshotStatusCalls(); calls != 2 {
		t.Fatalf("status calls = %d, want 2", calls)
	}
}

func TestPollerMissingJobIsNoop(t *testing.T) {
	api := &fakeAPI{statusSteps: []statusStep{{resp: processingStatus(10, 10)}}}
	registry := NewRegistry()

	NewPoller(api, registry, time.Millisecond, 0).Run(context.Background(), "vanished")

	if calls := api.snapshotStatusCalls(); calls != 0 {
		t.Fatalf("expected no queries for a missing job, got %d", calls)
	}
	if got := len(registry.List()); got != 0 {
		t.Fatalf("missing job was re-created")
	}
}

func TestPollerJobClearedMidLoopStopsQuietly(t *testing.T) {
	api := &fakeAPI{statusSteps: []statusStep{
		{resp: completedStatus("u")},
	}}
	registry := NewRegistry()
	seedProcessingJob(t, registry, "job-1")
	// Terminal response, then the owner clears the registry; a rescheduled
	// continuation must find nothing to do.
	NewPoller(api, registry, time.Millisecond, 0).Run(context.Background(), "job-1")
	if removed := registry.ClearCompleted(); removed != 1 {
		t.Fatalf("cleared %d jobs, want 1", removed)
	}
	NewPoller(api, registry, time.Millisecond, 0).Run(context.Background(), "job-1")
	if got := len(registry.List()); got != 0 {
		t.Fatalf("cleared job came back")
	}
}

func TestPollerCeilingFailsStuckJob(t *testing.T) {
	api := &fakeAPI{statusSteps: []statusStep{{resp: processingStatus(40, 40)}}}
	registry := NewRegistry()
	seedProcessingJob(t, registry, "job-1")

	NewPoller(api, registry, time.Millisecond, 3).Run(context.Background(), "job-1")

	job, _ := registry.Get("job-1")
	if job.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed after ceiling", job.Status)
	}
	if job.Error == nil || *job.Error != pollTimeoutMsg {
		t.Fatalf("error = %v, want %q", job.Error, pollTimeoutMsg)
	}
	if calls := api.snapshotStatusCalls(); calls != 3 {
		t.Fatalf("status calls = %d, want 3", calls)
	}
}

func TestPollerContextCancelStopsLoop(t *testing.T) {
	api := &fakeAPI{statusSteps: []statusStep{{resp: processingStatus(10, 10)}}}
	registry := NewRegistry()
	seedProcessingJob(t, registry, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPoller(api, registry, time.Hour, 0).Run(ctx, "job-1")
		close(done)
	}()
	// Let the first query land, then cancel during the hour-long delay.
	for api.snapshotStatusCalls() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("poller did not stop on context cancel")
	}
	// Cancellation is not a poll failure; the job stays processing.
	job, _ := registry.Get("job-1")
	if job.Status != model.StatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
}
