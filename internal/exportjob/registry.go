// Package exportjob implements the export job client: an in-memory job
// registry, the submission client, the status poller, the audit notifier, and
// the download dispatcher. It owns all client-side job state; the server's
// status responses are authoritative and replace a job's mutable fields
// wholesale.
package exportjob

import (
	"sort"
	"sync"
	"time"

	"github.com/harborcare/careexport/internal/exportapi"
	"github.com/harborcare/careexport/internal/model"
)

// Registry holds every job submitted during the process lifetime, keyed by
// job id. Ids are never reused and jobs are only removed by ClearCompleted.
// Reads return snapshots so callers cannot mutate registry state.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*model.ExportJob
	subs    map[int]chan model.ExportJob
	nextSub int
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*model.ExportJob),
		subs: make(map[int]chan model.ExportJob),
	}
}

// Insert registers a freshly created job. Only the submission client calls
// this; inserting an existing id fails rather than overwriting history.
func (r *Registry) Insert(job model.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}
	stored := job
	r.jobs[job.ID] = &stored
	r.notifyLocked(&stored)
	return nil
}

// Get returns a snapshot of one job.
func (r *Registry) Get(id string) (model.ExportJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return model.ExportJob{}, false
	}
	return *job, true
}

// List returns snapshots of every job, newest first.
func (r *Registry) List() []model.ExportJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ExportJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// MarkProcessing records remote acceptance of a submission: the job moves to
// processing and takes the server-estimated record count. A no-op if the job
// is missing or already past pending.
func (r *Registry) MarkProcessing(id string, totalRecords int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != model.StatusPending {
		return
	}
	job.Status = model.StatusProcessing
	job.TotalRecords = totalRecords
	r.notifyLocked(job)
}

// MarkFailed moves a job to the failed terminal state with a diagnostic. A
// no-op for missing or already terminal jobs, so a late poll continuation
// cannot clobber an earlier outcome.
func (r *Registry) MarkFailed(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.Status = model.StatusFailed
	job.Error = &msg
	job.CompletedAt = &now
	r.notifyLocked(job)
}

// ApplyStatus replaces a job's mutable fields from a server status response.
// Responses that would move the status backwards are dropped: a terminal job
// never re-enters processing and a processing job never returns to pending.
// Returns false when the job is no longer registered.
func (r *Registry) ApplyStatus(id string, resp *exportapi.ExportStatusResponse) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	if job.Status.Terminal() || resp.Status.Rank() < job.Status.Rank() {
		return true
	}
	job.Status = resp.Status
	job.Progress = clampProgress(resp.Progress)
	if resp.TotalRecords > 0 {
		job.TotalRecords = resp.TotalRecords
	}
	job.ProcessedRecords = clampProcessed(resp.ProcessedRecords, job.TotalRecords)
	job.DownloadURL = resp.DownloadURL
	job.Error = resp.Error
	if resp.Status.Terminal() && job.CompletedAt == nil {
		if resp.CompletedAt != nil {
			job.CompletedAt = resp.CompletedAt
		} else {
			now := time.Now().UTC()
			job.CompletedAt = &now
		}
	}
	r.notifyLocked(job)
	return true
}

// ClearCompleted removes terminal jobs and reports how many were dropped.
func (r *Registry) ClearCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.Status.Terminal() {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Subscribe returns a channel that receives a job snapshot after every
// mutation, plus a cancel function. Slow subscribers miss updates rather than
// blocking writers.
func (r *Registry) Subscribe() (<-chan model.ExportJob, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan model.ExportJob, 16)
	r.subs[id] = ch
	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (r *Registry) notifyLocked(job *model.ExportJob) {
	snapshot := *job
	for _, ch := range r.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// clampProcessed keeps processedRecords inside [0, totalRecords] when a total
// is known, so a misreporting server cannot surface an impossible count.
func clampProcessed(processed, total int64) int64 {
	if processed < 0 {
		return 0
	}
	if total > 0 && processed > total {
		return total
	}
	return processed
}
