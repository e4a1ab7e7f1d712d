package exportjob

import (
	"context"
	"errors"
	"sync"

	"github.com/harborcare/careexport/internal/exportapi"
	"github.com/harborcare/careexport/internal/model"
)

// fakeAPI scripts the remote surface for tests. Status responses are
// consumed in order; once exhausted the last one repeats.
type fakeAPI struct {
	mu sync.Mutex

	startResp  exportapi.StartExportResponse
	startErr   error
	startCalls int

	statusSteps []statusStep
	statusCalls int

	auditErr error
	audits   []model.AuditEvent
}

type statusStep struct {
	resp *exportapi.ExportStatusResponse
	err  error
}

func (f *fakeAPI) StartExport(ctx context.Context, req exportapi.StartExportRequest) (*exportapi.StartExportResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	resp := f.startResp
	return &resp, nil
}

func (f *fakeAPI) GetExportStatus(ctx context.Context, jobID string) (*exportapi.ExportStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusSteps) == 0 {
		return nil, errors.New("no status scripted")
	}
	idx := f.statusCalls
	if idx >= len(f.statusSteps) {
		idx = len(f.statusSteps) - 1
	}
	f.statusCalls++
	step := f.statusSteps[idx]
	if step.err != nil {
		return nil, step.err
	}
	resp := *step.resp
	return &resp, nil
}

func (f *fakeAPI) RecordAuditEvent(ctx context.Context, event model.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, event)
	return f.auditErr
}

func (f *fakeAPI) snapshotStatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeAPI) snapshotAudits() []model.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AuditEvent, len(f.audits))
	copy(out, f.audits)
	return out
}

func processingStatus(progress int, processed int64) *exportapi.ExportStatusResponse {
	return &exportapi.ExportStatusResponse{
		Status:           model.StatusProcessing,
		Progress:         progress,
		ProcessedRecords: processed,
	}
}

func completedStatus(downloadURL string) *exportapi.ExportStatusResponse {
	return &exportapi.ExportStatusResponse{
		Status:      model.StatusCompleted,
		Progress:    100,
		DownloadURL: &downloadURL,
	}
}
