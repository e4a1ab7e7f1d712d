package exportjob

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/exportapi"
)

// pollFailureMsg is the synthetic diagnostic applied when the status query
// itself fails, as opposed to the remote reporting a failed job.
const pollFailureMsg = "failed to get export status"

// pollTimeoutMsg is applied when the poll ceiling is reached before the
// remote reports a terminal status.
const pollTimeoutMsg = "export did not finish within the polling window"

// Poller drives the status loop for submitted jobs. One goroutine runs per
// job; the next query is dispatched only after the previous one resolves, so
// queries for a job never overlap and responses apply in request order.
type Poller struct {
	api      exportapi.API
	registry *Registry
	interval time.Duration
	maxPolls int
}

// NewPoller constructs a Poller. interval is the fixed delay between the
// completion of one query and the dispatch of the next. maxPolls bounds the
// number of queries per job; zero means poll until a terminal status.
func NewPoller(api exportapi.API, registry *Registry, interval time.Duration, maxPolls int) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		api:      api,
		registry: registry,
		interval: interval,
		maxPolls: maxPolls,
	}
}

// Start launches the polling loop for jobID in the background.
func (p *Poller) Start(ctx context.Context, jobID string) {
	go p.Run(ctx, jobID)
}

// Run polls jobID until a terminal status is observed, the context is
// cancelled, or the poll ceiling is hit. It blocks; most callers want Start.
//
// If the job has been removed from the registry (the owner cleared it), the
// loop exits quietly without re-creating it.
func (p *Poller) Run(ctx context.Context, jobID string) {
	log := logrus.WithField("job", jobID)
	for polls := 0; ; polls++ {
		if p.maxPolls > 0 && polls >= p.maxPolls {
			log.Warn("poll ceiling reached, abandoning job")
			p.registry.MarkFailed(jobID, pollTimeoutMsg)
			return
		}
		if job, ok := p.registry.Get(jobID); !ok || job.Status.Terminal() {
			return
		}
		resp, err := p.api.GetExportStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A transport failure ends this job's loop rather than retrying
			// indefinitely; other jobs' loops are unaffected.
			log.WithError(err).Error("status poll failed")
			p.registry.MarkFailed(jobID, pollFailureMsg)
			return
		}
		if !p.registry.ApplyStatus(jobID, resp) {
			return
		}
		if resp.Status.Terminal() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}
