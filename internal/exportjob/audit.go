package exportjob

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/exportapi"
	"github.com/harborcare/careexport/internal/model"
)

// AuditNotifier emits compliance events for privileged data operations.
// Emission is advisory: a failed or slow audit sink must never fail the
// operation being audited, so errors are logged and swallowed.
type AuditNotifier struct {
	api     exportapi.API
	actorID string
	timeout time.Duration
}

// NewAuditNotifier constructs a notifier acting as actorID.
func NewAuditNotifier(api exportapi.API, actorID string) *AuditNotifier {
	return &AuditNotifier{api: api, actorID: actorID, timeout: 5 * time.Second}
}

// Notify records one audit event, best-effort. The emit runs under its own
// deadline so a stalled sink cannot hold the caller past the timeout.
func (n *AuditNotifier) Notify(ctx context.Context, action model.AuditAction, resourceType, resourceID string, metadata map[string]string) {
	event := model.AuditEvent{
		ActorID:      n.actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
	emitCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.api.RecordAuditEvent(emitCtx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"action":   action,
			"resource": resourceID,
		}).Warn("audit event dropped")
	}
}
