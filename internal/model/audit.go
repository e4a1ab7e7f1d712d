package model

import "time"

// AuditAction names a privileged data operation recorded for compliance.
type AuditAction string

const (
	ActionExportInitiated  AuditAction = "export_initiated"
	ActionExportDownloaded AuditAction = "export_downloaded"
	ActionFormUploaded     AuditAction = "form_uploaded"
	ActionEntitlementSet   AuditAction = "entitlement_changed"
)

// AuditEvent is one row in the compliance trail. The surrounding platform
// retains these for seven years, so events carry the actor and resource
// identifiers rather than references into mutable state.
type AuditEvent struct {
	ID           int64             `json:"id,omitempty"`
	ActorID      string            `json:"actorId"`
	Action       AuditAction       `json:"action"`
	ResourceType string            `json:"resourceType"`
	ResourceID   string            `json:"resourceId"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}
