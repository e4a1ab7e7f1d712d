// Package model contains the struct definitions shared between the API,
// worker, and operator client.
package model

import (
	"time"
)

// ExportType enumerates the data categories that can be exported.
type ExportType string

const (
	ExportCheckIns          ExportType = "check_ins"
	ExportMedicationLogs    ExportType = "medication_logs"
	ExportCarePlans         ExportType = "care_plans"
	ExportActivitySummaries ExportType = "activity_summaries"
	ExportFHIRResources     ExportType = "fhir_resources"
	ExportIncidentReports   ExportType = "incident_reports"
	ExportAuditTrail        ExportType = "audit_trail"
)

// AccessTier gates which export types a caller may request.
type AccessTier string

const (
	TierStandard AccessTier = "standard"
	TierElevated AccessTier = "elevated"
)

// baseExports are available to every privileged caller; elevatedExports
// additionally require TierElevated.
var baseExports = []ExportType{
	ExportCheckIns,
	ExportMedicationLogs,
	ExportCarePlans,
	ExportActivitySummaries,
}

var elevatedExports = []ExportType{
	ExportFHIRResources,
	ExportIncidentReports,
	ExportAuditTrail,
}

// phiExports carry protected health information and require an audit trail
// for every export initiation and download.
var phiExports = map[ExportType]bool{
	ExportCheckIns:        true,
	ExportMedicationLogs:  true,
	ExportFHIRResources:   true,
	ExportIncidentReports: true,
}

// KnownExportType reports whether t belongs to the export-type enumeration.
func KnownExportType(t ExportType) bool {
	for _, e := range baseExports {
		if e == t {
			return true
		}
	}
	for _, e := range elevatedExports {
		if e == t {
			return true
		}
	}
	return false
}

// PermittedExportType reports whether tier may request t. An unknown type is
// never permitted.
func PermittedExportType(t ExportType, tier AccessTier) bool {
	for _, e := range baseExports {
		if e == t {
			return true
		}
	}
	if tier != TierElevated {
		return false
	}
	for _, e := range elevatedExports {
		if e == t {
			return true
		}
	}
	return false
}

// PermittedExportTypes returns the allow-list for tier, base types first.
func PermittedExportTypes(tier AccessTier) []ExportType {
	out := make([]ExportType, 0, len(baseExports)+len(elevatedExports))
	out = append(out, baseExports...)
	if tier == TierElevated {
		out = append(out, elevatedExports...)
	}
	return out
}

// ContainsPHI reports whether exports of type t must be audited.
func ContainsPHI(t ExportType) bool {
	return phiExports[t]
}

// categoryDimensions names the attribute a Categories filter selects on, for
// the export types that have one. Types absent here reject category filters
// at submission rather than silently ignoring them.
var categoryDimensions = map[ExportType]string{
	ExportMedicationLogs:    "medication",
	ExportActivitySummaries: "activity",
	ExportFHIRResources:     "resource type",
	ExportIncidentReports:   "severity",
	ExportAuditTrail:        "action",
}

// CategoryFilterable reports whether exports of type t accept a category
// filter, and the attribute it selects on.
func CategoryFilterable(t ExportType) (string, bool) {
	dim, ok := categoryDimensions[t]
	return dim, ok
}

// ExportStatus is the lifecycle state of an export job. Transitions only move
// forward: pending < processing < {completed, failed}.
type ExportStatus string

const (
	StatusPending    ExportStatus = "pending"
	StatusProcessing ExportStatus = "processing"
	StatusCompleted  ExportStatus = "completed"
	StatusFailed     ExportStatus = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s ExportStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses for the monotonicity check; terminal states share the
// highest rank.
func (s ExportStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// ExportFormat selects the artifact encoding.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportFilters is the value object attached to a submission. A job copies it
// at creation time; later edits affect only subsequently created jobs.
type ExportFilters struct {
	DateFrom   time.Time    `json:"dateFrom"`
	DateTo     time.Time    `json:"dateTo"`
	Categories []string     `json:"categories,omitempty"`
	Format     ExportFormat `json:"format"`
	Compress   bool         `json:"compress"`
}

// ExportJob is one export request and its lifecycle record.
//
// DownloadURL, CompletedAt, and Error are pointers so absence is
// distinguishable from a zero value: DownloadURL is set only once the job
// completes, Error only once it fails, CompletedAt exactly once when the job
// first reaches a terminal state.
type ExportJob struct {
	ID               string        `json:"id"`
	ExportType       ExportType    `json:"exportType"`
	Status           ExportStatus  `json:"status"`
	Progress         int           `json:"progress"`
	TotalRecords     int64         `json:"totalRecords"`
	ProcessedRecords int64         `json:"processedRecords"`
	RequestedBy      string        `json:"requestedBy,omitempty"`
	Filters          ExportFilters `json:"filters"`
	StartedAt        time.Time     `json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	DownloadURL      *string       `json:"downloadUrl,omitempty"`
	Error            *string       `json:"error,omitempty"`
}

// ArtifactName builds the suggested filename for a job's artifact from the
// export type, submission date, format, and compression suffix. Deterministic
// given the job.
func (j *ExportJob) ArtifactName() string {
	name := string(j.ExportType) + "_" + j.StartedAt.UTC().Format("2006-01-02") + "." + string(j.Filters.Format)
	if j.Filters.Compress {
		name += ".gz"
	}
	return name
}
