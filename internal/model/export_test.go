package model

import (
	"testing"
	"time"
)

func TestPermittedExportTypeByTier(t *testing.T) {
	cases := []struct {
		exportType ExportType
		tier       AccessTier
		want       bool
	}{
		{ExportCheckIns, TierStandard, true},
		{ExportActivitySummaries, TierStandard, true},
		{ExportFHIRResources, TierStandard, false},
		{ExportAuditTrail, TierStandard, false},
		{ExportFHIRResources, TierElevated, true},
		{ExportIncidentReports, TierElevated, true},
		{ExportCheckIns, TierElevated, true},
		{"dietary_menus", TierElevated, false},
		{"", TierStandard, false},
	}
	for _, tc := range cases {
		if got := PermittedExportType(tc.exportType, tc.tier); got != tc.want {
			t.Errorf("PermittedExportType(%q, %q) = %v, want %v", tc.exportType, tc.tier, got, tc.want)
		}
	}
}

func TestPermittedExportTypesBaseFirst(t *testing.T) {
	standard := PermittedExportTypes(TierStandard)
	if len(standard) != 4 {
		t.Fatalf("standard tier has %d types, want 4", len(standard))
	}
	elevated := PermittedExportTypes(TierElevated)
	if len(elevated) != 7 {
		t.Fatalf("elevated tier has %d types, want 7", len(elevated))
	}
	for i, exportType := range standard {
		if elevated[i] != exportType {
			t.Fatalf("elevated list does not start with the base list")
		}
	}
}

func TestKnownExportType(t *testing.T) {
	for _, exportType := range PermittedExportTypes(TierElevated) {
		if !KnownExportType(exportType) {
			t.Errorf("KnownExportType(%q) = false", exportType)
		}
	}
	if KnownExportType("resident_photos") {
		t.Errorf("unknown type reported as known")
	}
}

func TestContainsPHI(t *testing.T) {
	phi := []ExportType{ExportCheckIns, ExportMedicationLogs, ExportFHIRResources, ExportIncidentReports}
	for _, exportType := range phi {
		if !ContainsPHI(exportType) {
			t.Errorf("ContainsPHI(%q) = false", exportType)
		}
	}
	clean := []ExportType{ExportCarePlans, ExportActivitySummaries, ExportAuditTrail}
	for _, exportType := range clean {
		if ContainsPHI(exportType) {
			t.Errorf("ContainsPHI(%q) = true", exportType)
		}
	}
}

func TestCategoryFilterable(t *testing.T) {
	dim, ok := CategoryFilterable(ExportIncidentReports)
	if !ok || dim != "severity" {
		t.Fatalf("incident_reports dimension = %q, %v", dim, ok)
	}
	for _, exportType := range []ExportType{ExportCheckIns, ExportCarePlans} {
		if _, ok := CategoryFilterable(exportType); ok {
			t.Errorf("%q should not accept category filters", exportType)
		}
	}
}

func TestStatusRankOrdersLifecycle(t *testing.T) {
	if !(StatusPending.Rank() < StatusProcessing.Rank()) {
		t.Fatalf("pending must rank below processing")
	}
	if !(StatusProcessing.Rank() < StatusCompleted.Rank()) {
		t.Fatalf("processing must rank below completed")
	}
	if StatusCompleted.Rank() != StatusFailed.Rank() {
		t.Fatalf("terminal states must share a rank")
	}
	if ExportStatus("archived").Rank() != -1 {
		t.Fatalf("unknown status must rank -1")
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusProcessing.Terminal() {
		t.Fatalf("live statuses reported terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("terminal statuses not reported terminal")
	}
}

func TestArtifactName(t *testing.T) {
	started := time.Date(2026, 8, 14, 23, 45, 0, 0, time.FixedZone("PST", -8*3600))
	job := ExportJob{
		ExportType: ExportMedicationLogs,
		StartedAt:  started,
		Filters:    ExportFilters{Format: FormatJSON},
	}
	// The date component is the UTC day, so a late PST submission rolls over.
	if got := job.ArtifactName(); got != "medication_logs_2026-08-15.json" {
		t.Fatalf("ArtifactName() = %s", got)
	}
	job.Filters.Compress = true
	if got := job.ArtifactName(); got != "medication_logs_2026-08-15.json.gz" {
		t.Fatalf("compressed ArtifactName() = %s", got)
	}
	if job.ArtifactName() != job.ArtifactName() {
		t.Fatalf("ArtifactName not deterministic")
	}
}
