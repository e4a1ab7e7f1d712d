package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/harborcare/careexport/internal/model"
)

func TestSourcePredicateAppliesCategories(t *testing.T) {
	src := sourceTables[model.ExportIncidentReports]
	filters := model.ExportFilters{
		DateFrom:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		DateTo:     time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		Categories: []string{"high", "critical"},
	}
	where, args, err := src.wherePredicate(filters)
	if err != nil {
		t.Fatalf("predicate: %v", err)
	}
	if !strings.Contains(where, "severity = ANY($3)") {
		t.Fatalf("category predicate missing: %q", where)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 bind args, got %d", len(args))
	}
	cats, ok := args[2].([]string)
	if !ok || len(cats) != 2 {
		t.Fatalf("category arg = %v", args[2])
	}
}

func TestSourcePredicateWithoutCategories(t *testing.T) {
	src := sourceTables[model.ExportCheckIns]
	where, args, err := src.wherePredicate(model.ExportFilters{})
	if err != nil {
		t.Fatalf("predicate: %v", err)
	}
	if strings.Contains(where, "ANY") {
		t.Fatalf("unexpected category predicate: %q", where)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 bind args, got %d", len(args))
	}
}

func TestSourcePredicateRejectsUnsupportedCategories(t *testing.T) {
	src := sourceTables[model.ExportCarePlans]
	if _, _, err := src.wherePredicate(model.ExportFilters{Categories: []string{"mobility"}}); err == nil {
		t.Fatalf("expected error for category filter on care_plans")
	}
}

func TestSourceTablesAgreeWithCategoryFilterable(t *testing.T) {
	for _, exportType := range model.PermittedExportTypes(model.TierElevated) {
		src, ok := sourceTables[exportType]
		if !ok {
			t.Fatalf("no source table for %q", exportType)
		}
		_, filterable := model.CategoryFilterable(exportType)
		if filterable != (src.categoryColumn != "") {
			t.Errorf("%q: model filterable=%v but category column %q", exportType, filterable, src.categoryColumn)
		}
	}
}
