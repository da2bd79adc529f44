package feed

import (
	"testing"
	"time"
)

func rec(day, iso string) Record {
	one := int64(1)
	return Record{RecordDate: date(day), CountryISO: iso, CountryName: iso, NewCases: &one, NewDeath: &one}
}

func TestReconcileInitialLoad(t *testing.T) {
	// WHAT: An empty store takes every parsed row with no delete step.
	// WHY: Full load happens exactly once; after that only the tail moves.
	now := date("2020-05-29")
	rows := []Record{rec("2020-05-01", "UA"), rec("2020-05-28", "UA")}

	plan := Reconcile(now, false, nil, rows)
	if plan.DeleteFrom != nil {
		t.Errorf("DeleteFrom: got %v, want nil", plan.DeleteFrom)
	}
	if len(plan.Insert) != 2 {
		t.Errorf("insert: got %d rows, want 2", len(plan.Insert))
	}
	if plan.SkippedOld != 0 {
		t.Errorf("skipped: got %d, want 0", plan.SkippedOld)
	}
}

func TestReconcileMaxDateMissingFallsBackToFullLoad(t *testing.T) {
	// WHAT: hasData true but no max date behaves like an initial load.
	// WHY: The empty-table edge must not emit a delete with no insert source.
	now := date("2020-05-29")
	plan := Reconcile(now, true, nil, []Record{rec("2020-05-28", "UA")})
	if plan.DeleteFrom != nil {
		t.Errorf("DeleteFrom: got %v, want nil", plan.DeleteFrom)
	}
	if len(plan.Insert) != 1 {
		t.Errorf("insert: got %d rows, want 1", len(plan.Insert))
	}
}

func TestReconcileRewriteWindow(t *testing.T) {
	// WHAT: With existing data, the last two days are deleted and
	// re-inserted; older rows are skipped.
	// WHY: The upstream source revises its recent figures; untouched
	// history must not be re-affirmed.
	now := date("2020-05-29") // window starts 2020-05-28
	max := date("2020-05-29")
	rows := []Record{
		rec("2020-05-01", "UA"), // old, skipped
		rec("2020-05-27", "UA"), // before window, skipped
		rec("2020-05-28", "UA"), // inside window, re-inserted
		rec("2020-05-29", "UA"), // inside window, re-inserted
	}

	plan := Reconcile(now, true, &max, rows)
	if plan.DeleteFrom == nil || !plan.DeleteFrom.Equal(date("2020-05-28")) {
		t.Fatalf("DeleteFrom: got %v, want 2020-05-28", plan.DeleteFrom)
	}
	if len(plan.Insert) != 2 {
		t.Fatalf("insert: got %d rows, want 2", len(plan.Insert))
	}
	for _, r := range plan.Insert {
		if r.RecordDate.Before(date("2020-05-28")) {
			t.Errorf("inserted row before window: %v", r.RecordDate)
		}
	}
	if plan.SkippedOld != 2 {
		t.Errorf("skipped: got %d, want 2", plan.SkippedOld)
	}
}

func TestReconcileStaleStoreTakesNewDays(t *testing.T) {
	// WHAT: When the store lags several days behind, rows past the stored
	// maximum are inserted even though they predate the rewrite window.
	now := date("2020-05-29") // window starts 2020-05-28
	max := date("2020-05-25")
	rows := []Record{
		rec("2020-05-25", "UA"), // stored already
		rec("2020-05-26", "UA"), // new day
		rec("2020-05-27", "UA"), // new day
		rec("2020-05-28", "UA"), // window
	}

	plan := Reconcile(now, true, &max, rows)
	if len(plan.Insert) != 3 {
		t.Fatalf("insert: got %d rows, want 3", len(plan.Insert))
	}
	if plan.SkippedOld != 1 {
		t.Errorf("skipped: got %d, want 1", plan.SkippedOld)
	}
}

func TestRewriteWindow(t *testing.T) {
	now := time.Date(2020, 5, 29, 15, 42, 7, 0, time.UTC)
	if got := RewriteWindow(now); !got.Equal(date("2020-05-28")) {
		t.Errorf("RewriteWindow: got %v, want 2020-05-28", got)
	}
}
