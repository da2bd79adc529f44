package feed

import "time"

// Plan is the mutation decided for one ingestion cycle. It is applied by the
// store as a single transaction: delete then insert, all or nothing.
type Plan struct {
	// DeleteFrom, when non-nil, deletes every stored row with
	// record_date >= DeleteFrom before inserting. Nil on initial load.
	DeleteFrom *time.Time

	// Insert is the replacement batch.
	Insert []Record

	// SkippedOld counts parsed rows dropped because they are already stored
	// outside the rewrite window.
	SkippedOld int
}

// RewriteWindow returns the delete threshold for an incremental cycle:
// yesterday relative to now. The upstream source revises its last 1-2 days
// of figures, so rows at or after this date are rewritten each cycle.
func RewriteWindow(now time.Time) time.Time {
	return Day(now).AddDate(0, 0, -1)
}

// Reconcile decides which stored rows to delete and which parsed rows to
// insert, given the stored maximum record date and whether any rows exist.
//
// With an empty store (hasData false, or maxDate nil) this is an initial
// full load: no deletion, every parsed row inserted. Otherwise rows with
// record_date >= yesterday are deleted and re-inserted from the feed, and
// rows already stored before the window are skipped. Only genuinely new
// days past the stored maximum are added beyond the rewritten tail.
func Reconcile(now time.Time, hasData bool, maxDate *time.Time, rows []Record) Plan {
	if !hasData || maxDate == nil {
		return Plan{Insert: rows}
	}

	window := RewriteWindow(now)

	// Highest stored date surviving the delete. Everything at or before it
	// is untouched history and must not be re-inserted.
	cutoff := Day(*maxDate)
	if !cutoff.Before(window) {
		cutoff = window.AddDate(0, 0, -1)
	}

	plan := Plan{DeleteFrom: &window}
	for _, r := range rows {
		if !r.RecordDate.After(cutoff) {
			plan.SkippedOld++
			continue
		}
		plan.Insert = append(plan.Insert, r)
	}
	return plan
}
