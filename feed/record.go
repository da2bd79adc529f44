// Package feed parses rows of the daily epidemiological CSV feed and plans
// their reconciliation against previously stored data.
//
// The feed is one row per (record date, country): incremental daily counts,
// not cumulative totals. The upstream source revises its most recent 1-2
// days of figures, so reconciliation rewrites a rolling two-day window
// instead of reloading the full history.
package feed

import (
	"fmt"
	"time"
)

// Record is one day of counts for one country.
type Record struct {
	RecordDate  time.Time // calendar date, UTC midnight
	CountryISO  string    // ISO 3166-1 alpha-2 code, kept as received
	CountryName string    // display name; defaults to the ISO code when blank
	NewCases    *int64    // nil when the source cell is blank
	NewDeath    *int64    // nil when the source cell is blank
}

// Day truncates t to a calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a strict YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("feed: invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}
