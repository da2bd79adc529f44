package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Column positions in the source CSV, after the header row. The mapping is
// positional, not header-based: the upstream file has carried the same
// column order since its first revision, and the read path depends on it.
// Columns not listed here are ignored.
const (
	colDate    = 0
	colISO     = 1
	colName    = 2
	colCases   = 4
	colDeath   = 6
	minColumns = 7
)

// ParseError reports a row that could not be coerced into a Record.
// Row is the 1-based index of the row in the source file (header included).
type ParseError struct {
	Row int
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("feed: row %d: %v", e.Row, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseRow turns one raw CSV record into a Record.
//
// Coercion rules, applied per cell:
//   - a date-with-time stamp (two '-' separators in the date portion) is
//     truncated to its date part and parsed as a calendar date
//   - a string of decimal digits is parsed as a non-negative integer
//   - a blank count cell yields a nil count (absent, not zero)
//
// A row that cannot be coerced yields a *ParseError carrying the row index;
// the caller records it and moves on.
func ParseRow(row int, fields []string) (Record, error) {
	if len(fields) < minColumns {
		return Record{}, &ParseError{Row: row, Err: fmt.Errorf("got %d columns, want at least %d", len(fields), minColumns)}
	}

	date, err := coerceDate(fields[colDate])
	if err != nil {
		return Record{}, &ParseError{Row: row, Err: err}
	}

	iso := strings.TrimSpace(fields[colISO])
	if iso == "" {
		return Record{}, &ParseError{Row: row, Err: fmt.Errorf("empty country code")}
	}

	name := strings.TrimSpace(fields[colName])
	if name == "" {
		name = iso
	}

	cases, err := coerceCount(fields[colCases])
	if err != nil {
		return Record{}, &ParseError{Row: row, Err: fmt.Errorf("new_cases: %w", err)}
	}
	death, err := coerceCount(fields[colDeath])
	if err != nil {
		return Record{}, &ParseError{Row: row, Err: fmt.Errorf("new_death: %w", err)}
	}

	return Record{
		RecordDate:  date,
		CountryISO:  iso,
		CountryName: name,
		NewCases:    cases,
		NewDeath:    death,
	}, nil
}

// coerceDate accepts "2020-05-27" or a longer timestamp starting with that
// form ("2020-05-27T10:00:00Z"); anything else is an error.
func coerceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(time.DateOnly) || s[4] != '-' || s[7] != '-' {
		return time.Time{}, fmt.Errorf("not a date: %q", s)
	}
	d, err := time.ParseInLocation(time.DateOnly, s[:len(time.DateOnly)], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a date: %q: %w", s, err)
	}
	return d, nil
}

// coerceCount parses an all-digits cell; blank means absent (nil).
func coerceCount(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("not a count: %q", s)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("not a count: %q: %w", s, err)
	}
	return &n, nil
}
