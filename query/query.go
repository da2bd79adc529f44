// Package query answers point and cumulative read requests over committed
// store state.
//
// Policy on missing data: a cumulative query with no contributing rows is
// NotFound, and a cumulative result reports the latest date actually
// present, which may be earlier than the date asked for. Malformed input
// is a ValidationError, never NotFound.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bezzelek/corronaservice/feed"
	"github.com/bezzelek/corronaservice/store"
)

// ErrNotFound means the query matched zero rows (or zero non-NULL counts).
var ErrNotFound = errors.New("query: no matching data")

// ValidationError reports a malformed request parameter.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("query: invalid %s: %s", e.Field, e.Detail)
}

// Summary is the answer to any read operation.
type Summary struct {
	Country string    `json:"country"`
	Date    time.Time `json:"date"`
	Cases   int64     `json:"cases"`
	Death   int64     `json:"death"`
}

// MarshalJSON renders Date as a plain calendar day.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Country string `json:"country"`
		Date    string `json:"date"`
		Cases   int64  `json:"cases"`
		Death   int64  `json:"death"`
	}{s.Country, s.Date.Format(time.DateOnly), s.Cases, s.Death})
}

// Engine translates read requests into store calls.
type Engine struct {
	store *store.Store
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the wall clock (used by the default-date rule).
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a query Engine over the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{store: s, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CountryOnDate returns the exact record for one country and one day.
func (e *Engine) CountryOnDate(ctx context.Context, country, rawDate string) (*Summary, error) {
	iso, err := parseCountry(country)
	if err != nil {
		return nil, err
	}
	date, err := parseDateParam(rawDate, e.now)
	if err != nil {
		return nil, err
	}

	rec, err := e.store.QueryOne(ctx, iso, date)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return &Summary{
		Country: rec.CountryName,
		Date:    rec.RecordDate,
		Cases:   orZero(rec.NewCases),
		Death:   orZero(rec.NewDeath),
	}, nil
}

// CountryTotal returns cumulative counts for one country up to and
// including asOf (default: today). The reported date is the latest record
// actually present, which may be earlier than asOf.
func (e *Engine) CountryTotal(ctx context.Context, country, rawAsOf string) (*Summary, error) {
	iso, err := parseCountry(country)
	if err != nil {
		return nil, err
	}
	asOf, err := parseDateParam(rawAsOf, e.now)
	if err != nil {
		return nil, err
	}

	res, err := e.store.Aggregate(ctx, store.AggFilter{ISO: iso, UpTo: &asOf})
	if err != nil {
		return nil, err
	}
	if res.MaxDate == nil {
		return nil, ErrNotFound
	}
	name := res.Name
	if name == "" {
		name = iso
	}
	return &Summary{
		Country: name,
		Date:    *res.MaxDate,
		Cases:   orZero(res.Cases),
		Death:   orZero(res.Death),
	}, nil
}

// WorldTotal returns cumulative counts across all countries up to and
// including asOf (default: today).
func (e *Engine) WorldTotal(ctx context.Context, rawAsOf string) (*Summary, error) {
	asOf, err := parseDateParam(rawAsOf, e.now)
	if err != nil {
		return nil, err
	}

	res, err := e.store.Aggregate(ctx, store.AggFilter{UpTo: &asOf})
	if err != nil {
		return nil, err
	}
	if res.MaxDate == nil {
		return nil, ErrNotFound
	}
	return &Summary{
		Country: "World",
		Date:    *res.MaxDate,
		Cases:   orZero(res.Cases),
		Death:   orZero(res.Death),
	}, nil
}

// WorldOnDate returns global counts for exactly one day.
func (e *Engine) WorldOnDate(ctx context.Context, rawDate string) (*Summary, error) {
	date, err := parseDateParam(rawDate, e.now)
	if err != nil {
		return nil, err
	}

	res, err := e.store.Aggregate(ctx, store.AggFilter{On: &date})
	if err != nil {
		return nil, err
	}
	if res.Cases == nil && res.Death == nil {
		return nil, ErrNotFound
	}
	return &Summary{
		Country: "World",
		Date:    date,
		Cases:   orZero(res.Cases),
		Death:   orZero(res.Death),
	}, nil
}

// parseCountry validates and uppercases a 2-letter ISO code.
func parseCountry(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return "", &ValidationError{Field: "country", Detail: fmt.Sprintf("%q is not a 2-letter ISO code", s)}
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return "", &ValidationError{Field: "country", Detail: fmt.Sprintf("%q is not a 2-letter ISO code", s)}
		}
	}
	return strings.ToUpper(s), nil
}

// parseDateParam validates a strict YYYY-MM-DD date; empty means today.
func parseDateParam(s string, now func() time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return feed.Day(now()), nil
	}
	d, err := feed.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Detail: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return d, nil
}

func orZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
