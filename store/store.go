// Package store is the data access layer for daily country records.
//
// It receives an already-opened *sql.DB (see dbopen) and exposes the
// primitives the reconciliation and query engines need: count, max date,
// exact lookup, aggregation, and the atomic delete-then-insert that commits
// one ingestion cycle. ISO codes are stored as received and compared
// case-insensitively at every lookup.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bezzelek/corronaservice/dbopen"
	"github.com/bezzelek/corronaservice/feed"
)

// Store wraps the service database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ApplySchema creates the service tables.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// CountAll returns the number of stored daily records.
func (s *Store) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_records`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// MaxDate returns the highest stored record date, or nil on an empty table.
func (s *Store) MaxDate(ctx context.Context) (*time.Time, error) {
	var raw sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(record_date) FROM daily_records`).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("store: max date: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	d, err := feed.ParseDate(raw.String)
	if err != nil {
		return nil, fmt.Errorf("store: max date: %w", err)
	}
	return &d, nil
}

// QueryOne returns the record for (iso, date), or nil when none exists.
// The ISO match is case-insensitive.
func (s *Store) QueryOne(ctx context.Context, iso string, date time.Time) (*feed.Record, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT record_date, country_iso2, country_name, new_cases, new_death
		FROM daily_records
		WHERE UPPER(country_iso2) = ? AND record_date = ?`,
		strings.ToUpper(iso), date.Format(time.DateOnly))

	var (
		rawDate      string
		rec          feed.Record
		cases, death sql.NullInt64
	)
	err := row.Scan(&rawDate, &rec.CountryISO, &rec.CountryName, &cases, &death)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query one: %w", err)
	}
	if rec.RecordDate, err = feed.ParseDate(rawDate); err != nil {
		return nil, fmt.Errorf("store: query one: %w", err)
	}
	if cases.Valid {
		rec.NewCases = &cases.Int64
	}
	if death.Valid {
		rec.NewDeath = &death.Int64
	}
	return &rec, nil
}

// AggFilter selects the rows contributing to an Aggregate call.
// Exactly one of UpTo/On must be set.
type AggFilter struct {
	ISO  string     // optional; empty means all countries
	UpTo *time.Time // record_date <= UpTo
	On   *time.Time // record_date == On
}

// AggResult is a null-skipping aggregate over matching rows. MaxDate is nil
// when no rows matched; Cases/Death are nil when no matching row carried a
// non-NULL count.
type AggResult struct {
	MaxDate *time.Time
	Name    string // display name when ISO-filtered, "" otherwise
	Cases   *int64
	Death   *int64
}

// Aggregate computes MAX(record_date), SUM(new_cases), SUM(new_death) for
// rows matching the filter. SQL SUM semantics apply: NULL counts don't
// contribute, and a group with zero non-NULL values yields NULL.
func (s *Store) Aggregate(ctx context.Context, f AggFilter) (AggResult, error) {
	if (f.UpTo == nil) == (f.On == nil) {
		return AggResult{}, fmt.Errorf("store: aggregate: exactly one of UpTo/On required")
	}

	q := `SELECT MAX(record_date), MAX(country_name), SUM(new_cases), SUM(new_death) FROM daily_records WHERE 1=1`
	var args []any
	if f.ISO != "" {
		q += ` AND UPPER(country_iso2) = ?`
		args = append(args, strings.ToUpper(f.ISO))
	}
	if f.UpTo != nil {
		q += ` AND record_date <= ?`
		args = append(args, f.UpTo.Format(time.DateOnly))
	} else {
		q += ` AND record_date = ?`
		args = append(args, f.On.Format(time.DateOnly))
	}

	var (
		rawDate, rawName sql.NullString
		cases, death     sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, q, args...).Scan(&rawDate, &rawName, &cases, &death)
	if err != nil {
		return AggResult{}, fmt.Errorf("store: aggregate: %w", err)
	}

	var res AggResult
	if rawDate.Valid {
		d, err := feed.ParseDate(rawDate.String)
		if err != nil {
			return AggResult{}, fmt.Errorf("store: aggregate: %w", err)
		}
		res.MaxDate = &d
	}
	if f.ISO != "" && rawName.Valid {
		res.Name = rawName.String
	}
	if cases.Valid {
		res.Cases = &cases.Int64
	}
	if death.Valid {
		res.Death = &death.Int64
	}
	return res, nil
}

// Apply commits a reconciliation plan in a single transaction: the window
// delete and the batch insert either both land or neither does. Readers
// never observe the intermediate state. Returns rows deleted and inserted.
func (s *Store) Apply(ctx context.Context, plan feed.Plan) (deleted, inserted int64, err error) {
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		deleted, inserted = 0, 0 // reset on busy retry
		if plan.DeleteFrom != nil {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM daily_records WHERE record_date >= ?`,
				plan.DeleteFrom.Format(time.DateOnly))
			if err != nil {
				return fmt.Errorf("store: delete window: %w", err)
			}
			deleted, _ = res.RowsAffected()
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_records (record_date, country_iso2, country_name, new_cases, new_death)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (record_date, country_iso2) DO UPDATE SET
				country_name = excluded.country_name,
				new_cases    = excluded.new_cases,
				new_death    = excluded.new_death`)
		if err != nil {
			return fmt.Errorf("store: prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range plan.Insert {
			var cases, death any
			if r.NewCases != nil {
				cases = *r.NewCases
			}
			if r.NewDeath != nil {
				death = *r.NewDeath
			}
			if _, err := stmt.ExecContext(ctx,
				r.RecordDate.Format(time.DateOnly), r.CountryISO, r.CountryName, cases, death); err != nil {
				return fmt.Errorf("store: insert %s/%s: %w", r.CountryISO, r.RecordDate.Format(time.DateOnly), err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return deleted, inserted, nil
}
