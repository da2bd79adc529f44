// Package ingest implements the daily feed ingestion pipeline.
//
// Flow:
//  1. Download the current CSV export (HTTP or browser fetcher)
//  2. Parse rows, isolating malformed ones
//  3. Reconcile against the store's rewrite window
//  4. Commit the delete+insert plan in one transaction
//  5. Record the cycle outcome in ingest_log
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bezzelek/corronaservice/feed"
	"github.com/bezzelek/corronaservice/idgen"
	"github.com/bezzelek/corronaservice/store"
)

// Cycle stages, recorded in ingest_log as the pipeline advances.
const (
	StageDownloading = "downloading"
	StageParsing     = "parsing"
	StageReconciling = "reconciling"
	StageCommitting  = "committing"
	StageDone        = "done"
)

// Fetcher retrieves the raw CSV export.
type Fetcher interface {
	Download(ctx context.Context) ([]byte, error)
}

// Runner drives one ingestion cycle end to end.
type Runner struct {
	fetcher Fetcher
	store   *store.Store
	logger  *slog.Logger
	newID   idgen.Generator
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithNow overrides the clock. Used by tests to pin the rewrite window.
func WithNow(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner.
func New(f Fetcher, s *store.Store, opts ...Option) *Runner {
	r := &Runner{
		fetcher: f,
		store:   s,
		logger:  slog.Default(),
		newID:   idgen.Prefixed("cyc_", idgen.Default),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one ingestion cycle. The returned entry describes the
// outcome; it is also persisted to ingest_log regardless of success.
func (r *Runner) Run(ctx context.Context) (*store.CycleEntry, error) {
	started := r.now()
	entry := &store.CycleEntry{
		ID:        r.newID(),
		Stage:     StageDownloading,
		StartedAt: started.UnixMilli(),
	}
	if err := r.store.InsertCycle(ctx, entry); err != nil {
		return nil, err
	}
	log := r.logger.With("cycle_id", entry.ID)

	err := r.run(ctx, log, entry)
	entry.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		entry.Status = store.CycleFailed
		entry.ErrorMessage = err.Error()
		log.Error("ingest: cycle failed", "stage", entry.Stage, "error", err)
	} else {
		entry.Status = store.CycleCompleted
		entry.Stage = StageDone
		log.Info("ingest: cycle completed",
			"parsed", entry.RowsParsed,
			"skipped", entry.RowsSkipped,
			"parse_errors", entry.ParseErrors,
			"deleted", entry.RowsDeleted,
			"inserted", entry.RowsInserted,
			"duration_ms", entry.DurationMs)
	}
	if cerr := r.store.CompleteCycle(ctx, entry); cerr != nil {
		log.Warn("ingest: complete cycle entry", "error", cerr)
	}
	return entry, err
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, entry *store.CycleEntry) error {
	raw, err := r.fetcher.Download(ctx)
	if err != nil {
		return fmt.Errorf("ingest: download: %w", err)
	}
	log.Debug("ingest: downloaded", "bytes", len(raw))

	entry.Stage = StageParsing
	rows, parseErrs, err := parseCSV(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	entry.ParseErrors = len(parseErrs)
	for _, pe := range parseErrs {
		log.Warn("ingest: row skipped", "row", pe.Row, "error", pe.Err)
	}
	if len(rows) == 0 {
		return errors.New("ingest: export contained no usable rows")
	}

	entry.Stage = StageReconciling
	count, err := r.store.CountAll(ctx)
	if err != nil {
		return err
	}
	maxDate, err := r.store.MaxDate(ctx)
	if err != nil {
		return err
	}
	plan := feed.Reconcile(r.now(), count > 0, maxDate, rows)
	entry.RowsParsed = len(rows)
	entry.RowsSkipped = plan.SkippedOld

	entry.Stage = StageCommitting
	deleted, inserted, err := r.store.Apply(ctx, plan)
	if err != nil {
		return err
	}
	entry.RowsDeleted = deleted
	entry.RowsInserted = inserted
	return nil
}

// parseCSV reads the export, skipping the header and isolating bad rows
// so one malformed line never sinks the whole cycle.
func parseCSV(r io.Reader) ([]feed.Record, []*feed.ParseError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // row width is validated per row

	var (
		records   []feed.Record
		parseErrs []*feed.ParseError
		rowNum    int
	)
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("ingest: read csv: %w", err)
		}
		rowNum++
		if rowNum == 1 {
			continue // header
		}
		rec, err := feed.ParseRow(rowNum, fields)
		if err != nil {
			var pe *feed.ParseError
			if errors.As(err, &pe) {
				parseErrs = append(parseErrs, pe)
				continue
			}
			return nil, nil, err
		}
		records = append(records, rec)
	}
	return records, parseErrs, nil
}
