package store

import (
	"context"
	"fmt"
	"time"
)

// Cycle statuses.
const (
	CycleRunning   = "running"
	CycleCompleted = "completed"
	CycleFailed    = "failed"
)

// CycleEntry is one ingestion cycle record.
type CycleEntry struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Stage        string `json:"stage"`
	RowsParsed   int    `json:"rows_parsed"`
	RowsSkipped  int    `json:"rows_skipped"`
	ParseErrors  int    `json:"parse_errors"`
	RowsDeleted  int64  `json:"rows_deleted"`
	RowsInserted int64  `json:"rows_inserted"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	StartedAt    int64  `json:"started_at"` // unix millis
}

// InsertCycle records the start of an ingestion cycle.
func (s *Store) InsertCycle(ctx context.Context, e *CycleEntry) error {
	if e.StartedAt == 0 {
		e.StartedAt = time.Now().UnixMilli()
	}
	if e.Status == "" {
		e.Status = CycleRunning
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ingest_log (id, status, stage, rows_parsed, rows_skipped,
		parse_errors, rows_deleted, rows_inserted, error_message, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Status, e.Stage, e.RowsParsed, e.RowsSkipped,
		e.ParseErrors, e.RowsDeleted, e.RowsInserted, e.ErrorMessage, e.DurationMs, e.StartedAt)
	if err != nil {
		return fmt.Errorf("store: insert cycle: %w", err)
	}
	return nil
}

// CompleteCycle finalises a cycle entry with its outcome.
func (s *Store) CompleteCycle(ctx context.Context, e *CycleEntry) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE ingest_log SET status=?, stage=?, rows_parsed=?, rows_skipped=?,
		parse_errors=?, rows_deleted=?, rows_inserted=?, error_message=?, duration_ms=?
		WHERE id=?`,
		e.Status, e.Stage, e.RowsParsed, e.RowsSkipped,
		e.ParseErrors, e.RowsDeleted, e.RowsInserted, e.ErrorMessage, e.DurationMs, e.ID)
	if err != nil {
		return fmt.Errorf("store: complete cycle: %w", err)
	}
	return nil
}

// CycleHistory returns cycle entries, newest first.
func (s *Store) CycleHistory(ctx context.Context, limit int) ([]*CycleEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, status, stage, rows_parsed, rows_skipped, parse_errors,
		rows_deleted, rows_inserted, error_message, duration_ms, started_at
		FROM ingest_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: cycle history: %w", err)
	}
	defer rows.Close()

	var result []*CycleEntry
	for rows.Next() {
		var e CycleEntry
		if err := rows.Scan(&e.ID, &e.Status, &e.Stage, &e.RowsParsed, &e.RowsSkipped,
			&e.ParseErrors, &e.RowsDeleted, &e.RowsInserted, &e.ErrorMessage,
			&e.DurationMs, &e.StartedAt); err != nil {
			return nil, fmt.Errorf("store: scan cycle: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
