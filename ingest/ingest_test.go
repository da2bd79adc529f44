package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bezzelek/corronaservice/dbopen"
	"github.com/bezzelek/corronaservice/store"
)

const csvHeader = "Date_reported,Country_code,Country,WHO_region,New_cases,Cumulative_cases,New_deaths,Cumulative_deaths\n"

// fakeFetcher serves canned payloads and records call counts.
type fakeFetcher struct {
	payload string
	err     error
	calls   atomic.Int32
}

func (f *fakeFetcher) Download(ctx context.Context) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.payload), nil
}

func newTestRunner(t *testing.T, f Fetcher, today string) (*Runner, *store.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)
	now, err := time.Parse(time.DateOnly, today)
	if err != nil {
		t.Fatal(err)
	}
	r := New(f, st,
		WithNow(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return r, st
}

func TestRunInitialLoad(t *testing.T) {
	f := &fakeFetcher{payload: csvHeader +
		"2020-05-27,UA,Ukraine,EURO,100,100,10,10\n" +
		"2020-05-28,UA,Ukraine,EURO,50,150,5,15\n" +
		"2020-05-28,PL,Poland,EURO,30,30,3,3\n"}
	r, st := newTestRunner(t, f, "2020-05-29")

	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if entry.Status != store.CycleCompleted {
		t.Errorf("status: got %q", entry.Status)
	}
	if entry.RowsParsed != 3 || entry.RowsInserted != 3 || entry.RowsDeleted != 0 {
		t.Errorf("counters: parsed=%d inserted=%d deleted=%d",
			entry.RowsParsed, entry.RowsInserted, entry.RowsDeleted)
	}

	count, err := st.CountAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("store rows: got %d, want 3", count)
	}

	hist, err := st.CycleHistory(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].ID != entry.ID {
		t.Errorf("cycle history: got %+v", hist)
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	// WHAT: Running the same export twice leaves the store unchanged.
	// WHY: The upstream republishes the full file daily; only the
	// rewrite window is replaced, never appended to.
	f := &fakeFetcher{payload: csvHeader +
		"2020-05-27,UA,Ukraine,EURO,100,100,10,10\n" +
		"2020-05-28,UA,Ukraine,EURO,50,150,5,15\n"}
	r, st := newTestRunner(t, f, "2020-05-29")

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	// Second run rewrites 2020-05-28 (inside the window) and skips 05-27.
	if entry.RowsSkipped != 1 || entry.RowsInserted != 1 {
		t.Errorf("counters: skipped=%d inserted=%d", entry.RowsSkipped, entry.RowsInserted)
	}

	count, err := st.CountAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("store rows after rerun: got %d, want 2", count)
	}
}

func TestRunFetchFailureLeavesStoreUntouched(t *testing.T) {
	f := &fakeFetcher{err: errors.New("upstream unreachable")}
	r, st := newTestRunner(t, f, "2020-05-29")

	entry, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if entry.Status != store.CycleFailed || entry.Stage != StageDownloading {
		t.Errorf("entry: status=%q stage=%q", entry.Status, entry.Stage)
	}

	count, err := st.CountAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("store rows: got %d, want 0", count)
	}
}

func TestRunIsolatesMalformedRows(t *testing.T) {
	f := &fakeFetcher{payload: csvHeader +
		"2020-05-28,UA,Ukraine,EURO,50,150,5,15\n" +
		"not-a-date,PL,Poland,EURO,30,30,3,3\n" +
		"2020-05-28,FR,France,EURO,40,40,4,4\n"}
	r, st := newTestRunner(t, f, "2020-05-29")

	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if entry.ParseErrors != 1 {
		t.Errorf("parse errors: got %d, want 1", entry.ParseErrors)
	}
	if entry.RowsInserted != 2 {
		t.Errorf("inserted: got %d, want 2", entry.RowsInserted)
	}

	count, err := st.CountAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("store rows: got %d, want 2", count)
	}
}

func TestRunRejectsEmptyExport(t *testing.T) {
	f := &fakeFetcher{payload: csvHeader}
	r, _ := newTestRunner(t, f, "2020-05-29")

	entry, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for header-only export")
	}
	if entry.Status != store.CycleFailed {
		t.Errorf("status: got %q", entry.Status)
	}
}

func TestParseCSVSkipsHeader(t *testing.T) {
	records, parseErrs, err := parseCSV(strings.NewReader(csvHeader +
		"2020-05-28,UA,Ukraine,EURO,50,150,5,15\n"))
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(parseErrs) != 0 {
		t.Errorf("parse errors: %v", parseErrs)
	}
	if len(records) != 1 || records[0].CountryISO != "UA" {
		t.Errorf("records: %+v", records)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{payload: csvHeader +
		"2020-05-28,UA,Ukraine,EURO,50,150,5,15\n"}
	r, _ := newTestRunner(t, f, "2020-05-29")
	s := NewScheduler(r, SchedulerConfig{Interval: time.Hour},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The immediate first run should happen before cancellation matters.
	deadline := time.After(5 * time.Second)
	for f.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never ran a cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-deadline:
		t.Fatal("scheduler did not stop on cancel")
	}
}
