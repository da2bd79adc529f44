package store

// Schema is the complete service schema. Dates are TEXT in YYYY-MM-DD form,
// which sorts and compares correctly in SQLite. Counts are nullable: an
// absent source cell stays NULL so SUM() skips it.
const Schema = `
-- One row per (record_date, country_iso2): the day's incremental counts.
CREATE TABLE IF NOT EXISTS daily_records (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    record_date   TEXT NOT NULL,
    country_iso2  TEXT NOT NULL,
    country_name  TEXT NOT NULL,
    new_cases     INTEGER,
    new_death     INTEGER,
    UNIQUE (record_date, country_iso2)
);
CREATE INDEX IF NOT EXISTS idx_daily_records_date ON daily_records(record_date);
CREATE INDEX IF NOT EXISTS idx_daily_records_country ON daily_records(country_iso2, record_date);

-- One row per ingestion cycle (observability).
CREATE TABLE IF NOT EXISTS ingest_log (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    stage         TEXT NOT NULL DEFAULT '',
    rows_parsed   INTEGER NOT NULL DEFAULT 0,
    rows_skipped  INTEGER NOT NULL DEFAULT 0,
    parse_errors  INTEGER NOT NULL DEFAULT 0,
    rows_deleted  INTEGER NOT NULL DEFAULT 0,
    rows_inserted INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    started_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingest_log_started ON ingest_log(started_at DESC);
`
