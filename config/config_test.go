package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
db_path: /var/lib/corrona/corrona.db
log_level: debug
source:
  mode: browser
  page_url: https://example.org/dashboard
  download_dir: /tmp/exports
ingest:
  interval: 30m
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.LogLevel != "debug" {
		t.Errorf("cfg: %+v", cfg)
	}
	if cfg.Source.Mode != "browser" || cfg.Source.PageURL != "https://example.org/dashboard" {
		t.Errorf("source: %+v", cfg.Source)
	}
	if cfg.Ingest.Interval != 30*time.Minute {
		t.Errorf("interval: %v", cfg.Ingest.Interval)
	}
	// Unset fields pick up defaults.
	if cfg.Source.Timeout != 2*time.Minute || cfg.Ingest.CycleTimeout != 10*time.Minute {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFileRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, "source:\n  mode: ftp\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown source mode")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" || cfg.Source.Mode != "http" {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.Ingest.Interval != time.Hour {
		t.Errorf("interval: %v", cfg.Ingest.Interval)
	}
}
