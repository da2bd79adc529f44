// Package config loads service configuration from a YAML file with defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen   string       `yaml:"listen"`
	DBPath   string       `yaml:"db_path"`
	LogLevel string       `yaml:"log_level"` // debug | info | warn | error
	Source   SourceConfig `yaml:"source"`
	Ingest   IngestConfig `yaml:"ingest"`
}

// SourceConfig describes where the daily export comes from.
type SourceConfig struct {
	Mode        string        `yaml:"mode"` // http | browser
	URL         string        `yaml:"url"`
	PageURL     string        `yaml:"page_url"`
	Selector    string        `yaml:"selector"`
	DownloadDir string        `yaml:"download_dir"`
	Filename    string        `yaml:"filename"`
	Timeout     time.Duration `yaml:"timeout"`
}

// IngestConfig controls the periodic ingestion loop.
type IngestConfig struct {
	Interval     time.Duration `yaml:"interval"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "data/corrona.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Source.Mode == "" {
		c.Source.Mode = "http"
	}
	if c.Source.URL == "" {
		c.Source.URL = "https://covid19.who.int/WHO-COVID-19-global-data.csv"
	}
	if c.Source.PageURL == "" {
		c.Source.PageURL = "https://who.sprinklr.com/"
	}
	if c.Source.DownloadDir == "" {
		c.Source.DownloadDir = os.TempDir()
	}
	if c.Source.Filename == "" {
		c.Source.Filename = "WHO-COVID-19-global-data.csv"
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 2 * time.Minute
	}
	if c.Ingest.Interval <= 0 {
		c.Ingest.Interval = time.Hour
	}
	if c.Ingest.CycleTimeout <= 0 {
		c.Ingest.CycleTimeout = 10 * time.Minute
	}
}

func (c *Config) validate() error {
	switch c.Source.Mode {
	case "http", "browser":
	default:
		return fmt.Errorf("config: unknown source mode %q (want http or browser)", c.Source.Mode)
	}
	return nil
}
