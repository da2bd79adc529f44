// Command corronad serves the daily case statistics API and keeps the
// store fresh by ingesting the upstream CSV export on a schedule.
//
// Usage:
//
//	corronad -config corrona.yaml
//	corronad                        # built-in defaults, data/corrona.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bezzelek/corronaservice/api"
	"github.com/bezzelek/corronaservice/config"
	"github.com/bezzelek/corronaservice/dbopen"
	"github.com/bezzelek/corronaservice/fetch"
	"github.com/bezzelek/corronaservice/ingest"
	"github.com/bezzelek/corronaservice/query"
	"github.com/bezzelek/corronaservice/store"
)

func main() {
	configPath := flag.String("config", "", "path to corrona.yaml config file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "corronad:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("corronad: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	engine := query.New(st)

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}
	runner := ingest.New(fetcher, st, ingest.WithLogger(logger))
	scheduler := ingest.NewScheduler(runner, ingest.SchedulerConfig{
		Interval:     cfg.Ingest.Interval,
		CycleTimeout: cfg.Ingest.CycleTimeout,
	}, logger)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.New(engine, st, logger).Router(),
	}

	schedDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedDone)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("corronad: listening", "addr", cfg.Listen, "db", cfg.DBPath, "source", cfg.Source.Mode)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("corronad: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("corronad: shutdown", "error", err)
	}
	<-schedDone
	return nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (ingest.Fetcher, error) {
	switch cfg.Source.Mode {
	case "browser":
		return fetch.NewBrowser(fetch.BrowserConfig{
			PageURL:     cfg.Source.PageURL,
			Selector:    cfg.Source.Selector,
			DownloadDir: cfg.Source.DownloadDir,
			Filename:    cfg.Source.Filename,
			MaxWait:     cfg.Source.Timeout,
			Logger:      logger,
		}), nil
	case "http":
		return fetch.NewHTTP(fetch.Config{
			URL:     cfg.Source.URL,
			Timeout: cfg.Source.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source mode %q", cfg.Source.Mode)
	}
}
