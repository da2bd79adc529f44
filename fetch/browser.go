package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures the headless-browser downloader.
type BrowserConfig struct {
	// PageURL is the dashboard page carrying the export control.
	PageURL string

	// Selector is the XPath of the export control to click.
	Selector string

	// DownloadDir receives the exported file.
	DownloadDir string

	// Filename is the name the dashboard gives the exported file.
	Filename string

	// NavTimeout bounds navigation and element lookup. Default: 30s.
	NavTimeout time.Duration

	// PollInterval is how often to check for the downloaded file.
	// Default: 100ms.
	PollInterval time.Duration

	// MaxWait bounds the whole wait for the file. Default: 2 minutes.
	MaxWait time.Duration

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.Selector == "" {
		c.Selector = `//div[@role='button']`
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserFetcher drives a headless Chrome through the dashboard's export
// button. Chrome is launched per download and torn down afterwards; one
// cycle per hour does not justify keeping a browser resident.
type BrowserFetcher struct {
	config BrowserConfig
}

// NewBrowser creates a browser downloader.
func NewBrowser(cfg BrowserConfig) *BrowserFetcher {
	cfg.defaults()
	return &BrowserFetcher{config: cfg}
}

// Download opens the dashboard, clicks the export control, waits for the
// file to land in DownloadDir, and returns its contents. A stale file from
// a previous cycle is removed first so the wait observes this download.
func (f *BrowserFetcher) Download(ctx context.Context) ([]byte, error) {
	cfg := f.config
	log := cfg.Logger

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("fetch: download dir: %w", err)
	}
	path := filepath.Join(cfg.DownloadDir, cfg.Filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("fetch: remove stale file: %w", err)
	}

	l := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("fetch: launch chrome: %w", err)
	}
	defer l.Cleanup()

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("fetch: connect chrome: %w", err)
	}
	defer b.Close()

	err = proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: cfg.DownloadDir,
	}.Call(b)
	if err != nil {
		return nil, fmt.Errorf("fetch: set download path: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("fetch: create page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(cfg.PageURL); err != nil {
		return nil, fmt.Errorf("fetch: navigate %s: %w", cfg.PageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("fetch: wait load timeout", "url", cfg.PageURL, "error", err)
	}

	el, err := page.Context(navCtx).ElementX(cfg.Selector)
	if err != nil {
		return nil, fmt.Errorf("fetch: export control %q: %w", cfg.Selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("fetch: click export control: %w", err)
	}

	log.Debug("fetch: export clicked, waiting for file", "path", path)
	if err := waitForFile(ctx, path, cfg.PollInterval, cfg.MaxWait); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: read download: %w", err)
	}
	return data, nil
}

// waitForFile polls until path exists or maxWait elapses.
func waitForFile(ctx context.Context, path string, poll, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Wait: maxWait}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch: wait for file: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
