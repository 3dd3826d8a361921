package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"uplift/internal/logging"
	"uplift/internal/pipeline"
)

// BrowserConfig tunes the headless-browser fetcher.
type BrowserConfig struct {
	// DebuggerURL attaches to an already-running Chrome instead of
	// launching one.
	DebuggerURL       string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// SettleDelay waits after the load event so late-rendering content
	// makes it into the capture.
	SettleDelay time.Duration
	// FullPageScreenshot captures the whole scroll height, not just the
	// viewport.
	FullPageScreenshot bool
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:           true,
		ViewportWidth:      1920,
		ViewportHeight:     1080,
		NavigationTimeout:  30 * time.Second,
		SettleDelay:        time.Second,
		FullPageScreenshot: true,
	}
}

// BrowserFetcher renders pages in headless Chrome and captures the
// final DOM plus a screenshot. One fetcher owns one browser connection;
// each fetch runs in its own incognito context so pages never share
// cookies or storage.
type BrowserFetcher struct {
	cfg     BrowserConfig
	mu      sync.Mutex
	browser *rod.Browser
}

var _ Fetcher = (*BrowserFetcher)(nil)

func NewBrowserFetcher(cfg BrowserConfig) *BrowserFetcher {
	def := DefaultBrowserConfig()
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = def.ViewportWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = def.ViewportHeight
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	return &BrowserFetcher{cfg: cfg}
}

// Start connects to Chrome, launching one if no debugger URL is
// configured. Fetch starts lazily; calling Start up front only surfaces
// connection errors early.
func (f *BrowserFetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		if _, err := f.browser.Version(); err == nil {
			return nil
		}
		logging.CaptureWarn("stale browser connection detected, reconnecting")
		_ = f.browser.Close()
		f.browser = nil
	}

	controlURL := f.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(f.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	f.browser = browser
	logging.Capture("browser connected")
	return nil
}

func (f *BrowserFetcher) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	b := f.browser
	f.mu.Unlock()
	if b != nil {
		return b, nil
	}
	if err := f.Start(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil, errors.New("browser not connected")
	}
	return f.browser, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (*pipeline.PageContent, error) {
	browser, err := f.ensureStarted(ctx)
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             f.cfg.ViewportWidth,
		Height:            f.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.CaptureWarn("failed to set viewport: %v", err)
	}

	page = page.Context(ctx)
	nav := page.Timeout(f.cfg.NavigationTimeout)
	if err := nav.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", pageURL, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for load: %w", err)
	}
	if f.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.cfg.SettleDelay):
		}
	}

	var (
		rawHTML    string
		screenshot []byte
	)
	var g errgroup.Group
	g.Go(func() error {
		h, err := page.HTML()
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		rawHTML = h
		return nil
	})
	g.Go(func() error {
		shot, err := page.Screenshot(f.cfg.FullPageScreenshot, nil)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		screenshot = shot
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	content := &pipeline.PageContent{
		URL:        pageURL,
		Title:      documentTitle(doc),
		HTML:       rawHTML,
		Markdown:   renderMarkdown(doc),
		Screenshot: screenshot,
		FetchedAt:  time.Now().UTC(),
	}
	logging.Capture("browser fetch %s: %d html bytes, %d screenshot bytes", pageURL, len(rawHTML), len(screenshot))
	return content, nil
}

// Close shuts the browser connection down. Safe to call when never
// started.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
