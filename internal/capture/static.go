package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html"

	"uplift/internal/logging"
	"uplift/internal/pipeline"
)

const (
	defaultUserAgent   = "Mozilla/5.0 (compatible; uplift-capture/1.0)"
	defaultMaxBodySize = 5 << 20
)

// StaticConfig tunes the plain-HTTP fetcher.
type StaticConfig struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBodySize caps how many response bytes are read. Oversized
	// documents are truncated, not rejected.
	MaxBodySize int64
}

func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		Timeout:     30 * time.Second,
		UserAgent:   defaultUserAgent,
		MaxBodySize: defaultMaxBodySize,
	}
}

// StaticFetcher retrieves pages with a plain HTTP GET. It sees the
// server-rendered document only and never produces a screenshot;
// client-rendered pages need the browser fetcher.
type StaticFetcher struct {
	cfg    StaticConfig
	client *http.Client
}

var _ Fetcher = (*StaticFetcher)(nil)

func NewStaticFetcher(cfg StaticConfig) *StaticFetcher {
	def := DefaultStaticConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	return &StaticFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (f *StaticFetcher) Fetch(ctx context.Context, pageURL string) (*pipeline.PageContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("page fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	content := &pipeline.PageContent{
		URL:       pageURL,
		Title:     documentTitle(doc),
		HTML:      string(body),
		Markdown:  renderMarkdown(doc),
		FetchedAt: time.Now().UTC(),
	}
	logging.Capture("static fetch %s: %d body bytes, %d markdown bytes", pageURL, len(body), len(content.Markdown))
	return content, nil
}
