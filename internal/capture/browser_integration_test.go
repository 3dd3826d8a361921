//go:build integration

package capture_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uplift/internal/capture"
)

// Requires a local Chrome/Chromium. Run with: go test -tags integration ./internal/capture/
func TestBrowserFetcher_Fetch_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><head><title>Rendered Page</title></head>
<body>
<h1>Server heading</h1>
<div id="late"></div>
<script>document.getElementById('late').innerHTML = '<p>Client rendered copy</p>';</script>
</body></html>`)
	}))
	defer ts.Close()

	cfg := capture.DefaultBrowserConfig()
	cfg.NavigationTimeout = 10 * time.Second
	cfg.SettleDelay = 200 * time.Millisecond

	fetcher := capture.NewBrowserFetcher(cfg)
	defer fetcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	content, err := fetcher.Fetch(ctx, ts.URL)
	require.NoError(t, err)

	require.Equal(t, "Rendered Page", content.Title)
	require.True(t, strings.Contains(content.Markdown, "# Server heading"), "markdown: %s", content.Markdown)
	require.True(t, strings.Contains(content.Markdown, "Client rendered copy"),
		"browser fetch must see client-rendered content, markdown: %s", content.Markdown)
	require.NotEmpty(t, content.Screenshot)
	require.False(t, content.FetchedAt.IsZero())

	// A second fetch reuses the running browser.
	again, err := fetcher.Fetch(ctx, ts.URL)
	require.NoError(t, err)
	require.Equal(t, content.Title, again.Title)
}
