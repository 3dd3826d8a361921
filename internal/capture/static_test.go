package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const landingHTML = `<!DOCTYPE html>
<html>
<head><title>Acme Landing</title></head>
<body>
  <nav><a href="/pricing">Pricing</a></nav>
  <h1>Ship faster</h1>
  <p>Start your <strong>free trial</strong> today.</p>
</body>
</html>`

func TestStaticFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(landingHTML))
	}))
	defer server.Close()

	content, err := NewStaticFetcher(StaticConfig{}).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if content.URL != server.URL {
		t.Errorf("Expected URL %s, got %s", server.URL, content.URL)
	}
	if content.Title != "Acme Landing" {
		t.Errorf("Expected title from document, got %q", content.Title)
	}
	if !strings.Contains(content.Markdown, "# Ship faster") {
		t.Errorf("Expected heading in markdown, got:\n%s", content.Markdown)
	}
	if !strings.Contains(content.Markdown, "**free trial**") {
		t.Errorf("Expected emphasis in markdown, got:\n%s", content.Markdown)
	}
	if strings.Contains(content.Markdown, "Pricing") {
		t.Error("Expected nav content to be dropped from markdown")
	}
	if !strings.Contains(content.HTML, "<h1>Ship faster</h1>") {
		t.Error("Expected raw HTML to be kept")
	}
	if content.Screenshot != nil {
		t.Error("Expected no screenshot from the static fetcher")
	}
	if content.FetchedAt.IsZero() {
		t.Error("Expected fetch timestamp")
	}
}

func TestStaticFetcher_SendsUserAgent(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("<html><body><p>ok</p></body></html>"))
	}))
	defer server.Close()

	if _, err := NewStaticFetcher(StaticConfig{UserAgent: "probe/2.0"}).Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != "probe/2.0" {
		t.Errorf("Expected configured user agent, got %q", gotUA)
	}
	if !strings.Contains(gotAccept, "text/html") {
		t.Errorf("Expected html accept header, got %q", gotAccept)
	}
}

func TestStaticFetcher_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewStaticFetcher(StaticConfig{}).Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("Expected status in error, got %v", err)
	}
}

func TestStaticFetcher_TruncatesOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>"))
		w.Write([]byte(strings.Repeat("filler text ", 10000)))
		w.Write([]byte("</p></body></html>"))
	}))
	defer server.Close()

	content, err := NewStaticFetcher(StaticConfig{MaxBodySize: 2048}).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(content.HTML) > 2048 {
		t.Errorf("Expected body capped at 2048 bytes, got %d", len(content.HTML))
	}
	if !strings.Contains(content.Markdown, "filler text") {
		t.Error("Expected truncated document to still parse")
	}
}

func TestStaticFetcher_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewStaticFetcher(StaticConfig{}).Fetch(ctx, server.URL); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestStaticFetcher_InvalidURL(t *testing.T) {
	if _, err := NewStaticFetcher(StaticConfig{}).Fetch(context.Background(), "http://\x00bad"); err == nil {
		t.Error("Expected error for invalid URL")
	}
}
