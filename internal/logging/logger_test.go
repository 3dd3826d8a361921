package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledIsNoOp(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{Enabled: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Registry("this should go nowhere")

	if _, err := os.Stat(filepath.Join(ws, ".uplift", "logs")); !os.IsNotExist(err) {
		t.Fatalf("expected no logs directory when disabled, stat err=%v", err)
	}
}

func TestEnabledWritesCategoryFile(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{Enabled: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Get(CategoryCache).Info("evicted key %s", "page:home")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".uplift", "logs"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var cacheFile string
	for _, e := range entries {
		if strings.Contains(e.Name(), "cache") {
			cacheFile = filepath.Join(ws, ".uplift", "logs", e.Name())
		}
	}
	if cacheFile == "" {
		t.Fatalf("no cache log file created, entries=%v", entries)
	}
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "evicted key page:home") {
		t.Errorf("log file missing message, got: %s", data)
	}
}

func TestCategoryFilter(t *testing.T) {
	ws := t.TempDir()
	err := Initialize(ws, Options{
		Enabled:    true,
		Level:      "debug",
		Categories: map[string]bool{"llm": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	LLM("should be filtered")
	Registry("should be written")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(ws, ".uplift", "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "llm") {
			t.Errorf("llm category disabled but file %s exists", e.Name())
		}
	}
}

func TestLevelFilter(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{Enabled: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryEngine)
	l.Debug("drop me")
	l.Info("drop me too")
	l.Warn("keep me")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(ws, ".uplift", "logs"))
	for _, e := range entries {
		if !strings.Contains(e.Name(), "engine") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(ws, ".uplift", "logs", e.Name()))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if strings.Contains(string(data), "drop me") {
			t.Errorf("level filter leaked lower-level lines: %s", data)
		}
		if !strings.Contains(string(data), "keep me") {
			t.Errorf("warn line missing: %s", data)
		}
	}
}
