package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uplift/internal/artifact"
	"uplift/internal/config"
	"uplift/internal/pipeline"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = orig
	return <-done
}

func TestVersionCmd(t *testing.T) {
	output := captureOutput(t, func() {
		versionCmd.Run(&cobra.Command{}, nil)
	})
	if !strings.Contains(output, "uplift version") {
		t.Fatalf("expected version banner, got: %s", output)
	}
}

func TestRunModules(t *testing.T) {
	logger = zap.NewNop()

	output := captureOutput(t, func() {
		if err := runModules(&cobra.Command{}, nil); err != nil {
			t.Errorf("runModules returned error: %v", err)
		}
	})

	for _, name := range []string{
		pipeline.StageExtractInsights,
		pipeline.StageClusterThemes,
		pipeline.StageHypotheses,
		pipeline.StageExperiments,
	} {
		if !strings.Contains(output, name) {
			t.Errorf("expected module %q in listing, got:\n%s", name, output)
		}
	}

	// The listing follows pipeline order, not registration name order.
	if strings.Index(output, pipeline.StageExtractInsights) > strings.Index(output, pipeline.StageExperiments) {
		t.Errorf("expected extractor before planner in listing:\n%s", output)
	}
	if !strings.Contains(output, "deps: "+pipeline.StageExtractInsights) {
		t.Errorf("expected clusterer dependency in listing:\n%s", output)
	}
}

func TestRunStats_EmptyWorkspace(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	defer func() { workspace = "" }()
	cfg = config.Default()

	output := captureOutput(t, func() {
		if err := runStats(&cobra.Command{}, nil); err != nil {
			t.Errorf("runStats returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Calls:     0") {
		t.Fatalf("expected zero call count on a fresh workspace, got:\n%s", output)
	}
}

func TestResolveWorkspace(t *testing.T) {
	workspace = "/tmp/explicit"
	if got := resolveWorkspace(); got != "/tmp/explicit" {
		t.Errorf("expected explicit workspace, got %s", got)
	}

	workspace = ""
	cwd, _ := os.Getwd()
	if got := resolveWorkspace(); got != cwd {
		t.Errorf("expected current directory %s, got %s", cwd, got)
	}
}

func TestCaptureMode(t *testing.T) {
	c := config.Default()

	analyzeStatic = false
	if got := captureMode(c); got != "browser" {
		t.Errorf("expected browser mode by default, got %s", got)
	}

	c.Capture.Mode = "static"
	if got := captureMode(c); got != "static" {
		t.Errorf("expected static mode from config, got %s", got)
	}

	c.Capture.Mode = "browser"
	analyzeStatic = true
	defer func() { analyzeStatic = false }()
	if got := captureMode(c); got != "static" {
		t.Errorf("expected --static flag to win, got %s", got)
	}
}

func TestOpenArtifactStore(t *testing.T) {
	ws := t.TempDir()

	c := config.Default()
	c.Storage.Driver = "memory"
	store, err := openArtifactStore(c, ws)
	if err != nil {
		t.Fatalf("openArtifactStore(memory) error = %v", err)
	}
	defer store.Close()
	if _, ok := store.(*artifact.MemoryStore); !ok {
		t.Errorf("expected *artifact.MemoryStore, got %T", store)
	}

	c.Storage.Driver = "sqlite"
	dbStore, err := openArtifactStore(c, ws)
	if err != nil {
		t.Fatalf("openArtifactStore(sqlite) error = %v", err)
	}
	defer dbStore.Close()
	if _, ok := dbStore.(*artifact.SQLiteStore); !ok {
		t.Errorf("expected *artifact.SQLiteStore, got %T", dbStore)
	}
	if _, err := os.Stat(ws + "/.uplift/artifacts.db"); err != nil {
		t.Errorf("expected database under the workspace: %v", err)
	}
}

func TestReportText(t *testing.T) {
	report := &pipeline.AnalysisReport{
		AnalysisID:    "an-1",
		ProjectID:     "default",
		URL:           "https://shop.example/landing",
		TokensUsed:    150,
		EstimatedCost: 0.002,
		Duration:      1234 * time.Millisecond,
		Insights: []pipeline.Insight{{
			Title: "No security badges at checkout", Category: "trust",
			Location: "checkout", Severity: "high", ImpactScore: 90, Confidence: 80,
		}},
		Themes: []pipeline.Theme{{
			Name: "Trust", Priority: 4, Pattern: pipeline.PatternRecurring, InsightIDs: []string{"i1"},
		}},
		Hypotheses: []pipeline.Hypothesis{{
			Statement: "If we change the checkout, then conversion rate will improve because trust is missing.",
		}},
		Experiments: []pipeline.Experiment{{
			Name: "Test: the checkout", PrimaryMetric: "conversion rate",
		}},
	}

	text := reportText(report)
	for _, want := range []string{
		"Analysis an-1",
		"https://shop.example/landing",
		"Tokens: 150",
		"Insights (1)",
		"[high] No security badges at checkout (trust, checkout)",
		"Themes (1)",
		"Trust — priority 4, recurring, 1 insights",
		"Hypotheses (1)",
		"If we change the checkout",
		"Experiments (1)",
		"Test: the checkout — primary metric: conversion rate",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}
