// Package logging provides opt-in categorized file logging for the
// analysis engine. Logs are written to <workspace>/.uplift/logs with one
// file per category per day. Nothing is written unless debug mode is
// enabled in the loaded configuration, so the package is inert in
// production and in tests.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies a subsystem log stream.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup, wiring
	CategoryEngine   Category = "engine"   // module executor
	CategoryRegistry Category = "registry" // registration, dispatch, stats
	CategoryCache    Category = "cache"    // hits, misses, eviction, sweeps
	CategoryLLM      Category = "llm"      // provider calls, decoding, retries
	CategoryPipeline Category = "pipeline" // stage runs, prompt reloads
	CategoryCapture  Category = "capture"  // page fetching and rendering
	CategoryStore    Category = "store"    // artifact persistence
	CategoryUsage    Category = "usage"    // token and cost accounting
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options mirrors the logging section of the application config. It is a
// separate struct so this package does not import the config package.
type Options struct {
	Enabled    bool
	Level      string
	Categories map[string]bool
	JSONFormat bool
}

// entry is the structured form written when JSON format is enabled.
type entry struct {
	Timestamp int64          `json:"ts"`
	Category  string         `json:"cat"`
	Level     string         `json:"lvl"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger writes to a single category's file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	opts     Options
	logLevel = LevelInfo
)

// Initialize prepares the logging directory from the already-parsed
// configuration. A no-op (and nil error) when debug mode is disabled.
func Initialize(workspace string, o Options) error {
	mu.Lock()
	opts = o
	logLevel = parseLevel(o.Level)
	if !o.Enabled {
		logsDir = ""
		mu.Unlock()
		return nil
	}
	logsDir = filepath.Join(workspace, ".uplift", "logs")
	dir := logsDir
	mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("logging initialized (dir=%s level=%s)", dir, o.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Enabled reports whether debug logging is active at all.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return opts.Enabled && logsDir != ""
}

func categoryEnabled(c Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !opts.Enabled || logsDir == "" {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, known := opts.Categories[string(c)]
	if !known {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category. Disabled categories
// get a no-op logger, so call sites never need to check state.
func Get(c Category) *Logger {
	if !categoryEnabled(c) {
		return &Logger{category: c}
	}

	mu.RLock()
	if l, ok := loggers[c]; ok {
		mu.RUnlock()
		return l
	}
	dir := logsDir
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[c]; ok {
		return l
	}

	name := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), c)
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", name, err)
		return &Logger{category: c}
	}

	l := &Logger{
		category: c,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[c] = l
	return l
}

func (l *Logger) write(level int, label, format string, args ...any) {
	if l.logger == nil || logLevel > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	mu.RLock()
	jsonFmt := opts.JSONFormat
	mu.RUnlock()
	if jsonFmt {
		data, err := json.Marshal(entry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     label,
			Message:   msg,
		})
		if err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s", label, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) { l.write(LevelDebug, "DEBUG", format, args...) }

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) { l.write(LevelInfo, "INFO", format, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) { l.write(LevelWarn, "WARN", format, args...) }

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) { l.write(LevelError, "ERROR", format, args...) }

// StructuredLog writes a structured entry with extra fields regardless of
// the text/JSON setting.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]any) {
	if l.logger == nil {
		return
	}
	data, err := json.Marshal(entry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	})
	if err != nil {
		l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
		return
	}
	l.logger.Printf("%s", data)
}

// CloseAll closes every open log file. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - category shortcuts, no-ops when disabled
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...any) { Get(CategoryBoot).Info(format, args...) }

// BootError logs an error to the boot category.
func BootError(format string, args ...any) { Get(CategoryBoot).Error(format, args...) }

// Engine logs to the engine category.
func Engine(format string, args ...any) { Get(CategoryEngine).Info(format, args...) }

// EngineDebug logs debug to the engine category.
func EngineDebug(format string, args ...any) { Get(CategoryEngine).Debug(format, args...) }

// Registry logs to the registry category.
func Registry(format string, args ...any) { Get(CategoryRegistry).Info(format, args...) }

// RegistryDebug logs debug to the registry category.
func RegistryDebug(format string, args ...any) { Get(CategoryRegistry).Debug(format, args...) }

// RegistryWarn logs a warning to the registry category.
func RegistryWarn(format string, args ...any) { Get(CategoryRegistry).Warn(format, args...) }

// CacheDebug logs debug to the cache category.
func CacheDebug(format string, args ...any) { Get(CategoryCache).Debug(format, args...) }

// LLM logs to the llm category.
func LLM(format string, args ...any) { Get(CategoryLLM).Info(format, args...) }

// LLMDebug logs debug to the llm category.
func LLMDebug(format string, args ...any) { Get(CategoryLLM).Debug(format, args...) }

// LLMWarn logs a warning to the llm category.
func LLMWarn(format string, args ...any) { Get(CategoryLLM).Warn(format, args...) }

// Pipeline logs to the pipeline category.
func Pipeline(format string, args ...any) { Get(CategoryPipeline).Info(format, args...) }

// PipelineDebug logs debug to the pipeline category.
func PipelineDebug(format string, args ...any) { Get(CategoryPipeline).Debug(format, args...) }

// Capture logs to the capture category.
func Capture(format string, args ...any) { Get(CategoryCapture).Info(format, args...) }

// CaptureWarn logs a warning to the capture category.
func CaptureWarn(format string, args ...any) { Get(CategoryCapture).Warn(format, args...) }

// Store logs to the store category.
func Store(format string, args ...any) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...any) { Get(CategoryStore).Debug(format, args...) }

// Usage logs to the usage category.
func Usage(format string, args ...any) { Get(CategoryUsage).Info(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer measures an operation's duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold warns when the duration exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
