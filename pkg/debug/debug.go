// Package debug configures the process logger and provides category-based
// debug logging.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): SDVAGENT_DEBUG env or logging.debug config
//   - Levels (HOW MUCH detail): SDVAGENT_LOG_LEVEL env or logging.level config
//
// Usage:
//
//	debug.Log("discovery", "announcement", "server", name)
//	if debug.Enabled("mcp") { /* expensive formatting */ }
//
// Categories: broker, discovery, mcp, providers, engine, tools, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelTrace is below slog.LevelDebug. At TRACE, full MQTT payloads and
// LLM request bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// categories holds the enabled set. Init swaps it atomically so tests can
// reconfigure while background goroutines log.
var categories atomic.Pointer[map[string]bool]

func init() {
	m := parseCategories(os.Getenv("SDVAGENT_DEBUG"))
	categories.Store(&m)
}

// Options configure the default logger.
type Options struct {
	// Categories is a comma separated category list.
	Categories string
	// Level is one of ERROR, WARN, INFO, DEBUG, TRACE.
	Level string
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// Init installs the default slog handler. Environment variables override
// the given options.
func Init(opts Options) {
	cats := os.Getenv("SDVAGENT_DEBUG")
	if cats == "" {
		cats = opts.Categories
	}
	m := parseCategories(cats)
	categories.Store(&m)

	level := os.Getenv("SDVAGENT_LOG_LEVEL")
	if level == "" {
		level = opts.Level
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		h = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	m := *categories.Load()
	return m["all"] || m[category]
}

// Log emits a debug message for the given category.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// ParseLevel converts a level string to a slog.Level. Unknown values map
// to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate returns s cut to maxLen bytes with "..." appended when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
