// Package telemetry provides the structured logger, rate limiter, and
// OpenTelemetry tracer/meter wiring shared by every runtime component,
// grounded on the teacher's telemetry.TelemetryLogger. Unlike the teacher's
// module-wide singleton, each component here constructs its own named
// Logger via WithComponent — a mission runtime instantiates several
// independent subsystems (runtime, simulator, planner) in one process and
// a single global logger would blur their component tags.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fleetguard/governor/core"
)

var logLevels = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// Logger is a component-aware structured logger implementing
// core.ComponentAwareLogger: text format for local development, JSON for
// Kubernetes/production, with rate-limited error logging.
type Logger struct {
	component string
	level     string
	debug     bool
	format    string
	output    io.Writer
	mu        sync.RWMutex

	errorLimiter *RateLimiter
}

// NewLogger builds a Logger for component, reading GOVERNOR_LOG_LEVEL /
// GOVERNOR_DEBUG / GOVERNOR_LOG_FORMAT / KUBERNETES_SERVICE_HOST the same
// way core.Config.DetectEnvironment does.
func NewLogger(component string) *Logger {
	level := os.Getenv("GOVERNOR_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	debug := os.Getenv("GOVERNOR_DEBUG") == "true" || strings.ToUpper(level) == "DEBUG"

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("GOVERNOR_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	return &Logger{
		component:    component,
		level:        strings.ToUpper(level),
		debug:        debug,
		format:       format,
		output:       os.Stdout,
		errorLimiter: NewRateLimiter(time.Second),
	}
}

// NewLoggerFromConfig builds a Logger honoring explicit LoggingConfig
// values instead of re-reading the environment, for components assembled
// through core.Config.
func NewLoggerFromConfig(component string, cfg core.LoggingConfig) *Logger {
	l := NewLogger(component)
	l.level = strings.ToUpper(cfg.Level)
	l.debug = cfg.Debug || l.level == "DEBUG"
	if cfg.Format != "" {
		l.format = cfg.Format
	}
	return l
}

// WithComponent returns a Logger sharing this one's level/format/output but
// tagged with a different component name.
func (l *Logger) WithComponent(component string) core.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		component:    component,
		level:        l.level,
		debug:        l.debug,
		format:       l.format,
		output:       l.output,
		errorLimiter: l.errorLimiter,
	}
}

func (l *Logger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *Logger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, withTraceFields(ctx, fields))
}
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, withTraceFields(ctx, fields))
}
func (l *Logger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, withTraceFields(ctx, fields))
}
func (l *Logger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, withTraceFields(ctx, fields))
}

func withTraceFields(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if runID, ok := ctx.Value(runIDContextKey{}).(string); ok && runID != "" {
		fields["run_id"] = runID
	}
	return fields
}

type runIDContextKey struct{}

// ContextWithRunID attaches runID so loggers that receive ctx automatically
// tag their lines with it.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey{}, runID)
}

func (l *Logger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *Logger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"component": l.component,
		"message":   msg,
	}
	for k, v := range fields {
		if k != "timestamp" && k != "level" && k != "component" && k != "message" {
			entry[k] = v
		}
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *Logger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString(" ")
		for _, k := range []string{"run_id", "error"} {
			if v, ok := fields[k]; ok {
				fmt.Fprintf(&b, "%s=%v ", k, v)
				delete(fields, k)
			}
		}
		for k, v := range fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", timestamp, level, l.component, msg, b.String())
}

func (l *Logger) shouldLog(level string) bool {
	current, ok1 := logLevels[l.level]
	want, ok2 := logLevels[level]
	if !ok1 || !ok2 {
		return true
	}
	return want >= current
}

// SetOutput redirects log output, for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}
