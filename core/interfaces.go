package core

import (
	"context"
	"time"
)

// Logger is the minimal structured-logging contract used across every
// package in this module, grounded on the teacher's core.Logger.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a package-level logger tag its lines with the
// component that produced them ("runtime.controller", "planner.agentic", ...).
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional tracing/metrics seam. runtime.New substitutes
// NewNoOpTelemetry() when given nil, so the controller never nil-checks
// before use; a nil Telemetry value itself is not usable.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a single traced operation.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// noOpLogger discards everything. Safe zero value for any Logger field.
type noOpLogger struct{}

// NewNoOpLogger returns a Logger that discards all output.
func NewNoOpLogger() Logger { return &noOpLogger{} }

func (n *noOpLogger) Info(string, map[string]interface{})  {}
func (n *noOpLogger) Error(string, map[string]interface{}) {}
func (n *noOpLogger) Warn(string, map[string]interface{})  {}
func (n *noOpLogger) Debug(string, map[string]interface{}) {}

func (n *noOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (n *noOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (n *noOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (n *noOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}

// noOpTelemetry discards spans and metrics.
type noOpTelemetry struct{}

// NewNoOpTelemetry returns a Telemetry that records nothing.
func NewNoOpTelemetry() Telemetry { return &noOpTelemetry{} }

func (n *noOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &noOpSpan{}
}
func (n *noOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

type noOpSpan struct{}

func (s *noOpSpan) End()                                       {}
func (s *noOpSpan) SetAttribute(key string, value interface{}) {}
func (s *noOpSpan) RecordError(err error)                      {}

// Clock abstracts time so tests can control tick advancement and timestamp
// generation deterministically (grounded on the teacher's use of injected
// clocks in task_worker tests).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }
