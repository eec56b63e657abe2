package core

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// ErrorReporter: the process-wide error sink
// =============================================================================

// ErrorReporter receives failures that must not propagate, such as a deferred
// callback panicking during a drain. ReportError must not panic.
//
// Implementations should be thread-safe as they may be called from the host
// runner goroutine while other goroutines post work.
type ErrorReporter interface {
	ReportError(ctx context.Context, err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(ctx context.Context, err error)

func (f ErrorReporterFunc) ReportError(ctx context.Context, err error) { f(ctx, err) }

// LoggingErrorReporter writes every reported error to a Logger at Error level.
type LoggingErrorReporter struct {
	Logger Logger
}

// NewLoggingErrorReporter returns a reporter that logs through logger, or
// through a DefaultLogger when logger is nil.
func NewLoggingErrorReporter(logger Logger) *LoggingErrorReporter {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &LoggingErrorReporter{Logger: logger}
}

func (r *LoggingErrorReporter) ReportError(ctx context.Context, err error) {
	fields := []Field{F("error", err)}
	var cbErr *CallbackError
	if errors.As(err, &cbErr) {
		fields = append(fields, F("source", string(cbErr.Source)), F("callback", cbErr.Name))
		if cbErr.Panicked() && len(cbErr.Stack) > 0 {
			fields = append(fields, F("stack", string(cbErr.Stack)))
		}
	}
	r.Logger.Error("callback failed", fields...)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects InteractionManager measurements. Implementations can send
// them to monitoring systems (see observability/prometheus).
//
// Methods are called on the host runner goroutine and should be non-blocking.
type Metrics interface {
	// RecordPass records one commit-and-flush pass and how long it took.
	RecordPass(managerName string, duration time.Duration)

	// RecordTransition records an emitted start or complete event.
	RecordTransition(managerName string, event Event)

	// RecordCallback records one deferred callback invocation.
	RecordCallback(managerName string, duration time.Duration, failed bool)

	// RecordQueueDepth records the deferred queue length after a mutation or pass.
	RecordQueueDepth(managerName string, depth int)

	// RecordActiveInteractions records the committed active handle count.
	RecordActiveInteractions(managerName string, active int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordPass(managerName string, duration time.Duration)                  {}
func (m *NilMetrics) RecordTransition(managerName string, event Event)                      {}
func (m *NilMetrics) RecordCallback(managerName string, duration time.Duration, failed bool) {}
func (m *NilMetrics) RecordQueueDepth(managerName string, depth int)                         {}
func (m *NilMetrics) RecordActiveInteractions(managerName string, active int)               {}

// =============================================================================
// ManagerConfig: Configuration for InteractionManager
// =============================================================================

const defaultManagerName = "interaction-manager"

// ManagerConfig holds configuration options for InteractionManager.
// All fields are optional; zero values fall back to defaults.
type ManagerConfig struct {
	// Name labels logs and metrics. Defaults to "interaction-manager".
	Name string

	// Logger receives debug logs about passes and transitions. Defaults to NoOpLogger.
	Logger Logger

	// ErrorReporter receives callback failures. Defaults to a LoggingErrorReporter
	// over Logger (or a DefaultLogger when Logger is nil).
	ErrorReporter ErrorReporter

	// Metrics records pass and callback measurements. Defaults to NilMetrics.
	Metrics Metrics

	// HistoryCapacity bounds RecentPasses. Defaults to 100.
	HistoryCapacity int
}

// DefaultManagerConfig returns a config with default handlers.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		Name:            defaultManagerName,
		Logger:          NewNoOpLogger(),
		ErrorReporter:   NewLoggingErrorReporter(nil),
		Metrics:         &NilMetrics{},
		HistoryCapacity: defaultPassHistoryCapacity,
	}
}

func (c *ManagerConfig) withDefaults() ManagerConfig {
	var out ManagerConfig
	if c != nil {
		out = *c
	}
	if out.Name == "" {
		out.Name = defaultManagerName
	}
	if out.ErrorReporter == nil {
		out.ErrorReporter = NewLoggingErrorReporter(out.Logger)
	}
	if out.Logger == nil {
		out.Logger = NewNoOpLogger()
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.HistoryCapacity < 1 {
		out.HistoryCapacity = defaultPassHistoryCapacity
	}
	return out
}
