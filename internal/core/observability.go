package core

import (
	"context"
	"time"
)

// Logger is the structured logger consumed by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies the time used to stamp experiment mutations.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns the function result in UTC; a nil ClockFunc reads the wall clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around a service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error (nil on success).
type TraceSpan interface {
	End(err error)
}

// AuditStatus is the outcome recorded in an audit entry.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating service operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every mutating operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Operation names reported to loggers, metrics, tracers and audit.
const (
	OpCreateExperiment    = "create_experiment"
	OpRecordObservations  = "record_observations"
	OpAnalyzeExperiment   = "analyze_experiment"
	OpUpdateTotalExpected = "update_total_expected"
	OpUpdateNotes         = "update_notes"
	OpDeleteExperiment    = "delete_experiment"
)

type operationMetadata struct {
	entity EntityType
	action Action
}

var auditedOperations = map[string]operationMetadata{
	OpCreateExperiment:    {entity: EntityExperiment, action: ActionCreate},
	OpRecordObservations:  {entity: EntityExperiment, action: ActionUpdate},
	OpAnalyzeExperiment:   {entity: EntityExperiment, action: ActionUpdate},
	OpUpdateTotalExpected: {entity: EntityExperiment, action: ActionUpdate},
	OpUpdateNotes:         {entity: EntityExperiment, action: ActionUpdate},
	OpDeleteExperiment:    {entity: EntityExperiment, action: ActionDelete},
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}
