package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"crosslab/pkg/genetics"
)

var fixedNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func fixedClock() Clock { return ClockFunc(func() time.Time { return fixedNow }) }

func eyeAlleles(t *testing.T) genetics.Alleles {
	t.Helper()
	alleles, err := genetics.NewAlleles(
		genetics.Allele{Symbol: "E", Description: "Red", Dominant: true},
		genetics.Allele{Symbol: "e", Description: "White"},
	)
	if err != nil {
		t.Fatalf("alleles: %v", err)
	}
	return alleles
}

func eyeWingAlleles(t *testing.T) genetics.Alleles {
	t.Helper()
	alleles, err := genetics.NewAlleles(
		genetics.Allele{Symbol: "E", Description: "Red", Dominant: true},
		genetics.Allele{Symbol: "e", Description: "White"},
		genetics.Allele{Symbol: "W", Description: "Normal", Dominant: true},
		genetics.Allele{Symbol: "w", Description: "Vestigial"},
	)
	if err != nil {
		t.Fatalf("alleles: %v", err)
	}
	return alleles
}

func testcrossParams(t *testing.T, id string) ExperimentParams {
	t.Helper()
	return ExperimentParams{
		ID:            id,
		Name:          "Eye colour testcross",
		Generation:    "F1",
		Parent1:       "Ee",
		Parent2:       "ee",
		Alleles:       eyeAlleles(t),
		TotalExpected: 500,
	}
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg, key string, value any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line.level != level || line.msg != msg {
			continue
		}
		for i := 0; i+1 < len(line.args); i += 2 {
			if fmt.Sprint(line.args[i]) == key && fmt.Sprint(line.args[i+1]) == fmt.Sprint(value) {
				return true
			}
		}
	}
	return false
}
