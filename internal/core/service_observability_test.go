package core

import (
	"context"
	"testing"
	"time"

	"crosslab/internal/infra/persistence/memory"
	"crosslab/pkg/domain"
)

func TestServiceObservabilityCompliance(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}

	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
		WithClock(fixedClock()),
	)

	created, _, err := svc.Create(ctx, testcrossParams(t, "obs"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !audit.has(OpCreateExperiment, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == created.ID && e.Action == ActionCreate && e.Timestamp.Equal(fixedNow)
	}) {
		t.Fatalf("expected audit entry for create_experiment")
	}
	if !logger.has("info", "operation completed", "experiment_id", "obs") {
		t.Fatalf("expected completion log line, got %+v", logger.lines)
	}

	if _, _, err := svc.RecordObservations(ctx, "obs", map[PhenotypeID]int{"E": 1, "e": 2}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, _, err := svc.Analyze(ctx, "obs", 0); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !audit.has(OpAnalyzeExperiment, AuditStatusSuccess, nil) || !metrics.has(OpAnalyzeExperiment, true) || !tracer.has(OpAnalyzeExperiment, true) {
		t.Fatalf("expected analyze to be audited, measured and traced")
	}

	if _, err := svc.Delete(ctx, "missing"); err == nil {
		t.Fatalf("expected delete error for missing id")
	}
	if !audit.has(OpDeleteExperiment, AuditStatusError, func(e AuditEntry) bool { return e.Error != "" }) {
		t.Fatalf("expected audit error entry for delete_experiment")
	}
	if !metrics.has(OpDeleteExperiment, false) {
		t.Fatalf("expected metrics entry for failed delete_experiment")
	}
	if !tracer.has(OpDeleteExperiment, false) {
		t.Fatalf("expected failed trace span for delete_experiment")
	}
	if !logger.has("error", "operation failed", "operation", OpDeleteExperiment) {
		t.Fatalf("expected failure log line")
	}
	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("every started span must end: %d started, %d ended", len(tracer.started), len(tracer.ended))
	}
}

func TestServiceLogsRuleWarnings(t *testing.T) {
	logger := &captureLogger{}
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithLogger(logger))
	p := testcrossParams(t, "small")
	p.TotalExpected = 8
	_, res, err := svc.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected two low_expected_count warnings, got %+v", res.Violations)
	}
	if !logger.has("warn", "rule violation", "rule", "low_expected_count") {
		t.Fatalf("expected warn log for rule violation")
	}
}

func TestRecordAuditSuccessUsesMetadata(t *testing.T) {
	recorder := &captureAuditRecorder{}
	svc := NewService(memory.NewStore(NewDefaultRulesEngine()), WithAuditRecorder(recorder), WithClock(fixedClock()))

	svc.recordAuditSuccess(context.Background(), OpUpdateNotes, "exp-9", 42*time.Millisecond)

	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Entity != EntityExperiment || entry.Action != ActionUpdate || entry.EntityID != "exp-9" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Status != AuditStatusSuccess || entry.Duration != 42*time.Millisecond || !entry.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestRecordAuditSuccessIgnoresUnknownOperation(t *testing.T) {
	recorder := &captureAuditRecorder{}
	svc := NewService(memory.NewStore(nil), WithAuditRecorder(recorder))
	svc.recordAuditSuccess(context.Background(), "unknown_operation", "entity", time.Second)
	if len(recorder.entries) != 0 {
		t.Fatalf("expected no audit entries for unknown operation, got %d", len(recorder.entries))
	}
}

func TestNoopImplementations(t *testing.T) {
	var logger noopLogger
	logger.Debug("noop")
	logger.Info("noop")
	logger.Warn("noop")
	logger.Error("noop")

	var audit noopAuditRecorder
	audit.Record(context.Background(), AuditEntry{})

	var metrics noopMetricsRecorder
	metrics.Observe(context.Background(), "noop", true, 0)

	ctx, span := noopTracer{}.Start(context.Background(), "op")
	if ctx == nil {
		t.Fatalf("expected context from tracer")
	}
	span.End(nil)
}

func TestClockFuncNow(t *testing.T) {
	if got := ClockFunc(nil).Now(); got.IsZero() || got.Location() != time.UTC {
		t.Fatalf("expected non-zero UTC time, got %s", got)
	}
	local := time.Date(2024, 7, 4, 12, 34, 56, 0, time.FixedZone("offset", -5*3600))
	if got := ClockFunc(func() time.Time { return local }).Now(); !got.Equal(local) || got.Location() != time.UTC {
		t.Fatalf("expected UTC conversion, got %s", got)
	}
}

type bareStore struct {
	domain.PersistentStore
}

func TestSelectNowFuncAndEngine(t *testing.T) {
	storeTime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("cet", 3600))
	engine := domain.NewRulesEngine()
	store := memory.NewStore(engine)
	store.SetNowFunc(func() time.Time { return storeTime })

	if got := selectNowFunc(store, nil)(); !got.Equal(storeTime) || got.Location() != time.UTC {
		t.Fatalf("expected store time in UTC, got %s", got)
	}
	if got := selectNowFunc(store, fixedClock())(); !got.Equal(fixedNow) {
		t.Fatalf("expected explicit clock to win, got %s", got)
	}
	if got := selectNowFunc(bareStore{}, nil)(); got.IsZero() {
		t.Fatalf("expected wall clock fallback")
	}
	if extractRulesEngine(store) != engine {
		t.Fatalf("expected engine pointer")
	}
	if extractRulesEngine(bareStore{}) != nil {
		t.Fatalf("expected nil engine for stores without a provider")
	}
}
