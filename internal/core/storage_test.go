package core

import (
	"context"
	"path/filepath"
	"testing"

	"crosslab/internal/config"
	"crosslab/internal/infra/persistence/memory"
	"crosslab/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), config.Config{StorageDriver: config.StorageMemory}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteReloads(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{StorageDriver: "", SQLitePath: filepath.Join(t.TempDir(), "lab.db")}
	store, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqliteStore, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", store)
	}
	svc := NewService(store)
	if _, _, err := svc.Create(ctx, testcrossParams(t, "persisted")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.RecordObservations(ctx, "persisted", map[PhenotypeID]int{"E": 247, "e": 253}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, _, err := svc.Analyze(ctx, "persisted", 0); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if err := sqliteStore.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.(*sqlite.Store).Close() }()
	got, err := NewService(reopened).Get(ctx, "persisted")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChiSquare == nil || !got.ChiSquare.Passed || got.ObservedCounts["e"] != 253 {
		t.Fatalf("unexpected reloaded experiment %+v", got)
	}
}

func TestOpenPersistentStoreErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenPersistentStore(ctx, config.Config{StorageDriver: "cassandra"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	cfg := config.Config{StorageDriver: config.StoragePostgres, PostgresDSN: "postgres://127.0.0.1:1/crosslab?sslmode=disable&connect_timeout=1"}
	store, err := OpenPersistentStore(ctx, cfg, nil)
	if err == nil {
		t.Fatalf("expected unreachable postgres to fail")
	}
	if store != nil {
		t.Fatalf("expected nil store on error, got %T", store)
	}
}

func TestNewMetricsRecorder(t *testing.T) {
	rec, err := NewMetricsRecorder(config.Config{})
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if _, ok := rec.(noopMetricsRecorder); !ok {
		t.Fatalf("expected noop recorder, got %T", rec)
	}
	rec, err = NewMetricsRecorder(config.Config{Metrics: config.MetricsExpvar})
	if err != nil {
		t.Fatalf("expvar: %v", err)
	}
	if _, ok := rec.(*ExpvarMetricsRecorder); !ok {
		t.Fatalf("expected expvar recorder, got %T", rec)
	}
	rec, err = NewMetricsRecorder(config.Config{Metrics: config.MetricsPrometheus})
	if err != nil {
		t.Fatalf("prometheus: %v", err)
	}
	if _, ok := rec.(*PrometheusMetricsRecorder); !ok {
		t.Fatalf("expected prometheus recorder, got %T", rec)
	}
	if _, err := NewMetricsRecorder(config.Config{Metrics: "statsd"}); err == nil {
		t.Fatalf("expected unknown exporter error")
	}
}
