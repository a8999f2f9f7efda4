package core

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"crosslab/internal/config"
	"crosslab/internal/infra/persistence/memory"
	"crosslab/internal/infra/persistence/postgres"
	"crosslab/internal/infra/persistence/sqlite"
	"crosslab/pkg/domain"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend from configuration; an empty driver
// selects sqlite.
func OpenPersistentStore(ctx context.Context, cfg config.Config, engine *RulesEngine) (PersistentStore, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return memory.NewStore(engine), nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.StorageDriver)
	}
}

// NewMetricsRecorder builds the recorder named by cfg.Metrics. The
// prometheus recorder gets its own registry so one process can build
// several without colliding.
func NewMetricsRecorder(cfg config.Config) (MetricsRecorder, error) {
	switch cfg.Metrics {
	case config.MetricsNone, "":
		return noopMetricsRecorder{}, nil
	case config.MetricsExpvar:
		return NewExpvarMetricsRecorder(""), nil
	case config.MetricsPrometheus:
		rec, err := NewPrometheusMetricsRecorder(prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unknown metrics exporter %s", cfg.Metrics)
	}
}
