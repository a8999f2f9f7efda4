// Package postgres provides a Postgres-backed experiment store that mirrors
// the in-memory semantics and writes committed experiments as JSONB rows.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"crosslab/internal/infra/persistence/memory"
	"crosslab/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/crosslab?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists experiments to Postgres while reusing the in-memory
// implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to DefaultDSN), ensures the experiments table exists and hydrates the
// in-memory store from it.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	if err := mem.ImportState(snapshot); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies the provided function within a transaction, then
// writes the committed state to Postgres. A failed write rolls the in-memory
// state back to its value before fn ran.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		if rErr := s.ImportState(before); rErr != nil {
			return res, errors.Join(err, fmt.Errorf("restore state: %w", rErr))
		}
		return res, err
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		generation TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure experiments table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM experiments`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Experiments: map[string]domain.Experiment{}}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan experiment: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var exp domain.Experiment
		if err := json.Unmarshal(payload, &exp); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode experiment %s: %w", id, err)
		}
		snapshot.Experiments[id] = exp
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate experiments: %w", err)
	}
	return snapshot, nil
}

// persist writes the current in-memory state. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stale := make(map[string]struct{})
	rows, err := tx.QueryContext(ctx, `SELECT id FROM experiments`)
	if err != nil {
		return fmt.Errorf("select ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan id: %w", err)
		}
		stale[id] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close ids: %w", err)
	}

	for id, exp := range snapshot.Experiments {
		delete(stale, id)
		data, err := json.Marshal(exp)
		if err != nil {
			return fmt.Errorf("encode experiment %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO experiments(id,generation,payload) VALUES($1,$2,$3) ON CONFLICT(id) DO UPDATE SET generation=EXCLUDED.generation, payload=EXCLUDED.payload`, id, exp.Generation, data); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	for id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id=$1`, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
