// Package sqlite provides a SQLite-backed experiment store. Transactions run
// against the embedded in-memory store; committed state is written through
// to one row per experiment.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"crosslab/internal/infra/persistence/memory"
	"crosslab/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "crosslab.db"

// Store persists experiments to a SQLite table as JSON documents.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the
// in-memory state from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		generation TEXT NOT NULL DEFAULT '',
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create experiments table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT id, payload FROM experiments`)
	if err != nil {
		return fmt.Errorf("select experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Experiments: map[string]domain.Experiment{}}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var exp domain.Experiment
		if err := json.Unmarshal(payload, &exp); err != nil {
			return fmt.Errorf("decode experiment %s: %w", id, err)
		}
		snapshot.Experiments[id] = exp
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate experiments: %w", err)
	}
	return s.ImportState(snapshot)
}

// persist writes the current in-memory state. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stale, err := existingIDs(ctx, tx)
	if err != nil {
		return err
	}
	for id, exp := range snapshot.Experiments {
		delete(stale, id)
		data, err := json.Marshal(exp)
		if err != nil {
			return fmt.Errorf("encode experiment %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO experiments(id,generation,payload) VALUES(?,?,?) ON CONFLICT(id) DO UPDATE SET generation=excluded.generation, payload=excluded.payload`, id, exp.Generation, data); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	for id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func existingIDs(ctx context.Context, tx *sql.Tx) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM experiments`)
	if err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// RunInTransaction applies the provided function within a transaction, then
// writes the committed state to SQLite. When the write fails the in-memory
// state is restored to what it was before fn ran.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		pErr = fmt.Errorf("persist: %w", pErr)
		if rErr := s.ImportState(before); rErr != nil {
			return res, errors.Join(pErr, fmt.Errorf("restore state: %w", rErr))
		}
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
