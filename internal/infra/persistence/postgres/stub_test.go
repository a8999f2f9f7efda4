package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq uint64

// stubConn is a database/sql driver connection that understands the handful
// of statements the store issues against the experiments table.
type stubConn struct {
	mu         sync.Mutex
	execs      []string
	rows       map[string]stubRow
	failPing   bool
	failBegin  bool
	failCommit bool
	failUpsert bool
}

type stubRow struct {
	generation string
	payload    []byte
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{rows: make(map[string]stubRow)}
	name := fmt.Sprintf("stubpg%d", atomic.AddUint64(&stubSeq, 1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *stubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return errors.New("ping fail")
	}
	return nil
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.failBegin {
		return nil, errors.New("begin fail")
	}
	return stubTx{conn: c}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO EXPERIMENTS"):
		if c.failUpsert {
			return nil, errors.New("upsert fail")
		}
		payload := append([]byte(nil), args[2].Value.([]byte)...)
		c.rows[args[0].Value.(string)] = stubRow{generation: args[1].Value.(string), payload: payload}
	case strings.HasPrefix(upper, "DELETE FROM EXPERIMENTS"):
		delete(c.rows, args[0].Value.(string))
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select ") || !strings.Contains(lower, " from experiments") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	var cols []string
	for _, col := range strings.Split(lower[len("select "):strings.Index(lower, " from ")], ",") {
		cols = append(cols, strings.TrimSpace(col))
	}
	ids := make([]string, 0, len(c.rows))
	for id := range c.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := &stubRows{cols: cols}
	for _, id := range ids {
		row := c.rows[id]
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			switch col {
			case "id":
				vals[i] = id
			case "generation":
				vals[i] = row.generation
			case "payload":
				vals[i] = append([]byte(nil), row.payload...)
			}
		}
		out.values = append(out.values, vals)
	}
	return out, nil
}

type stubTx struct{ conn *stubConn }

func (t stubTx) Commit() error {
	if t.conn.failCommit {
		return errors.New("commit fail")
	}
	return nil
}

func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols   []string
	values [][]driver.Value
	idx    int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}
