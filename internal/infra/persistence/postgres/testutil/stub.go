// Package testutil provides a stub database/sql driver that stands in for
// Postgres in snapshot store tests. It understands the handful of statements
// the store issues: upserts keyed on their first column, whole-table selects
// and table locks. Writes made inside a transaction become visible on commit.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Uint64

// Row is one stored row keyed by column name.
type Row map[string]any

type write struct {
	table string
	key   string
	row   Row
}

// StubConn is the single connection shared by every handle of one stub DB.
type StubConn struct {
	mu      sync.Mutex
	tables  map[string]map[string]Row
	pending []write
	inTx    bool

	// Execs lists every statement passed to ExecContext in order.
	Execs []string
	// Locks counts LOCK TABLE statements.
	Locks int

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
}

// NewStubDB registers a fresh driver and returns a handle over its connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{tables: make(map[string]map[string]Row)}
	name := fmt.Sprintf("kittycore-stub-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

// Rows returns copies of the committed rows of table.
func (c *StubConn) Rows(table string) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Row, 0, len(c.tables[table]))
	for _, row := range c.tables[table] {
		out = append(out, maps.Clone(row))
	}
	return out
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; the stub only serves context statements.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements unsupported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("stub: ping failed")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	c.inTx = true
	c.pending = nil
	return stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	verb := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(verb, "LOCK TABLE"):
		c.Locks++
		return driver.RowsAffected(0), nil
	case !strings.HasPrefix(verb, "INSERT INTO"):
		return driver.RowsAffected(0), nil
	}
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %d columns but %d args for %s", len(cols), len(args), table)
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	w := write{table: table, key: fmt.Sprint(row[cols[0]]), row: row}
	if c.inTx {
		c.pending = append(c.pending, w)
	} else {
		c.apply(w)
	}
	return driver.RowsAffected(1), nil
}

func (c *StubConn) apply(w write) {
	if c.tables[w.table] == nil {
		c.tables[w.table] = make(map[string]Row)
	}
	c.tables[w.table][w.key] = w.row
}

// QueryContext implements driver.QueryerContext. Rows written earlier in the
// open transaction are visible to it.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, errors.New("stub: query failed")
	}
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	view := maps.Clone(c.tables[table])
	if view == nil {
		view = make(map[string]Row)
	}
	for _, w := range c.pending {
		if w.table == table {
			view[w.key] = w.row
		}
	}
	out := &stubRows{cols: cols}
	for _, row := range view {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endTx()
	if c.FailCommit {
		return errors.New("stub: commit failed")
	}
	for _, w := range c.pending {
		c.apply(w)
	}
	return nil
}

func (t stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.endTx()
	return nil
}

func (c *StubConn) endTx() {
	c.inTx = false
	c.pending = nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	next int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}

// parseInsert extracts the table and column list of
// "INSERT INTO table(col,...) VALUES(...)".
func parseInsert(query string) (string, []string, error) {
	rest, ok := cutFold(query, "into ")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse insert %q", query)
	}
	table, cols, ok := strings.Cut(rest, "(")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse insert %q", query)
	}
	cols, _, ok = strings.Cut(cols, ")")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse insert %q", query)
	}
	return strings.ToLower(strings.TrimSpace(table)), splitColumns(cols), nil
}

// parseSelect extracts the table and column list of
// "SELECT col,... FROM table ...". Trailing clauses are ignored.
func parseSelect(query string) (string, []string, error) {
	rest, ok := cutFold(query, "select ")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse select %q", query)
	}
	lower := strings.ToLower(rest)
	idx := strings.Index(lower, " from ")
	if idx < 0 {
		return "", nil, fmt.Errorf("stub: cannot parse select %q", query)
	}
	fields := strings.Fields(lower[idx+len(" from "):])
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("stub: cannot parse select %q", query)
	}
	return fields[0], splitColumns(rest[:idx]), nil
}

func cutFold(s, token string) (string, bool) {
	idx := strings.Index(strings.ToLower(s), token)
	if idx < 0 {
		return "", false
	}
	return s[idx+len(token):], true
}

func splitColumns(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
