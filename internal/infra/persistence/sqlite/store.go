// Package sqlite persists the kitty registry to a single SQLite table holding
// one JSON payload per snapshot bucket.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kittycore/internal/infra/persistence/memory"
	"kittycore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "kittycore.db"

// Store persists the in-memory state to SQLite. Every transaction reloads
// the committed snapshot under a write lock before running, so processes
// sharing one database file never overwrite each other's commits.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// busyTimeout bounds how long a writer waits for another process to release
// the database lock.
const busyTimeout = 5 * time.Second

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.Refresh(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSnapshot(ctx context.Context, q queryer) (memory.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	payloads := make(map[string][]byte)
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return memory.DecodeBuckets(payloads)
}

func writeSnapshot(ctx context.Context, conn *sql.Conn, snapshot memory.Snapshot) error {
	payloads, err := memory.EncodeBuckets(snapshot)
	if err != nil {
		return err
	}
	for _, bucket := range memory.Buckets {
		if _, err := conn.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, payloads[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return nil
}

// Refresh replaces the in-memory state with the committed snapshot so reads
// observe writes made by other processes.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, err := loadSnapshot(ctx, s.db)
	if err != nil {
		return err
	}
	s.ImportState(snapshot)
	return nil
}

// View refreshes from the database and runs fn against the result.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	return s.Store.View(ctx, fn)
}

// RunInTransaction takes the database write lock, reloads the committed
// snapshot, applies fn and writes the result back before releasing the lock.
// Any failure leaves both the database and the in-memory state at the
// reloaded snapshot.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("acquire sqlite conn: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return domain.Result{}, fmt.Errorf("begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		}
	}()

	current, err := loadSnapshot(ctx, conn)
	if err != nil {
		return domain.Result{}, err
	}
	s.ImportState(current)
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := writeSnapshot(ctx, conn, s.ExportState()); err != nil {
		s.ImportState(current)
		return res, fmt.Errorf("persist sqlite snapshot: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		s.ImportState(current)
		return res, fmt.Errorf("commit sqlite snapshot: %w", err)
	}
	committed = true
	return res, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
