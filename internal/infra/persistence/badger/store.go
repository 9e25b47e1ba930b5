// Package badger persists the kitty registry snapshot in an embedded Badger
// key-value database, one key per snapshot bucket.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"kittycore/internal/infra/persistence/memory"
	"kittycore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const keyPrefix = "state/"

// Config controls how the Badger database is opened.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// Store persists state to Badger while reusing the in-memory implementation
// for transactions. Badger holds an exclusive lock on its directory, so a
// second process opening the same path fails instead of sharing it.
type Store struct {
	*memory.Store
	db *badger.DB
	mu sync.Mutex
}

// NewStore opens the database described by cfg and hydrates the in-memory
// state from any stored snapshot.
func NewStore(cfg Config, engine *domain.RulesEngine) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{Store: memory.NewStore(engine), db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

func (s *Store) load() error {
	payloads := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, bucket := range memory.Buckets {
			item, err := txn.Get([]byte(keyPrefix + bucket))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", bucket, err)
			}
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", bucket, err)
			}
			payloads[bucket] = payload
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}
	snapshot, err := memory.DecodeBuckets(payloads)
	if err != nil {
		return err
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() error {
	payloads, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, bucket := range memory.Buckets {
			if err := txn.Set([]byte(keyPrefix+bucket), payloads[bucket]); err != nil {
				return fmt.Errorf("set %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// RunInTransaction applies fn within a transaction, then writes every bucket
// in a single Badger update. A failed write undoes the in-memory commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(); err != nil {
		s.ImportState(before)
		return res, fmt.Errorf("persist badger snapshot: %w", err)
	}
	return res, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying database for integration testing hooks.
func (s *Store) DB() *badger.DB { return s.db }
