// Package memory keeps archived blobs in process memory. It backs tests and
// the memory blob driver, which drops receipts on exit.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"kittycore/internal/blob/core"
)

type object struct {
	info core.Info
	body []byte
}

// Store is an append-only core.Store held in a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Driver reports core.DriverMemory.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put reads r fully and stores it under key. Keys are write-once.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	sum := sha256.Sum256(body)
	obj := object{
		body: body,
		info: core.Info{
			Key:          key,
			Size:         int64(len(body)),
			ContentType:  opts.ContentType,
			ETag:         hex.EncodeToString(sum[:]),
			Metadata:     maps.Clone(opts.Metadata),
			LastModified: s.now(),
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.objects[key]; taken {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
	}
	s.objects[key] = obj
	return exported(obj.info), nil
}

func (s *Store) lookup(key string) (object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return object{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return obj, nil
}

// Get returns the blob info and a reader over its body.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	// Stored bodies are never mutated, so readers can share them.
	return exported(obj.info), io.NopCloser(bytes.NewReader(obj.body)), nil
}

// Head returns the blob info.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return exported(obj.info), nil
}

// List returns the blobs under prefix in key order.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	keys := slices.Sorted(maps.Keys(s.objects))
	out := make([]core.Info, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, exported(s.objects[key].info))
		}
	}
	s.mu.RUnlock()
	return out, nil
}

// exported copies info so callers cannot reach the stored metadata map.
func exported(info core.Info) core.Info {
	info.Metadata = maps.Clone(info.Metadata)
	return info
}
