// Package fs archives blobs as files under a root directory. Each blob is
// paired with a JSON sidecar (key + ".meta") holding its info; a blob is
// listed only once its sidecar exists.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"kittycore/internal/blob/core"
)

const (
	metaSuffix  = ".meta"
	defaultRoot = "./blobdata"
)

// Store is an append-only core.Store on the local filesystem.
type Store struct {
	root string
	now  func() time.Time
}

// New returns a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = defaultRoot
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Driver reports core.DriverFilesystem.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sanitizeKey rejects keys that are empty, absolute, escape the root or
// collide with sidecar names.
func sanitizeKey(key string) (string, error) {
	switch {
	case strings.TrimSpace(key) == "":
		return "", errors.New("empty key")
	case strings.HasPrefix(key, "/"):
		return "", fmt.Errorf("key %q is absolute", key)
	case strings.Contains(key, ".."):
		return "", fmt.Errorf("key %q leaves the root", key)
	case strings.HasSuffix(key, metaSuffix):
		return "", fmt.Errorf("key %q uses the reserved %s suffix", key, metaSuffix)
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

type location struct {
	key  string
	data string
	meta string
}

func (s *Store) locate(key string) (location, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return location{}, err
	}
	data := filepath.Join(s.root, filepath.FromSlash(clean))
	return location{key: clean, data: data, meta: data + metaSuffix}, nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	WrittenAt   time.Time         `json:"written_at"`
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     maps.Clone(m.Metadata),
		LastModified: m.WrittenAt,
	}
}

// Put writes r to a temporary file and links it into place. The link fails
// when the key already exists, so concurrent writers cannot both win.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	loc, err := s.locate(key)
	if err != nil {
		return core.Info{}, err
	}
	dir := filepath.Dir(loc.data)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return core.Info{}, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, size, etag, err := spool(dir, r)
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.Link(tmp, loc.data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
		}
		return core.Info{}, fmt.Errorf("publish blob %s: %w", key, err)
	}
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    maps.Clone(opts.Metadata),
		ETag:        etag,
		Size:        size,
		WrittenAt:   s.now(),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(loc.meta, raw, 0o600); err != nil {
		return core.Info{}, fmt.Errorf("write sidecar %s: %w", key, err)
	}
	return meta.info(loc.key), nil
}

// spool copies r into a synced temporary file in dir and returns its path,
// size and sha256 etag.
func spool(dir string, r io.Reader) (string, int64, string, error) {
	f, err := os.CreateTemp(dir, ".spool-*")
	if err != nil {
		return "", 0, "", err
	}
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, "", err
	}
	return f.Name(), size, hex.EncodeToString(h.Sum(nil)), nil
}

func readSidecar(path string) (sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var m sidecar
	if err := json.Unmarshal(raw, &m); err != nil {
		return sidecar{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Head returns the blob info from its sidecar.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	loc, err := s.locate(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := readSidecar(loc.meta)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, err
	}
	return meta.info(loc.key), nil
}

// Get opens the blob. Callers close the returned reader.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	loc, _ := s.locate(key)
	f, err := os.Open(loc.data)
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return info, f, nil
}

// List returns the blobs under prefix in key order.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return err
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readSidecar(path)
		if err != nil {
			return err
		}
		out = append(out, meta.info(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}
