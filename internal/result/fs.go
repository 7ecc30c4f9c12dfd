package result

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Compile-time interface satisfaction check.
var _ Store = (*FSStore)(nil)

// FSStore is the reference Store implementation: one JSON file per cache
// key under a root directory. Filenames derive deterministically from the
// key, so records can be inspected externally and invalidated manually by
// deleting the file.
type FSStore struct {
	dir string
	mu  sync.Mutex
}

// NewFSStore creates the root directory if needed and returns a store
// backed by it.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Close is a no-op for the filesystem store.
func (s *FSStore) Close() error { return nil }

// Path returns the file a record for key is stored at. Keys are hex-hashed
// into the filename so arbitrary key strings stay filesystem-safe; the raw
// key is kept inside the record for inspection.
func (s *FSStore) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// Put persists value under key. An existing unexpired record makes the
// write a no-op unless refresh is set. The record is written to a temp file
// and renamed into place so readers never observe a torn record.
func (s *FSStore) Put(ctx context.Context, key string, value json.RawMessage, expiresAt *time.Time, refresh bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(key)
	if !refresh {
		if existing, err := s.read(path); err == nil && !existing.Expired(time.Now().UTC()) {
			return nil
		}
	}

	rec := Record{
		Key:       key,
		Value:     value,
		WrittenAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// Get looks up the record for key. Expired records return ErrExpired and
// stay on disk; eviction is manual.
func (s *FSStore) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := s.read(s.Path(key))
	if err != nil {
		return nil, err
	}
	if rec.Expired(time.Now().UTC()) {
		return nil, ErrExpired
	}
	return rec, nil
}

func (s *FSStore) read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
