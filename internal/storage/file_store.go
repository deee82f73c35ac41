package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"
)

const (
	fileStoreVersion   = 1
	fileLockRetryDelay = 10 * time.Millisecond
)

var ErrInvalidValue = errors.New("invalid store value")

// FileStore keeps every record in one JSON document. An advisory lock file
// next to it serializes access across processes sharing the same path.
type FileStore struct {
	mu     sync.Mutex
	path   string
	lock   *flock.Flock
	closed bool
}

type fileSnapshot struct {
	Version int               `json:"version"`
	Records map[string]string `json:"records"`
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, unavailable("mkdir", err)
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	var (
		value string
		ok    bool
	)
	err := s.withLock(ctx, false, func() error {
		records, err := s.readLocked()
		if err != nil {
			return err
		}
		value, ok = records[key]
		return nil
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateTextValue(value); err != nil {
		return err
	}
	return s.withLock(ctx, true, func() error {
		records, err := s.readLocked()
		if err != nil {
			return err
		}
		records[key] = string(value)
		return s.writeLocked(records)
	})
}

func (s *FileStore) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if err := validateTextValue(value); err != nil {
		return nil, false, err
	}
	var (
		stored  string
		created bool
	)
	err := s.withLock(ctx, true, func() error {
		records, err := s.readLocked()
		if err != nil {
			return err
		}
		if existing, ok := records[key]; ok {
			stored = existing
			return nil
		}
		records[key] = string(value)
		if err := s.writeLocked(records); err != nil {
			return err
		}
		stored, created = string(value), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return []byte(stored), created, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.withLock(ctx, true, func() error {
		records, err := s.readLocked()
		if errors.Is(err, ErrCorrupt) {
			// Nothing in the document is readable; set it aside so the
			// namespace can be reset.
			return s.quarantineLocked()
		}
		if err != nil {
			return err
		}
		if _, ok := records[key]; !ok {
			return nil
		}
		delete(records, key)
		return s.writeLocked(records)
	})
}

// quarantineLocked moves an undecodable document to <path>.corrupt, replacing
// any earlier quarantined copy.
func (s *FileStore) quarantineLocked() error {
	if err := os.Rename(s.path, s.path+".corrupt"); err != nil {
		return unavailable("quarantine", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("lock", ErrClosed)
	}

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, fileLockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, fileLockRetryDelay)
	}
	if err != nil {
		return unavailable("lock", err)
	}
	if !locked {
		return unavailable("lock", errors.New("lock not acquired"))
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return fn()
}

func (s *FileStore) readLocked() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, unavailable("read", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if snap.Version != fileStoreVersion {
		return nil, unavailable("decode", fmt.Errorf("unsupported store version %d", snap.Version))
	}
	if snap.Records == nil {
		snap.Records = make(map[string]string)
	}
	return snap.Records, nil
}

// writeLocked replaces the document through a temp file and rename so a
// crash never leaves a truncated store behind.
func (s *FileStore) writeLocked(records map[string]string) error {
	data, err := json.Marshal(fileSnapshot{Version: fileStoreVersion, Records: records})
	if err != nil {
		return unavailable("encode", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return unavailable("mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return unavailable("write", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return unavailable("write", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return unavailable("write", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return unavailable("write", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return unavailable("write", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return unavailable("write", err)
	}
	return nil
}

func validateTextValue(value []byte) error {
	if !utf8.Valid(value) {
		return fmt.Errorf("%w: file store values must be utf-8 text", ErrInvalidValue)
	}
	return nil
}
