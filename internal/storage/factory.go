package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

type Config struct {
	Backend string
	// Path is the backend file. When empty it defaults to a well-known name
	// inside DataDir.
	Path    string
	DataDir string
}

func DefaultFileName(backend string) string {
	switch NormalizeBackend(backend) {
	case BackendBolt:
		return "keystore.db"
	case BackendSQLite:
		return "keystore.sqlite"
	default:
		return "keystore.json"
	}
}

func NormalizeBackend(backend string) string {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		return BackendFile
	}
	return backend
}

func (c Config) ResolvedPath() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	dir := strings.TrimSpace(c.DataDir)
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, DefaultFileName(c.Backend))
}

// Open builds the backend named by cfg.Backend.
func Open(cfg Config) (Store, error) {
	switch NormalizeBackend(cfg.Backend) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(cfg.ResolvedPath())
	case BackendBolt:
		return NewBoltStore(cfg.ResolvedPath())
	case BackendSQLite:
		return NewSQLiteStore(cfg.ResolvedPath())
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
