// Package factory selects a session store backend from configuration.
package factory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage/memory"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage/sqlite"
)

// Backend names a session store implementation.
type Backend string

const (
	// BackendMemory keeps sessions in process memory.
	BackendMemory Backend = "memory"
	// BackendSQLite persists sessions in a SQLite file with per-session actors.
	BackendSQLite Backend = "sqlite"
)

// Config selects and configures the session store.
type Config struct {
	Backend Backend
	// Path is the SQLite database file; ignored by the memory backend.
	Path string
}

// Open returns the configured store and a function that releases it.
func Open(cfg Config) (storage.SessionStore, func() error, error) {
	backend := Backend(strings.ToLower(strings.TrimSpace(string(cfg.Backend))))
	switch backend {
	case BackendMemory, "mem", "":
		store := memory.New()
		return store, store.Close, nil
	case BackendSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, nil, fmt.Errorf("sqlite store requires a database path")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("session store backend %q is not supported", cfg.Backend)
	}
}
