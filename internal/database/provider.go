package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/face-sorter/internal/config"
)

// Opener opens a Store for the given configuration
type Opener func(ctx context.Context, cfg *config.DatabaseConfig) (Store, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Opener)
)

// RegisterBackend registers a store constructor under a name.
// This is called by the backend packages from init to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// BackendName returns the backend selected by the configuration
func BackendName(cfg *config.DatabaseConfig) string {
	if cfg.UsePostgres() {
		return "postgres"
	}
	return "sqlite"
}

// Open opens the store selected by the configuration.
// The backend package must be linked in (usually via a blank import).
func Open(ctx context.Context, cfg *config.DatabaseConfig) (Store, error) {
	name := BackendName(cfg)

	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database backend %q not registered (available: %v)", name, registeredBackends())
	}

	store, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", name, err)
	}
	return store, nil
}

func registeredBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
