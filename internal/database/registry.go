package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/koustreak/unisql/internal/errs"
	"github.com/koustreak/unisql/internal/logger"
)

// Connector owns the shared, process-level resources of one configured
// database (an ODBC environment, a connection pool) and hands out sessions.
// Unlike sessions, a Connector is safe for concurrent use.
type Connector interface {
	Backend() Backend

	// Connect opens a new session.
	Connect(ctx context.Context) (Connectable, error)

	// Close tears down shared resources. Open sessions must be closed first.
	Close() error
}

// OpenFunc builds a Connector for cfg.
type OpenFunc func(ctx context.Context, cfg *Config, log *logger.Logger) (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = map[Backend]OpenFunc{}
)

// Register makes a backend available to Open. Backend packages call it from
// init; registering the same backend twice panics.
func Register(b Backend, fn OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[b]; dup {
		panic(fmt.Sprintf("database: backend %q registered twice", b))
	}
	registry[b] = fn
}

// Backends lists the registered backends in name order.
func Backends() []Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Backend, 0, len(registry))
	for b := range registry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Open selects the backend named by cfg.Backend and builds its Connector.
func Open(ctx context.Context, cfg *Config, log *logger.Logger) (Connector, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "nil database config")
	}
	if log == nil {
		log = logger.Nop()
	}
	registryMu.RLock()
	fn, ok := registry[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown backend %q", cfg.Backend)
	}
	cfg.ApplyDefaults()
	return fn(ctx, cfg, log.Component(string(cfg.Backend)))
}
