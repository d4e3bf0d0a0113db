// Package store persists small JSON documents by key: criteria, target
// context and the roster cache.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/artist-check/internal/config"
)

// Store is a durable key-value store. Get returns nil, nil for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	case "redis":
		st, err = NewRedis(ctx, cfg.Redis)
	case "memory":
		st = NewMemory()
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
