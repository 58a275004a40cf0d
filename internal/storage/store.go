// Package storage provides the client-local key/value store that holds the
// session token and chat transcripts.
package storage

import (
	"context"
	"errors"
	"fmt"

	"qrguard/internal/config"
	"qrguard/internal/observability"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a flat string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// Open builds the Store selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageSQLite:
		return OpenSQLite(cfg.StoragePath)
	case config.StorageRedis:
		return OpenRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.StorageDriver)
	}
}

func countError(backend, operation string, err error) error {
	if err != nil && !errors.Is(err, ErrNotFound) {
		observability.StorageErrorsTotal.WithLabelValues(backend, operation).Inc()
	}
	return err
}
