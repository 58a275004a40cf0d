// Package tokenstore is the single accessor for the persisted bearer token.
// The session store writes through it and the request gateway reads through
// it, so both always agree on one storage key.
package tokenstore

import (
	"context"
	"errors"

	"qrguard/internal/storage"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "qrguard.auth.token"

// Source is the read side used by the request gateway.
type Source interface {
	Token(ctx context.Context) string
}

// TokenStore reads and writes the bearer token under one key.
type TokenStore struct {
	store storage.Store
	key   string
}

// New creates a TokenStore. An empty key selects DefaultKey.
func New(store storage.Store, key string) *TokenStore {
	if key == "" {
		key = DefaultKey
	}
	return &TokenStore{store: store, key: key}
}

// Key returns the storage key in use.
func (t *TokenStore) Key() string { return t.key }

// Token returns the persisted token, or "" when none is stored or storage fails.
func (t *TokenStore) Token(ctx context.Context) string {
	tok, _ := t.Load(ctx)
	return tok
}

// Load is Token with the storage error exposed. A missing token is not an error.
func (t *TokenStore) Load(ctx context.Context) (string, error) {
	tok, err := t.store.Get(ctx, t.key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tok, nil
}

// Save persists token verbatim.
func (t *TokenStore) Save(ctx context.Context, token string) error {
	return t.store.Set(ctx, t.key, token)
}

// Clear removes the persisted token.
func (t *TokenStore) Clear(ctx context.Context) error {
	return t.store.Delete(ctx, t.key)
}
