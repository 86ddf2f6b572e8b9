package session

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"

	"oidcgate/internal/cache"
	"oidcgate/internal/config"
)

// Codec turns a Session into a cookie value and back. Decode returns nil
// on any verification or lookup failure; callers branch on nil, they
// never see an error for a bad token. Encode always establishes the
// session under a fresh identity, Update rewrites it in place under the
// identity the browser already holds.
type Codec interface {
	Encode(ctx context.Context, s *Session) (string, error)
	Update(ctx context.Context, token string, s *Session) (string, error)
	Decode(ctx context.Context, token string) *Session
	Destroy(ctx context.Context, token string) error
}

// NewCodec builds the codec selected by configuration: a self-contained
// signed token, or an opaque handle backed by the cache.
func NewCodec(cfg config.SessionConfig, c cache.Cache, logger *slog.Logger) (Codec, error) {
	stateless, err := newStatelessCodec(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == "stateless" {
		return stateless, nil
	}
	return &storeCodec{
		cache:    c,
		cfg:      cfg,
		fallback: stateless,
		degrade:  cfg.StoreFallback == "stateless",
		logger:   logger,
	}, nil
}

// deriveKey expands the operator-supplied cookie secret into a purpose-
// bound key via HKDF, so the signing key and any future encryption key
// never coincide even though both come from one secret.
func deriveKey(secret, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}
