package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oidcgate/internal/config"
)

// ErrNotFound is returned by Get when a key is absent or has expired.
var ErrNotFound = errors.New("key not found")

// Cache is the key/value store backing transient login state and, when
// store-backed sessions are configured, the session records themselves.
// Values expire after their TTL. Overwrites are last-writer-wins, which is
// all session rotation needs since every key has a single owner.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the cache backend named by the configuration. The in-process
// memory backend suits single-instance deployments; multi-instance
// deployments need redis so login state survives being load-balanced to a
// different instance between login and callback.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis config is required for redis cache type")
		}
		return NewRedis(*cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
