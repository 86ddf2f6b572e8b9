package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"oidcgate/internal/cache"
	"oidcgate/internal/config"
	"oidcgate/pkg/security"
)

const sessionKeyPrefix = "session:"

// sessionIDBytes gives a 43-character base64url identifier.
const sessionIDBytes = 32

// storeCodec hands the browser an opaque random identifier and keeps the
// record in the cache under it, with a TTL equal to the cookie max age.
// Every Encode mints a fresh identifier, which is what makes session
// rotation (and session-fixation mitigation) a plain re-encode.
type storeCodec struct {
	cache    cache.Cache
	cfg      config.SessionConfig
	fallback *statelessCodec
	// degrade selects the configured behavior when the store is down at
	// encode time: fall back to a self-contained token instead of failing
	// the login.
	degrade bool
	logger  *slog.Logger
}

func (c *storeCodec) Encode(ctx context.Context, s *Session) (string, error) {
	id, err := security.RandomToken(sessionIDBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.cache.Set(ctx, sessionKeyPrefix+id, payload, c.cfg.CookieMaxAge); err != nil {
		if c.degrade {
			c.logger.Warn("session store unavailable, degrading to self-contained token", "error", err)
			return c.fallback.Encode(ctx, s)
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// Update overwrites the record under the identifier already on the
// cookie, so a rolling rewrite never leaves a superseded record behind.
// Only Encode mints identifiers.
func (c *storeCodec) Update(ctx context.Context, token string, s *Session) (string, error) {
	if token == "" || strings.Contains(token, ".") {
		// No opaque identity to preserve (absent cookie, or a token minted
		// during a degraded period): establish the session fresh.
		return c.Encode(ctx, s)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.cache.Set(ctx, sessionKeyPrefix+token, payload, c.cfg.CookieMaxAge); err != nil {
		if c.degrade {
			c.logger.Warn("session store unavailable, degrading to self-contained token", "error", err)
			return c.fallback.Encode(ctx, s)
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, nil
}

func (c *storeCodec) Decode(ctx context.Context, token string) *Session {
	if token == "" {
		return nil
	}
	// Tokens minted during a degraded period are JWTs; opaque ids never
	// contain dots.
	if strings.Contains(token, ".") {
		if c.degrade {
			return c.fallback.Decode(ctx, token)
		}
		return nil
	}
	payload, err := c.cache.Get(ctx, sessionKeyPrefix+token)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.Warn("session store lookup failed", "error", err)
		}
		return nil
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil
	}
	return &s
}

func (c *storeCodec) Destroy(ctx context.Context, token string) error {
	if token == "" || strings.Contains(token, ".") {
		return nil
	}
	return c.cache.Delete(ctx, sessionKeyPrefix+token)
}

var _ Codec = (*storeCodec)(nil)
