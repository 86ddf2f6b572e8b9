package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"oidcgate/internal/config"
)

const signingPurpose = "oidcgate/session-signing"

// encryptionPurpose reserves a second derived key so adding payload
// encryption later never reuses the signing key.
const encryptionPurpose = "oidcgate/session-encryption"

// statelessCodec signs the whole session record into the cookie. The
// absolute window is embedded in the JWT envelope, so a stale token fails
// signature-level verification rather than relying on application checks.
type statelessCodec struct {
	signingKey []byte
	absolute   time.Duration
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Session *Session `json:"sess"`
}

func newStatelessCodec(cfg config.SessionConfig) (*statelessCodec, error) {
	key, err := deriveKey(cfg.CookieSecret, signingPurpose)
	if err != nil {
		return nil, err
	}
	// Derive the encryption key too so a bad secret fails at startup, not
	// when encryption is first enabled.
	if _, err := deriveKey(cfg.CookieSecret, encryptionPurpose); err != nil {
		return nil, err
	}
	return &statelessCodec{
		signingKey: key,
		absolute:   cfg.AbsoluteDuration,
	}, nil
}

func (c *statelessCodec) Encode(_ context.Context, s *Session) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.IssuedAt.Add(c.absolute)),
		},
		Session: s,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

func (c *statelessCodec) Decode(_ context.Context, token string) *Session {
	if token == "" {
		return nil
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Session == nil {
		return nil
	}
	return claims.Session
}

// Update re-signs the whole record; self-contained tokens have no
// server-side identity to preserve.
func (c *statelessCodec) Update(ctx context.Context, _ string, s *Session) (string, error) {
	return c.Encode(ctx, s)
}

// Destroy is a no-op for self-contained tokens: there is nothing
// server-side to delete, the cookie removal is the destruction.
func (c *statelessCodec) Destroy(context.Context, string) error { return nil }

var _ Codec = (*statelessCodec)(nil)

// ErrStoreUnavailable distinguishes a down store from a miss, so callers
// can answer 503 instead of treating the failure as bad credentials.
var ErrStoreUnavailable = errors.New("session store unavailable")
