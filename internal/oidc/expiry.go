package oidc

import "time"

// ExpirySource records which tier supplied an access token lifetime, for
// logging.
type ExpirySource string

const (
	SourceExpiresIn  ExpirySource = "expires_in"
	SourceIDTokenExp ExpirySource = "id_token_exp"
	SourceFallback   ExpirySource = "fallback"
)

// ResolveExpiry derives the access token lifetime from a token response.
// Some providers omit expires_in, so it falls back to the remaining
// lifetime of the ID token's exp claim, and finally to a configured
// constant.
func ResolveExpiry(tr *TokenResponse, claims Claims, fallback time.Duration) (time.Duration, ExpirySource) {
	if tr != nil && tr.ExpiresIn > 0 {
		return time.Duration(tr.ExpiresIn) * time.Second, SourceExpiresIn
	}
	if exp := claims.Time("exp"); !exp.IsZero() {
		if remaining := time.Until(exp); remaining > 0 {
			return remaining, SourceIDTokenExp
		}
	}
	return fallback, SourceFallback
}

// ShouldRefresh reports whether a session's access token is worth
// refreshing now: a refresh token is on hand, an expiry is recorded, and
// the time remaining is positive but under the threshold. A lapsed token
// is not eligible; the session must re-authenticate instead.
func ShouldRefresh(expiresAt time.Time, hasRefreshToken bool, threshold time.Duration, now time.Time) bool {
	if !hasRefreshToken || expiresAt.IsZero() {
		return false
	}
	remaining := expiresAt.Sub(now)
	return remaining > 0 && remaining < threshold
}
