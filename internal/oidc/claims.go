package oidc

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Claims is a decoded ID token payload.
type Claims map[string]any

// String returns the named claim as a string, "" when absent or not a
// string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// StringSlice returns the named claim as a string slice. A bare string
// claim (the common single-audience case) is returned as a one-element
// slice.
func (c Claims) StringSlice(name string) []string {
	switch v := c[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Time returns the named NumericDate claim, zero when absent or malformed.
func (c Claims) Time(name string) time.Time {
	switch v := c[name].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	default:
		return time.Time{}
	}
}

// Expect carries the per-flow inputs for ID token validation.
type Expect struct {
	// Issuer the token must have been minted by.
	Issuer string
	// ClientID must be among the audiences.
	ClientID string
	// Audiences are additional acceptable aud values beyond the client id.
	Audiences []string
	// Nonce issued at login; empty means no nonce was issued and the check
	// is skipped.
	Nonce string
	// ClockSkew tolerated on exp/iat/nbf comparisons.
	ClockSkew time.Duration
	// MaxTokenAge rejects tokens issued longer ago; 0 disables the check.
	MaxTokenAge time.Duration
	// Now defaults to time.Now when zero.
	Now time.Time
}

// ValidateIDToken checks claims against the OIDC core ID token validation
// rules. Every check runs even after a failure so the returned error (a
// multierror) reports all violations; callers use Classify on it to pick a
// user-facing code. A nil return means the token is valid.
func ValidateIDToken(claims Claims, expect Expect) error {
	now := expect.Now
	if now.IsZero() {
		now = time.Now()
	}

	var result *multierror.Error

	if iss := claims.String("iss"); iss != expect.Issuer {
		result = multierror.Append(result, fmt.Errorf("iss %q does not match %q: %w", iss, expect.Issuer, ErrIssuerMismatch))
	}

	audiences := claims.StringSlice("aud")
	accepted := append([]string{expect.ClientID}, expect.Audiences...)
	if !containsAny(audiences, accepted) {
		result = multierror.Append(result, fmt.Errorf("aud %v does not include the client id: %w", audiences, ErrAudienceMismatch))
	}

	exp := claims.Time("exp")
	switch {
	case exp.IsZero():
		result = multierror.Append(result, fmt.Errorf("exp claim is missing: %w", ErrTokenInvalid))
	case now.After(exp.Add(expect.ClockSkew)):
		result = multierror.Append(result, fmt.Errorf("token expired at %s: %w", exp.Format(time.RFC3339), ErrTokenExpired))
	}

	if iat := claims.Time("iat"); !iat.IsZero() {
		if iat.After(now.Add(expect.ClockSkew)) {
			result = multierror.Append(result, fmt.Errorf("iat is in the future: %w", ErrTokenInvalid))
		}
		if expect.MaxTokenAge > 0 && now.Sub(iat) > expect.MaxTokenAge+expect.ClockSkew {
			result = multierror.Append(result, fmt.Errorf("token older than max age: %w", ErrTokenExpired))
		}
	}

	if nbf := claims.Time("nbf"); !nbf.IsZero() && nbf.After(now.Add(expect.ClockSkew)) {
		result = multierror.Append(result, fmt.Errorf("token not yet valid: %w", ErrTokenInvalid))
	}

	// The nonce is a replay guard; it is only enforced when one was issued
	// at login.
	if expect.Nonce != "" {
		if nonce := claims.String("nonce"); nonce != expect.Nonce {
			result = multierror.Append(result, fmt.Errorf("nonce does not match the one issued at login: %w", ErrNonceMismatch))
		}
	}

	// With multiple audiences the authorized party must be this client.
	if len(audiences) > 1 {
		if azp := claims.String("azp"); azp != "" && azp != expect.ClientID {
			result = multierror.Append(result, fmt.Errorf("azp %q is not the client id: %w", azp, ErrAudienceMismatch))
		}
	}

	if claims.String("sub") == "" {
		result = multierror.Append(result, fmt.Errorf("sub claim is missing: %w", ErrTokenInvalid))
	}

	return result.ErrorOrNil()
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n && h != "" {
				return true
			}
		}
	}
	return false
}
