// Package session defines the browser session record, the transient login
// state record, and the codecs that put them on and off the wire.
package session

import "time"

// User is the minimal identity projection carried by the session. The
// session deliberately never holds the access or ID token: cookie space is
// reserved for identity, not bearer credentials.
type User struct {
	ID     string         `json:"id"`
	Email  string         `json:"email,omitempty"`
	Name   string         `json:"name,omitempty"`
	Role   string         `json:"role,omitempty"`
	Scopes []string       `json:"scopes,omitempty"`
	Extras map[string]any `json:"extras,omitempty"`
}

// Session is the authenticated state carried by the browser. It is created
// at callback completion, mutated every request (rolling LastActivity, and
// ExpiresAt/RefreshToken after a refresh), and destroyed on logout,
// validation failure, or window expiry.
type Session struct {
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	User         User      `json:"user"`
	// IsVirtual marks a claims-only session with no backing user record.
	IsVirtual bool `json:"is_virtual,omitempty"`
}

// Fresh reports whether the session is inside both its rolling and
// absolute windows at the given instant.
func (s *Session) Fresh(rolling, absolute time.Duration, now time.Time) bool {
	if absolute > 0 && now.Sub(s.IssuedAt) > absolute {
		return false
	}
	if rolling > 0 && now.Sub(s.LastActivity) > rolling {
		return false
	}
	return true
}

// LoginState bridges the login redirect and the callback: the CSRF state,
// the replay nonce, the PKCE verifier and where to send the user after.
// It is single-use and never outlives its TTL.
type LoginState struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	ReturnTo     string    `json:"return_to,omitempty"`
	Expires      time.Time `json:"expires"`
}

// Expired reports whether the record's hard TTL has lapsed.
func (ls *LoginState) Expired(now time.Time) bool {
	return now.After(ls.Expires)
}
