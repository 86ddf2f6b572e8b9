package oidc

import "errors"

// Sentinel errors for every failure class the engine distinguishes.
// Handlers branch on these with errors.Is; response bodies carry the Code
// that Classify maps them to.
var (
	ErrConfigInvalid    = errors.New("configuration invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenMissing     = errors.New("token missing")
	ErrIssuerMismatch   = errors.New("issuer mismatch")
	ErrAudienceMismatch = errors.New("audience mismatch")
	ErrNonceMismatch    = errors.New("nonce mismatch")
	ErrStateMismatch    = errors.New("state mismatch")
	ErrStateExpired     = errors.New("state expired")
	ErrProviderError    = errors.New("provider error")
	ErrNetworkError     = errors.New("network error")
	ErrDiscoveryFailed  = errors.New("discovery failed")
)

// Code is the wire identifier for an error class, carried in JSON error
// responses and HTML error pages.
type Code string

const (
	CodeConfigInvalid    Code = "config_invalid"
	CodeTokenExpired     Code = "token_expired"
	CodeTokenInvalid     Code = "token_invalid"
	CodeTokenMissing     Code = "token_missing"
	CodeIssuerMismatch   Code = "issuer_mismatch"
	CodeAudienceMismatch Code = "audience_mismatch"
	CodeNonceMismatch    Code = "nonce_mismatch"
	CodeStateMismatch    Code = "state_mismatch"
	CodeStateExpired     Code = "state_expired"
	CodeProviderError    Code = "provider_error"
	CodeNetworkError     Code = "network_error"
	CodeDiscoveryFailed  Code = "discovery_failed"
)

// classification order matters: an expired token also fails other checks,
// and the most specific class should win.
var classifications = []struct {
	err  error
	code Code
}{
	{ErrStateExpired, CodeStateExpired},
	{ErrStateMismatch, CodeStateMismatch},
	{ErrNonceMismatch, CodeNonceMismatch},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrIssuerMismatch, CodeIssuerMismatch},
	{ErrAudienceMismatch, CodeAudienceMismatch},
	{ErrTokenMissing, CodeTokenMissing},
	{ErrDiscoveryFailed, CodeDiscoveryFailed},
	{ErrNetworkError, CodeNetworkError},
	{ErrProviderError, CodeProviderError},
	{ErrConfigInvalid, CodeConfigInvalid},
	{ErrTokenInvalid, CodeTokenInvalid},
}

// Classify maps err to the code of the first matching class. Anything
// unrecognized is reported as token_invalid, the catch-all for malformed
// input.
func Classify(err error) Code {
	for _, c := range classifications {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeTokenInvalid
}
