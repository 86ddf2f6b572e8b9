package oidc

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validClaims() Claims {
	return Claims{
		"iss":   "https://idp.example.com",
		"sub":   "subject-1",
		"aud":   "client-123",
		"exp":   float64(testNow.Add(time.Hour).Unix()),
		"iat":   float64(testNow.Add(-time.Minute).Unix()),
		"nonce": "nonce-abc",
	}
}

func validExpect() Expect {
	return Expect{
		Issuer:    "https://idp.example.com",
		ClientID:  "client-123",
		Nonce:     "nonce-abc",
		ClockSkew: time.Minute,
		Now:       testNow,
	}
}

func TestValidateIDTokenValid(t *testing.T) {
	assert.NoError(t, ValidateIDToken(validClaims(), validExpect()))
}

func TestValidateIDTokenSingleViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(Claims)
		want   Code
	}{
		{"issuer mismatch", func(c Claims) { c["iss"] = "https://evil.example.com" }, CodeIssuerMismatch},
		{"audience mismatch", func(c Claims) { c["aud"] = "someone-else" }, CodeAudienceMismatch},
		{"expired", func(c Claims) { c["exp"] = float64(testNow.Add(-time.Hour).Unix()) }, CodeTokenExpired},
		{"missing exp", func(c Claims) { delete(c, "exp") }, CodeTokenInvalid},
		{"nonce mismatch", func(c Claims) { c["nonce"] = "other" }, CodeNonceMismatch},
		{"missing nonce", func(c Claims) { delete(c, "nonce") }, CodeNonceMismatch},
		{"missing sub", func(c Claims) { delete(c, "sub") }, CodeTokenInvalid},
		{"iat in the future", func(c Claims) { c["iat"] = float64(testNow.Add(time.Hour).Unix()) }, CodeTokenInvalid},
		{"nbf in the future", func(c Claims) { c["nbf"] = float64(testNow.Add(time.Hour).Unix()) }, CodeTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)
			err := ValidateIDToken(claims, validExpect())
			require.Error(t, err)
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestValidateIDTokenReportsAllViolations(t *testing.T) {
	claims := validClaims()
	claims["iss"] = "https://evil.example.com"
	claims["aud"] = "someone-else"
	claims["exp"] = float64(testNow.Add(-time.Hour).Unix())
	claims["nonce"] = "other"

	err := ValidateIDToken(claims, validExpect())
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)
}

func TestValidateIDTokenClockSkewTolerance(t *testing.T) {
	claims := validClaims()
	// Expired 30s ago but inside the one-minute skew.
	claims["exp"] = float64(testNow.Add(-30 * time.Second).Unix())
	assert.NoError(t, ValidateIDToken(claims, validExpect()))
}

func TestValidateIDTokenExtraAudiences(t *testing.T) {
	claims := validClaims()
	claims["aud"] = []any{"api://extra", "client-123"}
	claims["azp"] = "client-123"

	expect := validExpect()
	expect.Audiences = []string{"api://extra"}
	assert.NoError(t, ValidateIDToken(claims, expect))
}

func TestValidateIDTokenAzpMismatch(t *testing.T) {
	claims := validClaims()
	claims["aud"] = []any{"client-123", "api://extra"}
	claims["azp"] = "api://extra"

	err := ValidateIDToken(claims, validExpect())
	require.Error(t, err)
	assert.Equal(t, CodeAudienceMismatch, Classify(err))
}

func TestValidateIDTokenMaxTokenAge(t *testing.T) {
	claims := validClaims()
	claims["iat"] = float64(testNow.Add(-2 * time.Hour).Unix())

	expect := validExpect()
	expect.MaxTokenAge = time.Hour
	err := ValidateIDToken(claims, expect)
	require.Error(t, err)
	assert.Equal(t, CodeTokenExpired, Classify(err))
}

func TestValidateIDTokenNoNonceIssued(t *testing.T) {
	claims := validClaims()
	delete(claims, "nonce")

	expect := validExpect()
	expect.Nonce = ""
	assert.NoError(t, ValidateIDToken(claims, expect))
}

func TestClaimsHelpers(t *testing.T) {
	c := Claims{
		"s":     "one",
		"multi": []any{"a", "b", 3},
		"ts":    float64(1700000000),
	}
	assert.Equal(t, "one", c.String("s"))
	assert.Empty(t, c.String("absent"))
	assert.Equal(t, []string{"one"}, c.StringSlice("s"))
	assert.Equal(t, []string{"a", "b"}, c.StringSlice("multi"))
	assert.Equal(t, time.Unix(1700000000, 0), c.Time("ts"))
	assert.True(t, c.Time("absent").IsZero())
}
