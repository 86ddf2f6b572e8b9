package oidc

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/oauth2"
)

// TokenResponse is the token endpoint's reply. It is consumed once to
// build a session and then discarded; nothing in it is persisted except
// the refresh token.
type TokenResponse struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// FromOAuth2Token converts an exchanged oauth2 token, pulling the id_token
// out of the extra fields.
func FromOAuth2Token(t *oauth2.Token) *TokenResponse {
	tr := &TokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if id, ok := t.Extra("id_token").(string); ok {
		tr.IDToken = id
	}
	if ei, ok := t.Extra("expires_in").(float64); ok {
		tr.ExpiresIn = int64(ei)
	} else if !t.Expiry.IsZero() {
		tr.ExpiresIn = int64(time.Until(t.Expiry).Seconds())
	}
	return tr
}

// ValidateTokenResponse checks the structural requirements on a token
// endpoint reply. offlineRequested asserts a refresh token was part of the
// bargain (the offline_access scope was requested). Like ValidateIDToken,
// every violation is reported.
func ValidateTokenResponse(tr *TokenResponse, offlineRequested bool) error {
	var result *multierror.Error

	if tr.AccessToken == "" {
		result = multierror.Append(result, fmt.Errorf("access_token is missing: %w", ErrTokenMissing))
	}
	if tr.IDToken == "" {
		result = multierror.Append(result, fmt.Errorf("id_token is missing: %w", ErrTokenMissing))
	}
	if !strings.EqualFold(tr.TokenType, "bearer") {
		result = multierror.Append(result, fmt.Errorf("token_type %q is not bearer: %w", tr.TokenType, ErrTokenInvalid))
	}
	// expires_in is deliberately not required here: some providers omit it
	// and expiry resolution falls back to the ID token's exp claim.
	if offlineRequested && tr.RefreshToken == "" {
		result = multierror.Append(result, fmt.Errorf("refresh_token missing though offline access was requested: %w", ErrTokenMissing))
	}

	return result.ErrorOrNil()
}
