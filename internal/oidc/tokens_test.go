package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTokenResponse() *TokenResponse {
	return &TokenResponse{
		AccessToken:  "at",
		IDToken:      "idt",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}
}

func TestValidateTokenResponse(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TokenResponse)
		offline bool
		want    Code
	}{
		{"valid", func(*TokenResponse) {}, false, ""},
		{"lowercase bearer accepted", func(tr *TokenResponse) { tr.TokenType = "bearer" }, false, ""},
		{"missing access token", func(tr *TokenResponse) { tr.AccessToken = "" }, false, CodeTokenMissing},
		{"missing id token", func(tr *TokenResponse) { tr.IDToken = "" }, false, CodeTokenMissing},
		{"wrong token type", func(tr *TokenResponse) { tr.TokenType = "mac" }, false, CodeTokenInvalid},
		{"missing expires_in tolerated", func(tr *TokenResponse) { tr.ExpiresIn = 0 }, false, ""},
		{"offline without refresh token", func(tr *TokenResponse) { tr.RefreshToken = "" }, true, CodeTokenMissing},
		{"no refresh token without offline", func(tr *TokenResponse) { tr.RefreshToken = "" }, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTokenResponse()
			tt.mutate(tr)
			err := ValidateTokenResponse(tr, tt.offline)
			if tt.want == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.want, Classify(err))
			}
		})
	}
}
