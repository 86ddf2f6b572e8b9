package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"oidcgate/pkg/security"
)

// pkceVerifierBytes is the CSPRNG input size for the verifier; 48 bytes
// encode to 64 base64url characters, well inside RFC 7636's 43..128 range.
const pkceVerifierBytes = 48

// PKCE is a proof-key pair for one authorization request. Only the S256
// challenge method is supported; "plain" defeats the point of PKCE.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh verifier and its S256 challenge.
func NewPKCE() (*PKCE, error) {
	verifier, err := security.RandomToken(pkceVerifierBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &PKCE{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
	}, nil
}

// ChallengeS256 computes the S256 code challenge for a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
