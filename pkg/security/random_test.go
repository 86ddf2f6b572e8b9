package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	tok, err := RandomToken(32)
	require.NoError(t, err)
	// 32 bytes of entropy come out as 43 base64url characters.
	assert.Len(t, tok, 43)
	assert.False(t, strings.ContainsAny(tok, "+/="))

	other, err := RandomToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}
