package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidcgate/internal/config"
)

func TestMemoryGetSetDelete(t *testing.T) {
	m := NewMemory()
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory()
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("abc"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'X'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(config.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}
