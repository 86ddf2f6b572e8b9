package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rolling := time.Hour
	absolute := 24 * time.Hour

	tests := []struct {
		name         string
		issuedAt     time.Time
		lastActivity time.Time
		want         bool
	}{
		{"inside both windows", now.Add(-time.Hour), now.Add(-time.Minute), true},
		{"rolling window lapsed", now.Add(-2 * time.Hour), now.Add(-2 * time.Hour), false},
		{"absolute window lapsed", now.Add(-25 * time.Hour), now.Add(-time.Minute), false},
		{"at the rolling edge", now.Add(-time.Hour), now.Add(-rolling), true},
		{"just past the rolling edge", now.Add(-time.Hour), now.Add(-rolling - time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{IssuedAt: tt.issuedAt, LastActivity: tt.lastActivity}
			assert.Equal(t, tt.want, s.Fresh(rolling, absolute, now))
		})
	}
}

func TestSessionFreshZeroWindowsDisableChecks(t *testing.T) {
	now := time.Now()
	s := &Session{IssuedAt: now.Add(-1000 * time.Hour), LastActivity: now.Add(-1000 * time.Hour)}
	assert.True(t, s.Fresh(0, 0, now))
}

func TestLoginStateExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&LoginState{Expires: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&LoginState{Expires: now.Add(-time.Minute)}).Expired(now))
}
