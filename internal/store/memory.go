package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and throwaway deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) Query(_ context.Context, filter Filter, limit int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*User
	for _, u := range m.users {
		if matchesFilter(u, filter) {
			cp := *u
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cp := *u
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.users[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id string, p Partial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range p {
		switch field {
		case "email", "username", "name", "role":
			if s, ok := value.(string); ok {
				SetField(u, field, s)
			}
		case "scopes":
			if scopes, ok := value.([]string); ok {
				u.Scopes = scopes
			}
		case "identity":
			if meta, ok := value.(IdentityMeta); ok {
				u.Identity = meta
			}
		case "last_login_at":
			if t, ok := value.(time.Time); ok {
				u.LastLoginAt = t
			}
		}
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func matchesFilter(u *User, filter Filter) bool {
	for field, want := range filter {
		if FieldValue(u, field) != want {
			return false
		}
	}
	return true
}
