// Package store persists provisioned user records. The engine only ever
// touches it through the Store interface: direct get by id, field-based
// query, insert, and partial update.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oidcgate/internal/config"
)

// ErrNotFound is returned by Get when no record has the given id.
var ErrNotFound = errors.New("user not found")

// User is the persisted projection of an authenticated identity.
type User struct {
	ID       string
	Email    string
	Username string
	Name     string
	Role     string
	Scopes   []string

	// Identity is the rebuilt identity-provider metadata block: issuer,
	// subject and the claim set from the last login.
	Identity IdentityMeta

	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdentityMeta records where a user record came from.
type IdentityMeta struct {
	Issuer  string         `json:"issuer"`
	Subject string         `json:"subject"`
	Claims  map[string]any `json:"claims,omitempty"`
}

// Filter matches users by exact field value. Recognized fields: email,
// username, name, role.
type Filter map[string]string

// Partial is a set of field updates applied without touching other
// columns. Recognized keys: email, username, name, role, scopes,
// identity, last_login_at.
type Partial map[string]any

// Store is the record-store collaborator boundary.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
	Query(ctx context.Context, filter Filter, limit int) ([]*User, error)
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, p Partial) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the store backend named by the configuration. The "none"
// type returns no store at all; sessions then carry claims-derived users
// that are never persisted.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "memory":
		return NewMemory(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// FieldValue reads a filterable field off a user by name.
func FieldValue(u *User, field string) string {
	switch field {
	case "email":
		return u.Email
	case "username":
		return u.Username
	case "name":
		return u.Name
	case "role":
		return u.Role
	default:
		return ""
	}
}

// SetField writes a filterable field by name; unknown fields are ignored.
func SetField(u *User, field, value string) {
	switch field {
	case "email":
		u.Email = value
	case "username":
		u.Username = value
	case "name":
		u.Name = value
	case "role":
		u.Role = value
	}
}
