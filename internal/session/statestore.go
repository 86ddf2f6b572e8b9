package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oidcgate/internal/cache"
	"oidcgate/pkg/security"
)

// StateTTL is the hard lifetime of a login state record; the whole
// redirect round trip has to finish inside it.
const StateTTL = 10 * time.Minute

const stateKeyPrefix = "login:"

const stateHandleBytes = 32

// ErrStateNotFound is returned by Take when the handle is unknown,
// expired, or already consumed.
var ErrStateNotFound = errors.New("login state not found")

// StateStore keeps LoginState records between the login redirect and the
// callback. The browser only ever holds an opaque handle; the record
// itself stays server-side so a replayed callback cannot resurrect it.
type StateStore struct {
	cache cache.Cache
}

// NewStateStore wraps the cache for login state keeping.
func NewStateStore(c cache.Cache) *StateStore {
	return &StateStore{cache: c}
}

// Put stores the record and returns the handle to put in the state
// cookie.
func (s *StateStore) Put(ctx context.Context, ls *LoginState) (string, error) {
	handle, err := security.RandomToken(stateHandleBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate state handle: %w", err)
	}
	payload, err := json.Marshal(ls)
	if err != nil {
		return "", fmt.Errorf("failed to marshal login state: %w", err)
	}
	if err := s.cache.Set(ctx, stateKeyPrefix+handle, payload, StateTTL); err != nil {
		return "", fmt.Errorf("failed to store login state: %w", err)
	}
	return handle, nil
}

// Take loads and immediately deletes the record: login state is single-use
// regardless of how the callback turns out, so the delete happens before
// the caller sees the record.
func (s *StateStore) Take(ctx context.Context, handle string) (*LoginState, error) {
	if handle == "" {
		return nil, ErrStateNotFound
	}
	payload, err := s.cache.Get(ctx, stateKeyPrefix+handle)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	// Deleted before unmarshalling so even a corrupt record burns the
	// handle.
	if err := s.cache.Delete(ctx, stateKeyPrefix+handle); err != nil {
		return nil, err
	}
	var ls LoginState
	if err := json.Unmarshal(payload, &ls); err != nil {
		return nil, fmt.Errorf("corrupt login state: %w", err)
	}
	return &ls, nil
}
