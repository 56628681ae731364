// Package session tracks issued token sessions and revoked token IDs on
// top of a kv.Store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kmweir/tollgate/internal/kv"
)

// ErrNotFound is returned when a session ID does not resolve for the user.
var ErrNotFound = errors.New("session: not found")

// Session is one issued access/refresh pair's server-side record. A revoked
// session stays in the store (Active=false) until the sweep removes it, so
// late lookups distinguish "revoked" from "never existed".
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Active     bool      `json:"active"`
}

// Registry stores sessions under <prefix>:sess:<userID>:<sessionID>. Every
// token claim set carries the user ID, so lookups always have both parts of
// the key.
type Registry struct {
	store       kv.Store
	keyPrefix   string
	maxSessions int
	now         func() time.Time
}

// NewRegistry builds a registry. maxSessions 0 means unlimited.
func NewRegistry(store kv.Store, keyPrefix string, maxSessions int, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		store:       store,
		keyPrefix:   keyPrefix,
		maxSessions: maxSessions,
		now:         now,
	}
}

func (r *Registry) key(userID, sessionID string) string {
	return fmt.Sprintf("%s:sess:%s:%s", r.keyPrefix, userID, sessionID)
}

func (r *Registry) userPrefix(userID string) string {
	return fmt.Sprintf("%s:sess:%s:", r.keyPrefix, userID)
}

func (r *Registry) save(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.key(s.UserID, s.ID), raw, 0)
}

// Create mints a new session, evicting the user's oldest sessions first if
// the cap is reached. Eviction marks the record inactive rather than
// deleting it; the evicted pair's tokens then fail the session check on
// their next use, and the record lingers until the retention sweep.
func (r *Registry) Create(ctx context.Context, userID, ip, userAgent string) (Session, []string, error) {
	var evicted []string
	if r.maxSessions > 0 {
		existing, err := r.list(ctx, userID)
		if err != nil {
			return Session{}, nil, err
		}
		active := existing[:0]
		for _, s := range existing {
			if s.Active {
				active = append(active, s)
			}
		}
		sort.Slice(active, func(i, j int) bool {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		})
		for len(active) >= r.maxSessions {
			victim := active[0]
			active = active[1:]
			victim.Active = false
			victim.LastUsedAt = r.now()
			if err := r.save(ctx, victim); err != nil {
				return Session{}, nil, err
			}
			evicted = append(evicted, victim.ID)
		}
	}

	now := r.now()
	s := Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		CreatedAt:  now,
		LastUsedAt: now,
		IP:         ip,
		UserAgent:  userAgent,
		Active:     true,
	}
	if err := r.save(ctx, s); err != nil {
		return Session{}, nil, err
	}
	return s, evicted, nil
}

// Get returns the session, revoked or not.
func (r *Registry) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	raw, err := r.store.Get(ctx, r.key(userID, sessionID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Touch updates LastUsedAt. Missing or revoked sessions are a silent no-op:
// a valid token whose session was bulk-revoked still authenticates, it just
// leaves no activity trace.
func (r *Registry) Touch(ctx context.Context, userID, sessionID string) error {
	s, err := r.Get(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !s.Active {
		return nil
	}
	s.LastUsedAt = r.now()
	return r.save(ctx, s)
}

// Revoke marks one session inactive. Revoking an unknown or already revoked
// session is not an error.
func (r *Registry) Revoke(ctx context.Context, userID, sessionID string) error {
	s, err := r.Get(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !s.Active {
		return nil
	}
	s.Active = false
	s.LastUsedAt = r.now()
	return r.save(ctx, s)
}

// RevokeAll marks every active session for the user inactive and returns
// how many it touched.
func (r *Registry) RevokeAll(ctx context.Context, userID string) (int, error) {
	sessions, err := r.list(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked := 0
	now := r.now()
	for _, s := range sessions {
		if !s.Active {
			continue
		}
		s.Active = false
		s.LastUsedAt = now
		if err := r.save(ctx, s); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// ActiveForUser lists the user's active sessions, oldest first.
func (r *Registry) ActiveForUser(ctx context.Context, userID string) ([]Session, error) {
	sessions, err := r.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := sessions[:0]
	for _, s := range sessions {
		if s.Active {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func (r *Registry) list(ctx context.Context, userID string) ([]Session, error) {
	keys, err := r.store.Keys(ctx, r.userPrefix(userID))
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(keys))
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// SweepInactive removes sessions that have been idle longer than retention.
// Active sessions are never removed here regardless of age.
func (r *Registry) SweepInactive(ctx context.Context, retention time.Duration) (int, error) {
	keys, err := r.store.Keys(ctx, r.keyPrefix+":sess:")
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-retention)
	removed := 0
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s.Active || s.LastUsedAt.After(cutoff) {
			continue
		}
		if err := r.store.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
