package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kmweir/tollgate/internal/kv"
)

// Entry is one revoked token ID. Entries are stored with a TTL matching the
// token's own expiry; once the token is dead on its own, the entry is
// useless.
type Entry struct {
	TokenID   string    `json:"token_id"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason,omitempty"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Blacklist records revoked token IDs under <prefix>:bl:<tokenID>.
type Blacklist struct {
	store     kv.Store
	keyPrefix string
	now       func() time.Time
}

// NewBlacklist builds a blacklist over store.
func NewBlacklist(store kv.Store, keyPrefix string, now func() time.Time) *Blacklist {
	if now == nil {
		now = time.Now
	}
	return &Blacklist{store: store, keyPrefix: keyPrefix, now: now}
}

func (b *Blacklist) key(tokenID string) string {
	return fmt.Sprintf("%s:bl:%s", b.keyPrefix, tokenID)
}

// Add revokes a token ID. Tokens already past expiry are skipped; there is
// nothing left to revoke.
func (b *Blacklist) Add(ctx context.Context, tokenID, userID string, expiresAt time.Time, reason string) error {
	now := b.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	entry := Entry{
		TokenID:   tokenID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
		RevokedAt: now,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, b.key(tokenID), raw, ttl)
}

// Contains reports whether tokenID is revoked. The stored expiry is checked
// on read as well as via the TTL: a stale entry must read as absent even
// before the backend reclaims it, and a backend without active expiry (the
// memory store between sweeps) still answers correctly.
func (b *Blacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	raw, err := b.store.Get(ctx, b.key(tokenID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, nil
	}
	if b.now().After(entry.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

// Sweep removes entries whose token has expired and returns the count.
func (b *Blacklist) Sweep(ctx context.Context) (int, error) {
	keys, err := b.store.Keys(ctx, b.keyPrefix+":bl:")
	if err != nil {
		return 0, err
	}
	now := b.now()
	removed := 0
	for _, key := range keys {
		raw, err := b.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err == nil && entry.ExpiresAt.After(now) {
			continue
		}
		if err := b.store.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
