// Package attempts tracks Basic-auth login attempts per identifier:IP pair
// and computes sliding-window lockouts from them.
package attempts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kmweir/tollgate/internal/kv"
)

// Record is a single login attempt. Successful attempts are recorded too;
// they do not clear earlier failures.
type Record struct {
	Identifier string    `json:"identifier"`
	IP         string    `json:"ip"`
	Timestamp  time.Time `json:"ts"`
	Success    bool      `json:"success"`
}

// Tracker stores attempt records in a kv.Store, one JSON-encoded slice per
// identifier:IP key. Records older than the window are pruned lazily on
// every read and write; the key itself carries a TTL of one window so idle
// pairs vanish on their own.
type Tracker struct {
	store       kv.Store
	keyPrefix   string
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// New builds a tracker. maxAttempts failures inside window lock the pair.
func New(store kv.Store, keyPrefix string, maxAttempts int, window time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:       store,
		keyPrefix:   keyPrefix,
		maxAttempts: maxAttempts,
		window:      window,
		now:         now,
	}
}

func (t *Tracker) key(identifier, ip string) string {
	return fmt.Sprintf("%s:att:%s:%s", t.keyPrefix, identifier, ip)
}

func (t *Tracker) load(ctx context.Context, identifier, ip string) ([]Record, error) {
	raw, err := t.store.Get(ctx, t.key(identifier, ip))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		// A corrupt record set is discarded rather than wedging the pair.
		return nil, nil
	}
	return t.prune(records), nil
}

func (t *Tracker) prune(records []Record) []Record {
	cutoff := t.now().Add(-t.window)
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Append records one attempt. The window TTL restarts on every write.
func (t *Tracker) Append(ctx context.Context, identifier, ip string, success bool) error {
	records, err := t.load(ctx, identifier, ip)
	if err != nil {
		return err
	}

	records = append(records, Record{
		Identifier: identifier,
		IP:         ip,
		Timestamp:  t.now(),
		Success:    success,
	})

	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return t.store.Set(ctx, t.key(identifier, ip), raw, t.window)
}

// Check reports whether the pair is locked out. When locked, retryAt is the
// instant the newest failure ages out of the window.
func (t *Tracker) Check(ctx context.Context, identifier, ip string) (locked bool, retryAt time.Time, err error) {
	records, err := t.load(ctx, identifier, ip)
	if err != nil {
		return false, time.Time{}, err
	}

	failures := 0
	var latest time.Time
	for _, r := range records {
		if r.Success {
			continue
		}
		failures++
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	if failures < t.maxAttempts {
		return false, time.Time{}, nil
	}
	return true, latest.Add(t.window), nil
}

// Remaining reports how many failures the pair has left before lockout.
func (t *Tracker) Remaining(ctx context.Context, identifier, ip string) (int, error) {
	records, err := t.load(ctx, identifier, ip)
	if err != nil {
		return 0, err
	}

	failures := 0
	for _, r := range records {
		if !r.Success {
			failures++
		}
	}
	remaining := t.maxAttempts - failures
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
