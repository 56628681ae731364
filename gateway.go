package tollgate

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kmweir/tollgate/internal/attempts"
	"github.com/kmweir/tollgate/internal/audit"
	"github.com/kmweir/tollgate/internal/kv"
	"github.com/kmweir/tollgate/password"
	"github.com/kmweir/tollgate/session"
	"github.com/kmweir/tollgate/token"
)

// Gateway is the authentication facade. Build one with [New] and share it;
// all methods are safe for concurrent use.
type Gateway struct {
	config    Config
	directory UserDirectory
	store     kv.Store
	attempts  *attempts.Tracker
	sessions  *session.Registry
	blacklist *session.Blacklist
	tokens    *token.Manager
	passwords *password.Hasher
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Close stops the background sweep and drains the audit dispatcher.
// The gateway rejects new operations afterwards.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		close(g.stop)
		g.wg.Wait()
		g.audit.Close()
	})
}

// Config returns a copy of the effective configuration.
func (g *Gateway) Config() Config {
	return cloneConfig(g.config)
}

// Realm returns the configured challenge realm.
func (g *Gateway) Realm() string {
	return g.config.Realm
}

// MetricsSnapshot copies the current counter values.
func (g *Gateway) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return g.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (g *Gateway) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.audit.Dropped()
}

func (g *Gateway) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

// infraError wraps backend faults so callers can distinguish an outage from
// a bad credential.
func infraError(err error) error {
	return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
}

func roleAllowed(role string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}
