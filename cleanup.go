package tollgate

import (
	"context"
	"strconv"
	"time"

	"github.com/kmweir/tollgate/internal/audit"
	"github.com/kmweir/tollgate/internal/kv"
)

// SweepReport summarizes one garbage-collection pass.
type SweepReport struct {
	SessionsPurged  int
	BlacklistPurged int
}

// Sweep removes expired blacklist entries and inactive sessions past the
// retention period. Active sessions and unexpired entries are never
// touched. The background loop calls this on a timer; tests and operators
// can call it directly.
func (g *Gateway) Sweep(ctx context.Context) (SweepReport, error) {
	if g.closed.Load() {
		return SweepReport{}, ErrGatewayClosed
	}

	var report SweepReport

	purged, err := g.blacklist.Sweep(ctx)
	report.BlacklistPurged = purged
	g.metrics.Add(MetricSweepBlacklistPurged, uint64(purged))
	if err != nil {
		return report, infraError(err)
	}

	purged, err = g.sessions.SweepInactive(ctx, g.config.Session.InactiveRetention)
	report.SessionsPurged = purged
	g.metrics.Add(MetricSweepSessionsPurged, uint64(purged))
	if err != nil {
		return report, infraError(err)
	}

	// Redis expires keys server-side; the memory backend only reclaims
	// TTL'd entries (attempt records) when swept.
	if mem, ok := g.store.(*kv.Memory); ok {
		mem.Sweep(ctx)
	}

	g.emitAudit(ctx, audit.Event{
		EventType: AuditCleanupCompleted,
		Success:   true,
		Metadata: map[string]string{
			"sessions_purged":  strconv.Itoa(report.SessionsPurged),
			"blacklist_purged": strconv.Itoa(report.BlacklistPurged),
		},
	})
	return report, nil
}

// startSweepLoop launches the timer-driven sweep. Interval 0 disables it.
func (g *Gateway) startSweepLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := g.Sweep(context.Background()); err != nil {
					g.logger.Warn("cleanup sweep failed", "error", err)
				}
			case <-g.stop:
				return
			}
		}
	}()
}
