package tollgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweep_PurgesExpiredBlacklistEntries(t *testing.T) {
	gw, _, clock := newTestGateway(t, testConfig())
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", nil)
	if err := gw.RevokeToken(ctx, pair.AccessToken, "logout"); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	// Entry is live while the token is.
	report, err := gw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.BlacklistPurged != 0 {
		t.Fatalf("purged %d live entries", report.BlacklistPurged)
	}

	clock.Advance(16 * time.Minute) // past the access token's expiry

	// The memory backend may have expired the key on its own; either way
	// nothing revoked-and-live remains after the sweep.
	if _, err := gw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := gw.AuthenticateToken(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired after sweep, got %v", err)
	}
}

func TestSweep_PurgesStaleInactiveSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Session.InactiveRetention = 24 * time.Hour
	gw, _, clock := newTestGateway(t, cfg)
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", nil)
	if err := gw.RevokeSession(ctx, "u1", pair.SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}

	report, err := gw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.SessionsPurged != 0 {
		t.Fatalf("purged %d sessions inside retention", report.SessionsPurged)
	}

	clock.Advance(25 * time.Hour)

	report, err = gw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.SessionsPurged != 1 {
		t.Fatalf("purged = %d, want 1", report.SessionsPurged)
	}
}

func TestSweep_NeverTouchesActiveSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Session.InactiveRetention = time.Hour
	gw, _, clock := newTestGateway(t, cfg)
	ctx := context.Background()

	mustIssue(t, gw, "u1", nil)
	clock.Advance(48 * time.Hour)

	report, err := gw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.SessionsPurged != 0 {
		t.Fatalf("sweep removed %d active sessions", report.SessionsPurged)
	}

	sessions, err := gw.ActiveSessions(ctx, "u1")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("active sessions = %d err=%v, want 1", len(sessions), err)
	}
}
