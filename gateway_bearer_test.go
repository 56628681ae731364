package tollgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueTokens_PairSharesSession(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())

	pair := mustIssue(t, gw, "u1", nil)
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.SessionID == "" {
		t.Fatalf("incomplete pair: %+v", pair)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	auth, err := gw.AuthenticateToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateToken failed: %v", err)
	}
	if auth.SessionID != pair.SessionID {
		t.Fatalf("session mismatch: %s vs %s", auth.SessionID, pair.SessionID)
	}
}

func TestIssueTokens_UnknownOrInactiveUser(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())

	if _, err := gw.IssueTokens(context.Background(), "ghost", nil); !errors.Is(err, ErrUserUnavailable) {
		t.Fatalf("unknown user: expected ErrUserUnavailable, got %v", err)
	}
	if _, err := gw.IssueTokens(context.Background(), "u3", nil); !errors.Is(err, ErrUserUnavailable) {
		t.Fatalf("inactive user: expected ErrUserUnavailable, got %v", err)
	}
}

func TestAuthenticateToken_CarriesScopes(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())

	pair := mustIssue(t, gw, "u1", []string{"read", "write"})
	auth, err := gw.AuthenticateToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateToken failed: %v", err)
	}
	if len(auth.Scopes) != 2 || auth.Scopes[0] != "read" || auth.Scopes[1] != "write" {
		t.Fatalf("unexpected scopes: %v", auth.Scopes)
	}
	if auth.Principal.ID != "u1" {
		t.Fatalf("unexpected principal: %+v", auth.Principal)
	}
}

func TestAuthenticateToken_AcceptsBothTypes(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())

	pair := mustIssue(t, gw, "u1", nil)

	access, err := gw.AuthenticateToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("access token rejected: %v", err)
	}
	refresh, err := gw.AuthenticateToken(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token rejected: %v", err)
	}

	if access.TokenType != "access" || refresh.TokenType != "refresh" {
		t.Fatalf("token types = %q / %q", access.TokenType, refresh.TokenType)
	}
	if access.SessionID != refresh.SessionID {
		t.Fatalf("session split across the pair: %q vs %q", access.SessionID, refresh.SessionID)
	}
	if refresh.Principal.ID != "u1" {
		t.Fatalf("principal = %+v", refresh.Principal)
	}
}

func TestAuthenticateToken_Tampered(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())

	pair := mustIssue(t, gw, "u1", nil)
	tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
	if _, err := gw.AuthenticateToken(context.Background(), tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := gw.AuthenticateToken(context.Background(), "not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage token: expected ErrTokenInvalid, got %v", err)
	}
}

func TestAuthenticateToken_Expired(t *testing.T) {
	gw, _, clock := newTestGateway(t, testConfig())

	pair := mustIssue(t, gw, "u1", nil)
	clock.Advance(16 * time.Minute) // past the 15m access TTL plus leeway

	_, err := gw.AuthenticateToken(context.Background(), pair.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthenticateToken_UserDeactivatedAfterIssue(t *testing.T) {
	gw, dir, _ := newTestGateway(t, testConfig())

	pair := mustIssue(t, gw, "u1", nil)
	dir.add(UserRecord{ID: "u1", Email: "alice@example.com", Role: "user", Active: false})

	_, err := gw.AuthenticateToken(context.Background(), pair.AccessToken)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefresh_RotatesAndRevokesOldToken(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", []string{"read"})

	next, err := gw.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.SessionID == pair.SessionID {
		t.Fatal("rotation must mint a new session")
	}

	// Scopes survive rotation.
	auth, err := gw.AuthenticateToken(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}
	if len(auth.Scopes) != 1 || auth.Scopes[0] != "read" {
		t.Fatalf("scopes lost in rotation: %v", auth.Scopes)
	}

	// The consumed refresh token is dead.
	_, err = gw.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("reused refresh token: expected ErrTokenRevoked, got %v", err)
	}
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())

	pair := mustIssue(t, gw, "u1", nil)
	_, err := gw.Refresh(context.Background(), pair.AccessToken)
	if !errors.Is(err, ErrInvalidTokenType) {
		t.Fatalf("expected ErrInvalidTokenType, got %v", err)
	}
}

func TestRefresh_RevokedSession(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", nil)
	if err := gw.RevokeSession(ctx, "u1", pair.SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}

	_, err := gw.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestRevokeToken_BlocksBeforeSignatureCheck(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", nil)
	if err := gw.RevokeToken(ctx, pair.AccessToken, "logout"); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	_, err := gw.AuthenticateToken(ctx, pair.AccessToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	snap := gw.MetricsSnapshot()
	if snap.Counters[MetricTokenRevokedRejected] != 1 {
		t.Fatalf("token_revoked_rejected = %d, want 1", snap.Counters[MetricTokenRevokedRejected])
	}
}

func TestRevokeToken_LeavesSessionAlive(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", nil)
	if err := gw.RevokeToken(ctx, pair.AccessToken, "single token"); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	// The refresh token of the same session still works.
	if _, err := gw.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh after single-token revoke failed: %v", err)
	}
}

func TestSessionCap_EvictsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.Bearer.MaxActiveSessions = 2
	gw, _, clock := newTestGateway(t, cfg)
	ctx := context.Background()

	first := mustIssue(t, gw, "u1", nil)
	clock.Advance(time.Second)
	second := mustIssue(t, gw, "u1", nil)
	clock.Advance(time.Second)
	third := mustIssue(t, gw, "u1", nil)

	sessions, err := gw.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("active sessions = %d, want 2", len(sessions))
	}
	ids := map[string]bool{}
	for _, s := range sessions {
		ids[s.ID] = true
	}
	if ids[first.SessionID] {
		t.Fatal("oldest session should have been evicted")
	}
	if !ids[second.SessionID] || !ids[third.SessionID] {
		t.Fatal("newer sessions must survive")
	}

	// The evicted session no longer accepts refreshes.
	if _, err := gw.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("evicted session refresh: expected ErrInvalidSession, got %v", err)
	}
}

func TestRevokeAllSessions_TokensStillVerifyUntilExpiry(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())
	ctx := context.Background()

	a := mustIssue(t, gw, "u1", nil)
	b := mustIssue(t, gw, "u1", nil)

	revoked, err := gw.RevokeAllSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllSessions failed: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("revoked = %d, want 2", revoked)
	}

	// Access tokens stay cryptographically valid; the session touch is a
	// silent no-op.
	for _, pair := range []TokenPair{a, b} {
		if _, err := gw.AuthenticateToken(ctx, pair.AccessToken); err != nil {
			t.Fatalf("access token after bulk revoke failed: %v", err)
		}
	}
	// Refreshes, which require a live session, are refused.
	if _, err := gw.Refresh(ctx, a.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestRevokeSession_OwnershipChecked(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig())
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", nil)
	if err := gw.RevokeSession(ctx, "u2", pair.SessionID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("foreign revoke: expected ErrInvalidSession, got %v", err)
	}
	if err := gw.RevokeSession(ctx, "u1", pair.SessionID); err != nil {
		t.Fatalf("owner revoke failed: %v", err)
	}
}

func TestBlacklistDisabled_RevokedTokensKeepWorking(t *testing.T) {
	cfg := testConfig()
	cfg.Bearer.EnableBlacklist = false
	gw, _, _ := newTestGateway(t, cfg)
	ctx := context.Background()

	pair := mustIssue(t, gw, "u1", nil)
	if err := gw.RevokeToken(ctx, pair.AccessToken, "logout"); err == nil {
		t.Fatal("expected revoke to fail with blacklist disabled")
	}
	if _, err := gw.AuthenticateToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("token rejected with blacklist disabled: %v", err)
	}
}

func TestBearer_SchemeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Bearer.Enabled = false
	gw, _, _ := newTestGateway(t, cfg)

	if _, err := gw.IssueTokens(context.Background(), "u1", nil); !errors.Is(err, ErrSchemeDisabled) {
		t.Fatalf("expected ErrSchemeDisabled, got %v", err)
	}
	if _, err := gw.AuthenticateToken(context.Background(), "whatever"); !errors.Is(err, ErrSchemeDisabled) {
		t.Fatalf("expected ErrSchemeDisabled, got %v", err)
	}
}
