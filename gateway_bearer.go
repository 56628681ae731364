package tollgate

import (
	"context"
	"errors"

	"github.com/kmweir/tollgate/internal/audit"
	"github.com/kmweir/tollgate/session"
	"github.com/kmweir/tollgate/token"
)

// IssueTokens creates a session and signs an access/refresh pair for it.
// When the per-user session cap is reached, the oldest active sessions are
// evicted first.
func (g *Gateway) IssueTokens(ctx context.Context, userID string, scopes []string) (TokenPair, error) {
	if g.closed.Load() {
		return TokenPair{}, ErrGatewayClosed
	}
	if !g.config.Bearer.Enabled {
		return TokenPair{}, ErrSchemeDisabled
	}

	user, err := g.directory.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrUserUnavailable
		}
		return TokenPair{}, infraError(err)
	}
	if !user.Active {
		return TokenPair{}, ErrUserUnavailable
	}

	sess, evicted, err := g.sessions.Create(ctx, user.ID, clientIPFromContext(ctx), userAgentFromContext(ctx))
	if err != nil {
		return TokenPair{}, infraError(err)
	}
	g.metricInc(MetricSessionCreated)
	for _, victim := range evicted {
		g.metricInc(MetricSessionEvicted)
		g.emitAudit(ctx, audit.Event{
			EventType: AuditSessionEvicted,
			UserID:    user.ID,
			SessionID: victim,
			Method:    string(MethodBearer),
			Success:   true,
		})
	}

	pair, err := g.signPair(user, sess.ID, scopes)
	if err != nil {
		return TokenPair{}, infraError(err)
	}

	g.metricInc(MetricTokenIssued)
	g.emitAudit(ctx, audit.Event{
		EventType: AuditTokenIssued,
		UserID:    user.ID,
		SessionID: sess.ID,
		Method:    string(MethodBearer),
		Success:   true,
	})
	return pair, nil
}

func (g *Gateway) signPair(user UserRecord, sessionID string, scopes []string) (TokenPair, error) {
	in := token.SignInput{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		Scopes:    scopes,
	}
	access, _, _, err := g.tokens.Sign(token.TypeAccess, in)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, _, err := g.tokens.Sign(token.TypeRefresh, in)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, SessionID: sessionID}, nil
}

// AuthenticateToken verifies a token of either type against that type's
// secret and reports which kind it was. The blacklist is consulted with the
// unverified token ID before any signature work, so revocation holds even
// for tokens that would verify.
func (g *Gateway) AuthenticateToken(ctx context.Context, raw string) (TokenAuth, error) {
	if g.closed.Load() {
		return TokenAuth{}, ErrGatewayClosed
	}
	if !g.config.Bearer.Enabled || !g.config.methodAllowed(MethodBearer) {
		return TokenAuth{}, ErrSchemeDisabled
	}

	peek, err := g.tokens.Peek(raw)
	if err != nil {
		return TokenAuth{}, g.bearerReject(ctx, "", "", ErrTokenInvalid)
	}

	if revoked, err := g.checkBlacklist(ctx, peek.TokenID); err != nil {
		return TokenAuth{}, err
	} else if revoked {
		g.metricInc(MetricTokenRevokedRejected)
		return TokenAuth{}, g.bearerReject(ctx, peek.UserID, peek.SessionID, ErrTokenRevoked)
	}

	typ := token.Type(peek.TokenType)
	if typ != token.TypeAccess && typ != token.TypeRefresh {
		return TokenAuth{}, g.bearerReject(ctx, peek.UserID, peek.SessionID, ErrTokenInvalid)
	}
	claims, err := g.tokens.Parse(raw, typ)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return TokenAuth{}, g.bearerReject(ctx, peek.UserID, peek.SessionID, ErrTokenExpired)
		}
		return TokenAuth{}, g.bearerReject(ctx, peek.UserID, peek.SessionID, ErrTokenInvalid)
	}

	user, err := g.directory.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenAuth{}, g.bearerReject(ctx, claims.UserID, claims.SessionID, ErrTokenInvalid)
		}
		return TokenAuth{}, infraError(err)
	}
	if !user.Active || !roleAllowed(user.Role, g.config.Bearer.AllowedRoles) {
		return TokenAuth{}, g.bearerReject(ctx, user.ID, claims.SessionID, ErrTokenInvalid)
	}

	// Missing or revoked sessions do not fail the request: a bulk session
	// revocation leaves issued tokens valid until expiry, they just stop
	// leaving an activity trace.
	if err := g.sessions.Touch(ctx, claims.UserID, claims.SessionID); err != nil {
		g.logger.Warn("session touch failed", "user", claims.UserID, "session", claims.SessionID, "error", err)
	}

	g.metricInc(MetricBearerSuccess)
	g.emitAudit(ctx, audit.Event{
		EventType: AuditTokenVerified,
		UserID:    user.ID,
		SessionID: claims.SessionID,
		Method:    string(MethodBearer),
		Success:   true,
	})

	return TokenAuth{
		Principal: Principal{ID: user.ID, Email: user.Email, Role: user.Role},
		SessionID: claims.SessionID,
		Scopes:    claims.Scopes,
		TokenType: claims.TokenType,
	}, nil
}

func (g *Gateway) bearerReject(ctx context.Context, userID, sessionID string, cause error) error {
	g.metricInc(MetricBearerFailure)
	g.emitAudit(ctx, audit.Event{
		EventType: AuditTokenRejected,
		UserID:    userID,
		SessionID: sessionID,
		Method:    string(MethodBearer),
		Error:     errString(cause),
	})
	return cause
}

func (g *Gateway) checkBlacklist(ctx context.Context, tokenID string) (bool, error) {
	if !g.config.Bearer.EnableBlacklist {
		return false, nil
	}
	revoked, err := g.blacklist.Contains(ctx, tokenID)
	if err != nil {
		return false, infraError(err)
	}
	return revoked, nil
}

// Refresh rotates a refresh token: the old token is blacklisted and a fresh
// pair is issued under a brand-new session; the rotated-out session is
// retired.
//
// Two concurrent refreshes of the same token can both succeed; the race is
// accepted, both resulting pairs are valid.
func (g *Gateway) Refresh(ctx context.Context, rawRefresh string) (TokenPair, error) {
	if g.closed.Load() {
		return TokenPair{}, ErrGatewayClosed
	}
	if !g.config.Bearer.Enabled {
		return TokenPair{}, ErrSchemeDisabled
	}

	peek, err := g.tokens.Peek(rawRefresh)
	if err != nil {
		return TokenPair{}, g.refreshReject(ctx, "", "", ErrTokenInvalid)
	}
	if peek.TokenType != string(token.TypeRefresh) {
		return TokenPair{}, g.refreshReject(ctx, peek.UserID, peek.SessionID, ErrInvalidTokenType)
	}

	if revoked, err := g.checkBlacklist(ctx, peek.TokenID); err != nil {
		return TokenPair{}, err
	} else if revoked {
		g.metricInc(MetricTokenRevokedRejected)
		return TokenPair{}, g.refreshReject(ctx, peek.UserID, peek.SessionID, ErrTokenRevoked)
	}

	claims, err := g.tokens.Parse(rawRefresh, token.TypeRefresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return TokenPair{}, g.refreshReject(ctx, peek.UserID, peek.SessionID, ErrTokenExpired)
		}
		return TokenPair{}, g.refreshReject(ctx, peek.UserID, peek.SessionID, ErrTokenInvalid)
	}

	sess, err := g.sessions.Get(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return TokenPair{}, g.refreshReject(ctx, claims.UserID, claims.SessionID, ErrInvalidSession)
		}
		return TokenPair{}, infraError(err)
	}
	if !sess.Active || sess.UserID != claims.UserID {
		return TokenPair{}, g.refreshReject(ctx, claims.UserID, claims.SessionID, ErrInvalidSession)
	}

	user, err := g.directory.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, g.refreshReject(ctx, claims.UserID, claims.SessionID, ErrUserUnavailable)
		}
		return TokenPair{}, infraError(err)
	}
	if !user.Active {
		return TokenPair{}, g.refreshReject(ctx, user.ID, claims.SessionID, ErrUserUnavailable)
	}

	if g.config.Bearer.EnableBlacklist {
		if err := g.blacklist.Add(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time, "rotation"); err != nil {
			return TokenPair{}, infraError(err)
		}
	}
	if err := g.sessions.Revoke(ctx, claims.UserID, claims.SessionID); err != nil {
		g.logger.Warn("session retire failed", "user", claims.UserID, "session", claims.SessionID, "error", err)
	}

	sessNew, evicted, err := g.sessions.Create(ctx, user.ID, clientIPFromContext(ctx), userAgentFromContext(ctx))
	if err != nil {
		return TokenPair{}, infraError(err)
	}
	g.metricInc(MetricSessionCreated)
	for range evicted {
		g.metricInc(MetricSessionEvicted)
	}

	pair, err := g.signPair(user, sessNew.ID, claims.Scopes)
	if err != nil {
		return TokenPair{}, infraError(err)
	}

	g.metricInc(MetricRefreshSuccess)
	g.metricInc(MetricTokenIssued)
	g.emitAudit(ctx, audit.Event{
		EventType: AuditTokenRefreshed,
		UserID:    user.ID,
		SessionID: sessNew.ID,
		Method:    string(MethodBearer),
		Success:   true,
		Metadata:  map[string]string{"rotated_session": claims.SessionID},
	})
	return pair, nil
}

func (g *Gateway) refreshReject(ctx context.Context, userID, sessionID string, cause error) error {
	g.metricInc(MetricRefreshFailure)
	g.emitAudit(ctx, audit.Event{
		EventType: AuditTokenRejected,
		UserID:    userID,
		SessionID: sessionID,
		Method:    string(MethodBearer),
		Error:     errString(cause),
	})
	return cause
}

// RevokeToken blacklists a single verified token without touching its
// session.
func (g *Gateway) RevokeToken(ctx context.Context, raw, reason string) error {
	if g.closed.Load() {
		return ErrGatewayClosed
	}
	if !g.config.Bearer.Enabled {
		return ErrSchemeDisabled
	}
	if !g.config.Bearer.EnableBlacklist {
		return ErrTokenInvalid
	}

	peek, err := g.tokens.Peek(raw)
	if err != nil {
		return ErrTokenInvalid
	}
	want := token.Type(peek.TokenType)
	if want != token.TypeAccess && want != token.TypeRefresh {
		return ErrInvalidTokenType
	}
	claims, err := g.tokens.Parse(raw, want)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	if err := g.blacklist.Add(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time, reason); err != nil {
		return infraError(err)
	}
	g.metricInc(MetricTokenRevoked)
	g.emitAudit(ctx, audit.Event{
		EventType: AuditTokenRevoked,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Method:    string(MethodBearer),
		Success:   true,
		Metadata:  map[string]string{"reason": reason},
	})
	return nil
}

// RevokeSession marks one of the user's sessions inactive. A session owned
// by another user is rejected.
func (g *Gateway) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if g.closed.Load() {
		return ErrGatewayClosed
	}

	sess, err := g.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidSession
		}
		return infraError(err)
	}
	if sess.UserID != userID {
		return ErrInvalidSession
	}

	if err := g.sessions.Revoke(ctx, userID, sessionID); err != nil {
		return infraError(err)
	}
	g.metricInc(MetricSessionRevoked)
	g.emitAudit(ctx, audit.Event{
		EventType: AuditSessionRevoked,
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}

// RevokeAllSessions marks every active session for the user inactive and
// returns how many were touched. Tokens already issued keep verifying until
// they expire; their session activity simply stops being tracked.
func (g *Gateway) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if g.closed.Load() {
		return 0, ErrGatewayClosed
	}

	revoked, err := g.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return revoked, infraError(err)
	}
	for i := 0; i < revoked; i++ {
		g.metricInc(MetricSessionRevoked)
	}
	g.emitAudit(ctx, audit.Event{
		EventType: AuditSessionsRevoked,
		UserID:    userID,
		Success:   true,
	})
	return revoked, nil
}

// ActiveSessions lists the user's active sessions, oldest first.
func (g *Gateway) ActiveSessions(ctx context.Context, userID string) ([]session.Session, error) {
	if g.closed.Load() {
		return nil, ErrGatewayClosed
	}
	sessions, err := g.sessions.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, infraError(err)
	}
	return sessions, nil
}
