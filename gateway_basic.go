package tollgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/kmweir/tollgate/internal/audit"
)

// AuthenticateBasic verifies a username/password pair and returns the
// authenticated principal.
//
// Checks run in a fixed order: scheme enabled, non-empty credentials,
// lockout window, directory lookup, role allow-list, active flag, password.
// Every terminal branch records exactly one attempt and emits one audit
// event. A role mismatch reports as invalid credentials so probing cannot
// map which accounts exist with which roles.
func (g *Gateway) AuthenticateBasic(ctx context.Context, username, passwd string) (Principal, error) {
	if g.closed.Load() {
		return Principal{}, ErrGatewayClosed
	}
	if !g.config.Basic.Enabled || !g.config.methodAllowed(MethodBasic) {
		return Principal{}, ErrSchemeDisabled
	}

	ip := clientIPFromContext(ctx)

	if username == "" || passwd == "" {
		g.recordBasicFailure(ctx, username, ip, "", ErrBadRequest)
		return Principal{}, ErrBadRequest
	}

	locked, retryAt, err := g.attempts.Check(ctx, username, ip)
	if err != nil {
		return Principal{}, infraError(err)
	}
	if locked {
		// The lockout attempt is recorded too, extending the window for
		// callers that keep hammering.
		rlErr := &RateLimitedError{RetryAt: retryAt}
		if appendErr := g.attempts.Append(ctx, username, ip, false); appendErr != nil {
			g.logger.Warn("attempt record failed", "identifier", username, "error", appendErr)
		}
		g.metricInc(MetricBasicRateLimited)
		g.emitAudit(ctx, audit.Event{
			EventType:  AuditBasicLockout,
			Identifier: username,
			Method:     string(MethodBasic),
			Error:      rlErr.Error(),
		})
		return Principal{}, rlErr
	}

	user, err := g.lookupUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			g.recordBasicFailure(ctx, username, ip, "", ErrInvalidCredentials)
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, infraError(err)
	}

	if !roleAllowed(user.Role, g.config.Basic.AllowedRoles) {
		g.recordBasicFailure(ctx, username, ip, user.ID, ErrInvalidCredentials)
		return Principal{}, ErrInvalidCredentials
	}

	if !user.Active {
		g.recordBasicFailure(ctx, username, ip, user.ID, ErrAccountDisabled)
		return Principal{}, ErrAccountDisabled
	}

	ok, err := g.passwords.Verify(passwd, user.PasswordHash)
	if err != nil {
		// A hash we cannot parse is a data fault, not a wrong password.
		return Principal{}, infraError(fmt.Errorf("verify %s: %w", user.ID, err))
	}
	if !ok {
		g.recordBasicFailure(ctx, username, ip, user.ID, ErrInvalidCredentials)
		return Principal{}, ErrInvalidCredentials
	}

	// Success is recorded as an attempt as well; it does not erase earlier
	// failures inside the window.
	if err := g.attempts.Append(ctx, username, ip, true); err != nil {
		g.logger.Warn("attempt record failed", "identifier", username, "error", err)
	}

	g.maybeUpgradeHash(ctx, user, passwd)

	if err := g.directory.UpdateLastLogin(ctx, user.ID, g.now()); err != nil {
		g.logger.Warn("last login update failed", "user", user.ID, "error", err)
	}

	g.metricInc(MetricBasicSuccess)
	g.emitAudit(ctx, audit.Event{
		EventType:  AuditBasicLogin,
		Identifier: username,
		UserID:     user.ID,
		Method:     string(MethodBasic),
		Success:    true,
	})

	return Principal{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// lookupUser resolves the primary identifier and falls back to username
// lookup when the directory supports it.
func (g *Gateway) lookupUser(ctx context.Context, identifier string) (UserRecord, error) {
	user, err := g.directory.GetUserByIdentifier(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return UserRecord{}, err
	}
	if byName, ok := g.directory.(UsernameLookup); ok {
		return byName.GetUserByUsername(ctx, identifier)
	}
	return UserRecord{}, err
}

func (g *Gateway) recordBasicFailure(ctx context.Context, identifier, ip, userID string, cause error) {
	if err := g.attempts.Append(ctx, identifier, ip, false); err != nil {
		g.logger.Warn("attempt record failed", "identifier", identifier, "error", err)
	}
	g.metricInc(MetricBasicFailure)
	g.emitAudit(ctx, audit.Event{
		EventType:  AuditBasicLogin,
		Identifier: identifier,
		UserID:     userID,
		Method:     string(MethodBasic),
		Error:      errString(cause),
	})
}

// maybeUpgradeHash re-hashes the password after a successful login when the
// stored hash predates the current cost parameters. Failures are logged and
// swallowed; the login already succeeded.
func (g *Gateway) maybeUpgradeHash(ctx context.Context, user UserRecord, passwd string) {
	if !g.config.Basic.UpgradeOnLogin {
		return
	}
	needs, err := g.passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	rehashed, err := g.passwords.Hash(passwd)
	if err != nil {
		g.logger.Warn("password rehash failed", "user", user.ID, "error", err)
		return
	}
	if err := g.directory.UpdatePasswordHash(ctx, user.ID, rehashed); err != nil {
		g.logger.Warn("password hash update failed", "user", user.ID, "error", err)
	}
}

// GenerateChallenge builds the WWW-Authenticate value for the Basic scheme.
func (g *Gateway) GenerateChallenge() string {
	return fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", g.config.Realm)
}

// RemainingAttempts reports how many failures the identifier:IP pair has
// left before lockout.
func (g *Gateway) RemainingAttempts(ctx context.Context, identifier, ip string) (int, error) {
	if g.closed.Load() {
		return 0, ErrGatewayClosed
	}
	remaining, err := g.attempts.Remaining(ctx, identifier, ip)
	if err != nil {
		return 0, infraError(err)
	}
	return remaining, nil
}
