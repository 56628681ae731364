package tollgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBadRequest is returned when credential material is present but malformed
	// (for example an empty username or password in a Basic header).
	ErrBadRequest = errors.New("malformed credentials")
	// ErrInvalidCredentials hides whether the identifier, the password, or the
	// caller's role failed. The ambiguity prevents account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned for a known but inactive user.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrRateLimited signals brute-force lockout; it is carried by
	// [RateLimitedError], which includes the unlock timestamp.
	ErrRateLimited = errors.New("too many failed attempts")
	// ErrInsecureTransport is returned when RequireSecureConnection is set and
	// the request arrived over plaintext.
	ErrInsecureTransport = errors.New("secure connection required")
	// ErrUnsupportedScheme is returned when the Authorization header carries
	// neither a Basic nor a Bearer prefix, or the header is absent.
	ErrUnsupportedScheme = errors.New("unsupported authorization scheme")
	// ErrSchemeDisabled is returned when the matching scheme is administratively
	// disabled or excluded from the allowed-methods list.
	ErrSchemeDisabled = errors.New("authentication scheme disabled")
	// ErrTokenInvalid covers signature, issuer, audience, and claim failures,
	// and tokens that resolve to a missing, inactive, or role-restricted user.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for a token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for a blacklisted token identifier. The
	// blacklist check runs before signature verification completes, so a
	// revoked-but-cryptographically-valid token is rejected without side effects.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrInvalidTokenType is returned when a refresh operation receives an
	// access token (or vice versa).
	ErrInvalidTokenType = errors.New("invalid token type")
	// ErrInvalidSession is returned when a refresh token references a session
	// that is missing, inactive, or owned by a different user.
	ErrInvalidSession = errors.New("invalid session")
	// ErrUserUnavailable is returned by token issuance when the target user is
	// missing or inactive.
	ErrUserUnavailable = errors.New("user unavailable")
	// ErrUnauthenticated is returned by guards when no principal is attached.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInsufficientRole is returned by role guards.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrInsufficientScope is returned by scope guards.
	ErrInsufficientScope = errors.New("insufficient scope")
	// ErrBearerRequired is returned by scope guards when the request was not
	// authenticated with the Bearer scheme.
	ErrBearerRequired = errors.New("bearer authentication required")
	// ErrAuthenticationFailed wraps unexpected faults (directory unreachable,
	// store unavailable). It is deliberately distinct from ErrInvalidCredentials:
	// an outage must never be reported as a wrong password.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUserNotFound is the sentinel a [UserDirectory] must return when a
	// lookup matches no user.
	ErrUserNotFound = errors.New("user not found")
	// ErrGatewayClosed is returned after Close.
	ErrGatewayClosed = errors.New("gateway closed")
)

// RateLimitedError carries the computed unlock timestamp for a locked-out
// identifier:IP pair. It unwraps to [ErrRateLimited].
type RateLimitedError struct {
	RetryAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry after %s", e.RetryAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
