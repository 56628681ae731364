package tollgate

import (
	"context"
	"time"

	"github.com/kmweir/tollgate/internal/audit"
)

// Principal is the authenticated identity attached to a request after a
// successful verification, regardless of scheme.
type Principal struct {
	ID    string
	Email string
	Role  string
}

// AuthMethod identifies which scheme authenticated a request.
type AuthMethod string

const (
	MethodBasic  AuthMethod = "basic"
	MethodBearer AuthMethod = "bearer"
)

// AuthContext carries per-request authentication details beyond the
// principal itself. SessionID and Scopes are empty for Basic auth.
type AuthContext struct {
	Method    AuthMethod
	SessionID string
	Scopes    []string
}

// UserRecord is the directory's view of a user. PasswordHash holds the
// PHC-encoded argon2id hash.
type UserRecord struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	Active       bool
}

// UserDirectory is the pluggable user backend. Implementations must return
// [ErrUserNotFound] (possibly wrapped) when a lookup matches nothing; any
// other error is treated as an infrastructure fault and surfaces as
// [ErrAuthenticationFailed].
type UserDirectory interface {
	// GetUserByIdentifier resolves the primary login identifier (email).
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	// GetUserByID resolves a user by stable ID, used by the bearer path.
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	// UpdateLastLogin records a successful Basic login. Failures here are
	// logged, not surfaced: the login already succeeded.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	// UpdatePasswordHash persists a re-hash after a parameter upgrade.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// UsernameLookup is an optional secondary lookup. When the directory
// implements it, a failed identifier lookup falls back to username.
type UsernameLookup interface {
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
}

// TokenPair is the result of token issuance: both tokens reference the same
// session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// TokenAuth is the result of a successful bearer verification.
type TokenAuth struct {
	Principal Principal
	SessionID string
	Scopes    []string
	TokenType string
}

// Audit types are defined in internal/audit and re-exported here so callers
// wire sinks without importing an internal package.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
)

var (
	NewNoOpAuditSink    = audit.NewNoOpSink
	NewChannelAuditSink = audit.NewChannelSink
	NewJSONWriterSink   = audit.NewJSONWriterSink
)
