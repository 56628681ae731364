package tollgate

import (
	"bytes"
	"errors"
	"strings"
	"time"
)

// Config is the full gateway configuration. Build a Config once, pass it to
// the builder, and treat it as immutable afterwards; the builder keeps its
// own defensive copy.
type Config struct {
	Realm    string
	Basic    BasicConfig
	Bearer   BearerConfig
	Password PasswordConfig
	Session  SessionConfig
	Dispatch DispatchConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
BASIC SCHEME
====================================
*/

// BasicConfig controls the credential verifier.
type BasicConfig struct {
	Enabled bool
	// AllowedRoles restricts which roles may authenticate with this scheme.
	// Empty means any role.
	AllowedRoles []string
	// MaxAttempts failed attempts per identifier:IP pair inside
	// LockoutDuration trigger a lockout.
	MaxAttempts     int
	LockoutDuration time.Duration
	// UpgradeOnLogin re-hashes the password after a successful login when
	// the stored hash uses weaker parameters than configured.
	UpgradeOnLogin bool
}

/*
====================================
BEARER SCHEME
====================================
*/

// BearerConfig controls the token service.
type BearerConfig struct {
	Enabled      bool
	AllowedRoles []string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// AccessSecret and RefreshSecret are the per-type HMAC signing keys.
	// They must differ: an access token must never verify as a refresh token.
	AccessSecret  []byte
	RefreshSecret []byte

	Issuer   string
	Audience string
	Leeway   time.Duration

	// EnableBlacklist turns on revocation tracking. With it disabled,
	// revoked tokens remain valid until they expire.
	EnableBlacklist bool
	// MaxActiveSessions caps concurrent sessions per user; issuing past the
	// cap evicts the oldest session. Zero means unlimited.
	MaxActiveSessions int
}

// PasswordConfig holds the argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
SESSION / CLEANUP
====================================
*/

// SessionConfig controls the session registry and the background sweep.
type SessionConfig struct {
	// KeyPrefix namespaces every gateway key in the backing store.
	KeyPrefix string
	// InactiveRetention is how long a revoked session lingers before the
	// sweep removes it.
	InactiveRetention time.Duration
	CleanupInterval   time.Duration
}

/*
====================================
DISPATCH
====================================
*/

// DispatchConfig controls the HTTP-facing scheme router.
type DispatchConfig struct {
	// AllowedMethods lists the schemes the dispatcher routes. Empty means
	// both; a scheme absent from a non-empty list is treated as disabled.
	AllowedMethods []AuthMethod
	// RequireSecureConnection rejects plaintext requests before reading
	// credentials.
	RequireSecureConnection bool
	// SkipPaths bypass authentication entirely. A trailing "*" matches any
	// suffix ("/public/*"); anything else is an exact match.
	SkipPaths []string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the request path when the
	// buffer is full. Drops are counted.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Realm: "api",
		Basic: BasicConfig{
			Enabled:         true,
			MaxAttempts:     5,
			LockoutDuration: 15 * time.Minute,
			UpgradeOnLogin:  true,
		},
		Bearer: BearerConfig{
			Enabled:           true,
			AccessTTL:         15 * time.Minute,
			RefreshTTL:        7 * 24 * time.Hour,
			Leeway:            30 * time.Second,
			EnableBlacklist:   true,
			MaxActiveSessions: 5,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Session: SessionConfig{
			KeyPrefix:         "tg",
			InactiveRetention: 30 * 24 * time.Hour,
			CleanupInterval:   time.Hour,
		},
		Dispatch: DispatchConfig{
			RequireSecureConnection: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Basic.AllowedRoles = cloneStrings(cfg.Basic.AllowedRoles)
	out.Bearer.AllowedRoles = cloneStrings(cfg.Bearer.AllowedRoles)
	out.Bearer.AccessSecret = cloneBytes(cfg.Bearer.AccessSecret)
	out.Bearer.RefreshSecret = cloneBytes(cfg.Bearer.RefreshSecret)
	out.Dispatch.AllowedMethods = append([]AuthMethod(nil), cfg.Dispatch.AllowedMethods...)
	out.Dispatch.SkipPaths = cloneStrings(cfg.Dispatch.SkipPaths)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internally inconsistent or unsafe
// values. The builder calls it before constructing the gateway.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Realm) == "" {
		return errors.New("Realm must not be empty")
	}

	// Basic
	if c.Basic.Enabled {
		if c.Basic.MaxAttempts <= 0 {
			return errors.New("Basic MaxAttempts must be > 0")
		}
		if c.Basic.LockoutDuration <= 0 {
			return errors.New("Basic LockoutDuration must be > 0")
		}
	}

	// Bearer
	if c.Bearer.Enabled {
		if c.Bearer.AccessTTL <= 0 {
			return errors.New("Bearer AccessTTL must be > 0")
		}
		if c.Bearer.RefreshTTL <= 0 {
			return errors.New("Bearer RefreshTTL must be > 0")
		}
		if c.Bearer.RefreshTTL < c.Bearer.AccessTTL {
			return errors.New("Bearer RefreshTTL must be >= AccessTTL")
		}
		if len(c.Bearer.AccessSecret) < 32 {
			return errors.New("Bearer AccessSecret must be >= 32 bytes")
		}
		if len(c.Bearer.RefreshSecret) < 32 {
			return errors.New("Bearer RefreshSecret must be >= 32 bytes")
		}
		if bytes.Equal(c.Bearer.AccessSecret, c.Bearer.RefreshSecret) {
			return errors.New("Bearer AccessSecret and RefreshSecret must differ")
		}
		if c.Bearer.Leeway < 0 {
			return errors.New("Bearer Leeway must be >= 0")
		}
		if c.Bearer.MaxActiveSessions < 0 {
			return errors.New("Bearer MaxActiveSessions must be >= 0")
		}
	}

	if !c.Basic.Enabled && !c.Bearer.Enabled {
		return errors.New("at least one authentication scheme must be enabled")
	}

	// Password
	if c.Basic.Enabled {
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	}

	// Session
	if c.Session.KeyPrefix == "" {
		return errors.New("Session KeyPrefix must not be empty")
	}
	if c.Session.InactiveRetention <= 0 {
		return errors.New("Session InactiveRetention must be > 0")
	}
	if c.Session.CleanupInterval < 0 {
		return errors.New("Session CleanupInterval must be >= 0")
	}

	// Dispatch
	for _, m := range c.Dispatch.AllowedMethods {
		if m != MethodBasic && m != MethodBearer {
			return errors.New("Dispatch AllowedMethods contains an unknown method")
		}
	}
	for _, p := range c.Dispatch.SkipPaths {
		if p == "" {
			return errors.New("Dispatch SkipPaths must not contain empty entries")
		}
		if !strings.HasPrefix(p, "/") {
			return errors.New("Dispatch SkipPaths entries must start with '/'")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c *Config) methodAllowed(m AuthMethod) bool {
	if len(c.Dispatch.AllowedMethods) == 0 {
		return true
	}
	for _, allowed := range c.Dispatch.AllowedMethods {
		if allowed == m {
			return true
		}
	}
	return false
}
