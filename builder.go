package tollgate

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmweir/tollgate/internal/attempts"
	"github.com/kmweir/tollgate/internal/audit"
	"github.com/kmweir/tollgate/internal/kv"
	"github.com/kmweir/tollgate/password"
	"github.com/kmweir/tollgate/session"
	"github.com/kmweir/tollgate/token"
)

// Builder assembles a Gateway. Builders are single-use.
type Builder struct {
	config    Config
	store     kv.Store
	directory UserDirectory
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. The builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the gateway with Redis. The caller owns the client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.store = kv.NewRedis(client)
	return b
}

// WithStore backs the gateway with an arbitrary kv.Store. Without this or
// WithRedis, an in-process memory store is used.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithDirectory sets the user backend. Required.
func (b *Builder) WithDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithAuditSink sets the audit destination. Ignored unless auditing is
// enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for internal warnings.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTimeSource replaces the gateway clock. Lockout windows, token expiry,
// and sweeps all read it. Test use, mostly.
func (b *Builder) WithTimeSource(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and assembles the gateway, starting the
// audit dispatcher and the cleanup loop.
func (b *Builder) Build() (*Gateway, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	store := b.store
	if store == nil {
		mem := kv.NewMemory()
		mem.SetClock(now)
		store = mem
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	g := &Gateway{
		config:    cfg,
		directory: b.directory,
		store:     store,
		now:       now,
		logger:    logger,
		stop:      make(chan struct{}),
	}

	g.attempts = attempts.New(store, cfg.Session.KeyPrefix, cfg.Basic.MaxAttempts, cfg.Basic.LockoutDuration, now)
	g.sessions = session.NewRegistry(store, cfg.Session.KeyPrefix, cfg.Bearer.MaxActiveSessions, now)
	g.blacklist = session.NewBlacklist(store, cfg.Session.KeyPrefix, now)
	g.metrics = NewMetrics(cfg.Metrics)
	g.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	if cfg.Basic.Enabled {
		hasher, err := password.NewHasher(password.Params{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		g.passwords = hasher
	}

	if cfg.Bearer.Enabled {
		manager, err := token.NewManager(token.Config{
			AccessSecret:  cfg.Bearer.AccessSecret,
			RefreshSecret: cfg.Bearer.RefreshSecret,
			AccessTTL:     cfg.Bearer.AccessTTL,
			RefreshTTL:    cfg.Bearer.RefreshTTL,
			Issuer:        cfg.Bearer.Issuer,
			Audience:      cfg.Bearer.Audience,
			Leeway:        cfg.Bearer.Leeway,
		}, now)
		if err != nil {
			return nil, err
		}
		g.tokens = manager
	}

	g.startSweepLoop(cfg.Session.CleanupInterval)

	b.built = true
	return g, nil
}
