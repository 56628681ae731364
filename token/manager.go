// Package token signs and verifies the gateway's JWT access/refresh pairs.
// Each token type has its own HMAC secret and TTL so one type can never be
// replayed as the other.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type distinguishes the two token kinds. The value is carried in the "typ"
// claim and checked on every parse.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var (
	// ErrInvalid covers signature, issuer, audience, claim-shape, and
	// type-mismatch failures.
	ErrInvalid = errors.New("token: invalid")
	// ErrExpired is returned for a token past its expiry (after leeway).
	ErrExpired = errors.New("token: expired")
)

// Claims is the gateway's JWT payload.
type Claims struct {
	UserID    string   `json:"uid"`
	Email     string   `json:"email,omitempty"`
	Role      string   `json:"role,omitempty"`
	TokenType string   `json:"typ"`
	SessionID string   `json:"sid"`
	Scopes    []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the signing material. Secrets must differ between types.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager signs and parses tokens. Safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager builds a manager. now may be nil, defaulting to time.Now.
func NewManager(cfg Config, now func() time.Time) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: TTLs must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

func (m *Manager) secret(typ Type) []byte {
	if typ == TypeRefresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
}

func (m *Manager) ttl(typ Type) time.Duration {
	if typ == TypeRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// SignInput is the caller-supplied identity for a new token.
type SignInput struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
	Scopes    []string
}

// Sign produces one signed token of the given type. Each call mints a fresh
// jti; the expiry is returned so revocation entries can mirror it.
func (m *Manager) Sign(typ Type, in SignInput) (raw string, jti string, expiresAt time.Time, err error) {
	now := m.now()
	jti = uuid.NewString()
	expiresAt = now.Add(m.ttl(typ))

	claims := Claims{
		UserID:    in.UserID,
		Email:     in.Email,
		Role:      in.Role,
		TokenType: string(typ),
		SessionID: in.SessionID,
		Scopes:    in.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   in.UserID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret(typ))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return raw, jti, expiresAt, nil
}

// Parse verifies raw against the secret for want and returns its claims.
// A cryptographically valid token of the wrong type fails with ErrInvalid:
// the secrets differ, so the signature check itself rejects it, and the
// "typ" claim is checked as well for defense in depth.
func (m *Manager) Parse(raw string, want Type) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret(want), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != string(want) {
		return nil, ErrInvalid
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// PeekResult is the unverified view of a token, extracted before any
// cryptographic check so the blacklist can be consulted first.
type PeekResult struct {
	TokenID   string
	UserID    string
	SessionID string
	TokenType string
}

// Peek decodes raw without verifying the signature. Callers must never
// trust the result for authorization; it exists only to key revocation
// lookups.
func (m *Manager) Peek(raw string) (PeekResult, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return PeekResult{}, ErrInvalid
	}
	if claims.ID == "" {
		return PeekResult{}, ErrInvalid
	}
	return PeekResult{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		TokenType: claims.TokenType,
	}, nil
}
