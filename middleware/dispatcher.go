// Package middleware routes HTTP requests through the gateway: it picks the
// authentication scheme from the Authorization header, enforces transport
// and skip-path rules, and attaches the authenticated principal to the
// request context.
package middleware

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"regexp"
	"strings"

	tollgate "github.com/kmweir/tollgate"
)

type principalContextKey struct{}
type authContextKey struct{}

// PrincipalFromContext returns the principal attached by a dispatcher
// handler.
func PrincipalFromContext(ctx context.Context) (tollgate.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(tollgate.Principal)
	return p, ok
}

// AuthContextFromContext returns the scheme details attached alongside the
// principal.
func AuthContextFromContext(ctx context.Context) (tollgate.AuthContext, bool) {
	a, ok := ctx.Value(authContextKey{}).(tollgate.AuthContext)
	return a, ok
}

// Dispatcher wraps a gateway with HTTP scheme routing.
type Dispatcher struct {
	gateway      *tollgate.Gateway
	cfg          tollgate.DispatchConfig
	realm        string
	skip         []skipPattern
	basicUsable  bool
	bearerUsable bool
}

type skipPattern struct {
	exact string
	re    *regexp.Regexp
}

func (p skipPattern) match(path string) bool {
	if p.re != nil {
		return p.re.MatchString(path)
	}
	return p.exact == path
}

// NewDispatcher compiles the configured skip paths. A path containing "*"
// matches any characters at that position; anything else matches exactly.
func NewDispatcher(gateway *tollgate.Gateway) (*Dispatcher, error) {
	full := gateway.Config()
	cfg := full.Dispatch
	d := &Dispatcher{
		gateway:      gateway,
		cfg:          cfg,
		realm:        gateway.Realm(),
		basicUsable:  full.Basic.Enabled && methodRoutable(cfg, tollgate.MethodBasic),
		bearerUsable: full.Bearer.Enabled && methodRoutable(cfg, tollgate.MethodBearer),
	}
	for _, raw := range cfg.SkipPaths {
		if !strings.Contains(raw, "*") {
			d.skip = append(d.skip, skipPattern{exact: raw})
			continue
		}
		parts := strings.Split(raw, "*")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
		if err != nil {
			return nil, err
		}
		d.skip = append(d.skip, skipPattern{re: re})
	}
	return d, nil
}

// methodRoutable mirrors the gateway's allow-list rule: an empty list allows
// every scheme.
func methodRoutable(cfg tollgate.DispatchConfig, m tollgate.AuthMethod) bool {
	if len(cfg.AllowedMethods) == 0 {
		return true
	}
	for _, allowed := range cfg.AllowedMethods {
		if allowed == m {
			return true
		}
	}
	return false
}

func (d *Dispatcher) skipped(path string) bool {
	for _, p := range d.skip {
		if p.match(path) {
			return true
		}
	}
	return false
}

// Authenticate requires a valid credential on every non-skipped request.
func (d *Dispatcher) Authenticate(next http.Handler) http.Handler {
	return d.handler(next, authRequired)
}

// Optional authenticates when credentials are present but lets anonymous
// and failed requests through without a principal. Transport rules still
// apply.
func (d *Dispatcher) Optional(next http.Handler) http.Handler {
	return d.handler(next, authOptional)
}

// BasicOnly accepts only the Basic scheme; a Bearer credential is rejected.
func (d *Dispatcher) BasicOnly(next http.Handler) http.Handler {
	return d.handler(next, authBasicOnly)
}

// BearerOnly accepts only the Bearer scheme.
func (d *Dispatcher) BearerOnly(next http.Handler) http.Handler {
	return d.handler(next, authBearerOnly)
}

type authMode int

const (
	authRequired authMode = iota
	authOptional
	authBasicOnly
	authBearerOnly
)

func (d *Dispatcher) handler(next http.Handler, mode authMode) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if d.cfg.RequireSecureConnection && !secureRequest(r) {
			d.reject(w, tollgate.ErrInsecureTransport, mode)
			return
		}

		ctx := tollgate.WithClientIP(r.Context(), clientIP(r))
		ctx = tollgate.WithUserAgent(ctx, r.UserAgent())

		principal, authCtx, err := d.authenticate(ctx, r.Header.Get("Authorization"), mode)
		if err != nil {
			if mode == authOptional {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			d.reject(w, err, mode)
			return
		}

		ctx = context.WithValue(ctx, principalContextKey{}, principal)
		ctx = context.WithValue(ctx, authContextKey{}, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (d *Dispatcher) authenticate(ctx context.Context, header string, mode authMode) (tollgate.Principal, tollgate.AuthContext, error) {
	scheme, credential, ok := splitAuthHeader(header)
	if !ok {
		return tollgate.Principal{}, tollgate.AuthContext{}, tollgate.ErrUnsupportedScheme
	}

	switch scheme {
	case "basic":
		if mode == authBearerOnly {
			return tollgate.Principal{}, tollgate.AuthContext{}, tollgate.ErrSchemeDisabled
		}
		username, passwd, err := decodeBasic(credential)
		if err != nil {
			return tollgate.Principal{}, tollgate.AuthContext{}, err
		}
		p, err := d.gateway.AuthenticateBasic(ctx, username, passwd)
		if err != nil {
			return tollgate.Principal{}, tollgate.AuthContext{}, err
		}
		return p, tollgate.AuthContext{Method: tollgate.MethodBasic}, nil

	case "bearer":
		if mode == authBasicOnly {
			return tollgate.Principal{}, tollgate.AuthContext{}, tollgate.ErrSchemeDisabled
		}
		auth, err := d.gateway.AuthenticateToken(ctx, credential)
		if err != nil {
			return tollgate.Principal{}, tollgate.AuthContext{}, err
		}
		return auth.Principal, tollgate.AuthContext{
			Method:    tollgate.MethodBearer,
			SessionID: auth.SessionID,
			Scopes:    auth.Scopes,
		}, nil

	default:
		return tollgate.Principal{}, tollgate.AuthContext{}, tollgate.ErrUnsupportedScheme
	}
}

func splitAuthHeader(header string) (scheme, credential string, ok bool) {
	if header == "" {
		return "", "", false
	}
	scheme, credential, found := strings.Cut(header, " ")
	if !found || credential == "" {
		return "", "", false
	}
	return strings.ToLower(scheme), strings.TrimSpace(credential), true
}

func decodeBasic(credential string) (username, passwd string, err error) {
	decoded, decErr := base64.StdEncoding.DecodeString(credential)
	if decErr != nil {
		return "", "", tollgate.ErrBadRequest
	}
	username, passwd, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", tollgate.ErrBadRequest
	}
	return username, passwd, nil
}

// secureRequest treats direct TLS and a terminating proxy's
// X-Forwarded-Proto header as secure.
func secureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
