package middleware

import (
	"net/http"

	tollgate "github.com/kmweir/tollgate"
)

// Authorize lets the request through only when the authenticated principal
// holds one of the listed roles. It must run after a dispatcher handler.
func Authorize(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, tollgate.ErrUnauthenticated)
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[principal.Role]; !ok {
					writeError(w, http.StatusForbidden, tollgate.ErrInsufficientRole)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScopes lets the request through only when it was authenticated
// with the Bearer scheme and the token carries every listed scope.
func RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := AuthContextFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, tollgate.ErrUnauthenticated)
				return
			}
			if authCtx.Method != tollgate.MethodBearer {
				writeError(w, http.StatusUnauthorized, tollgate.ErrBearerRequired)
				return
			}
			granted := make(map[string]struct{}, len(authCtx.Scopes))
			for _, s := range authCtx.Scopes {
				granted[s] = struct{}{}
			}
			for _, want := range scopes {
				if _, ok := granted[want]; !ok {
					writeError(w, http.StatusForbidden, tollgate.ErrInsufficientScope)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
