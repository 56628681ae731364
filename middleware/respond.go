package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tollgate "github.com/kmweir/tollgate"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (d *Dispatcher) reject(w http.ResponseWriter, err error, mode authMode) {
	status := statusFor(err)
	if status == http.StatusUnauthorized {
		for _, c := range d.challenges(mode) {
			w.Header().Add("WWW-Authenticate", c)
		}
	}

	var rl *tollgate.RateLimitedError
	if errors.As(err, &rl) {
		seconds := int(time.Until(rl.RetryAt).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
}

// challenges lists the WWW-Authenticate values to advertise for the mode.
// Only schemes that are enabled and routable are offered.
func (d *Dispatcher) challenges(mode authMode) []string {
	basic := fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", d.realm)
	bearer := fmt.Sprintf("Bearer realm=%q", d.realm)

	var out []string
	if d.basicUsable && mode != authBearerOnly {
		out = append(out, basic)
	}
	if d.bearerUsable && mode != authBasicOnly {
		out = append(out, bearer)
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tollgate.ErrBadRequest),
		errors.Is(err, tollgate.ErrInsecureTransport):
		return http.StatusBadRequest
	case errors.Is(err, tollgate.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, tollgate.ErrSchemeDisabled),
		errors.Is(err, tollgate.ErrInsufficientRole),
		errors.Is(err, tollgate.ErrInsufficientScope):
		return http.StatusForbidden
	case errors.Is(err, tollgate.ErrGatewayClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, tollgate.ErrAuthenticationFailed):
		return http.StatusInternalServerError
	case errors.Is(err, tollgate.ErrInvalidCredentials),
		errors.Is(err, tollgate.ErrAccountDisabled),
		errors.Is(err, tollgate.ErrUnsupportedScheme),
		errors.Is(err, tollgate.ErrTokenInvalid),
		errors.Is(err, tollgate.ErrTokenExpired),
		errors.Is(err, tollgate.ErrTokenRevoked),
		errors.Is(err, tollgate.ErrInvalidTokenType),
		errors.Is(err, tollgate.ErrInvalidSession),
		errors.Is(err, tollgate.ErrUserUnavailable),
		errors.Is(err, tollgate.ErrUnauthenticated),
		errors.Is(err, tollgate.ErrBearerRequired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
