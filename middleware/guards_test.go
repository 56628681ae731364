package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tollgate "github.com/kmweir/tollgate"
)

func requestWithAuth(principal tollgate.Principal, authCtx tollgate.AuthContext) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	ctx := context.WithValue(req.Context(), principalContextKey{}, principal)
	ctx = context.WithValue(ctx, authContextKey{}, authCtx)
	return req.WithContext(ctx)
}

func TestAuthorize_AllowsListedRole(t *testing.T) {
	handler := Authorize("admin", "operator")(okHandler())

	req := requestWithAuth(
		tollgate.Principal{ID: "u2", Role: "admin"},
		tollgate.AuthContext{Method: tollgate.MethodBasic},
	)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthorize_RejectsOtherRole(t *testing.T) {
	handler := Authorize("admin")(okHandler())

	req := requestWithAuth(
		tollgate.Principal{ID: "u1", Role: "user"},
		tollgate.AuthContext{Method: tollgate.MethodBasic},
	)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), tollgate.ErrInsufficientRole.Error())
}

func TestAuthorize_RequiresPrincipal(t *testing.T) {
	handler := Authorize("admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorize_EmptyListAllowsAnyRole(t *testing.T) {
	handler := Authorize()(okHandler())

	req := requestWithAuth(
		tollgate.Principal{ID: "u1", Role: "user"},
		tollgate.AuthContext{Method: tollgate.MethodBasic},
	)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScopes_AllPresent(t *testing.T) {
	handler := RequireScopes("read", "write")(okHandler())

	req := requestWithAuth(
		tollgate.Principal{ID: "u1", Role: "user"},
		tollgate.AuthContext{
			Method: tollgate.MethodBearer,
			Scopes: []string{"read", "write", "admin"},
		},
	)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScopes_MissingScope(t *testing.T) {
	handler := RequireScopes("read", "write")(okHandler())

	req := requestWithAuth(
		tollgate.Principal{ID: "u1", Role: "user"},
		tollgate.AuthContext{Method: tollgate.MethodBearer, Scopes: []string{"read"}},
	)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), tollgate.ErrInsufficientScope.Error())
}

func TestRequireScopes_BasicAuthRejected(t *testing.T) {
	handler := RequireScopes("read")(okHandler())

	req := requestWithAuth(
		tollgate.Principal{ID: "u1", Role: "user"},
		tollgate.AuthContext{Method: tollgate.MethodBasic},
	)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), tollgate.ErrBearerRequired.Error())
}

func TestRequireScopes_RequiresAuthContext(t *testing.T) {
	handler := RequireScopes("read")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuards_ComposeWithDispatcher(t *testing.T) {
	d, gw := newTestDispatcher(t, nil)

	pair, err := gw.IssueTokens(context.Background(), "u2", []string{"admin:write"})
	require.NoError(t, err)

	handler := d.BearerOnly(Authorize("admin")(RequireScopes("admin:write")(okHandler())))

	rec := doRequest(handler, "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The same chain turns away a user-role token.
	userPair, err := gw.IssueTokens(context.Background(), "u1", []string{"admin:write"})
	require.NoError(t, err)
	rec = doRequest(handler, "Bearer "+userPair.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
