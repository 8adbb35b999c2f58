package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestSignParse(t *testing.T) {
	tok, err := Sign(secret, Claims{UserID: "u-1", Email: "a@b.c", Role: RoleSales}, time.Hour)
	require.NoError(t, err)

	c, err := Parse(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID)
	assert.Equal(t, RoleSales, c.Role)

	_, err = Parse("other-secret", tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseExpired(t *testing.T) {
	tok, err := Sign(secret, Claims{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	// negative ttl means no expiry claim is set
	_, err = Parse(secret, tok)
	require.NoError(t, err)

	c := Claims{UserID: "u-1"}
	tok, err = Sign(secret, c, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = Parse(secret, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRequiresUserID(t *testing.T) {
	tok, err := Sign(secret, Claims{Email: "x@y.z"}, time.Hour)
	require.NoError(t, err)
	_, err = Parse(secret, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	var seen Claims
	h := Middleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer not-a-jwt").Code)

	tok, err := Sign(secret, Claims{UserID: "u-9", Role: RoleCustomer}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, serve(h, "Bearer "+tok).Code)
	assert.Equal(t, "u-9", seen.UserID)
}

func TestRequireRoles(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(secret)(RequireRoles(StaffRoles...)(ok))

	customer, _ := Sign(secret, Claims{UserID: "u-1", Role: RoleCustomer}, time.Hour)
	staff, _ := Sign(secret, Claims{UserID: "u-2", Role: RoleWarehouse}, time.Hour)

	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer "+customer).Code)
	assert.Equal(t, http.StatusOK, serve(h, "Bearer "+staff).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(RequireRoles(RoleAdmin)(ok), "").Code)
}
