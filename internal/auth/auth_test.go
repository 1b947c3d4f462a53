package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-reviews/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("dev"))
	require.NoError(t, err)
	return tok
}

func TestUnverifiedParser(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{
		"sub":              "user-1",
		"profile_complete": true,
		"realm_access":     map[string]any{"roles": []string{"admin", "user"}},
	})

	claims, err := UnverifiedParser{}.Verify(t.Context(), raw)
	require.NoError(t, err)
	id := claims.Identity()
	assert.Equal(t, "user-1", id.UserID)
	assert.True(t, id.ProfileComplete)
	assert.True(t, id.HasRole("admin"))
	assert.False(t, id.HasRole("root"))

	_, err = UnverifiedParser{}.Verify(t.Context(), signedToken(t, jwt.MapClaims{"name": "x"}))
	assert.Error(t, err)
	_, err = UnverifiedParser{}.Verify(t.Context(), "garbage")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	var seen Identity
	h := Middleware(UnverifiedParser{}, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + signedToken(t, jwt.MapClaims{"sub": "user-2"}), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/campaigns/1/slots", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, "user-2", seen.UserID)
	assert.False(t, seen.ProfileComplete)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("admin", logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/campaigns/1/synchronize", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithIdentity(req.Context(), Identity{UserID: "u", Roles: []string{"user"}})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithIdentity(req.Context(), Identity{UserID: "u", Roles: []string{"admin"}})))
	assert.Equal(t, http.StatusOK, rec.Code)
}
