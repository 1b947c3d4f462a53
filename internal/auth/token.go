package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims this service reads. Roles come from the
// Keycloak realm_access claim.
type Claims struct {
	ProfileComplete bool `json:"profile_complete"`
	RealmAccess     struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, ProfileComplete: c.ProfileComplete, Roles: c.RealmAccess.Roles}
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// UnverifiedParser reads claims without checking the signature. It is only wired
// when no OIDC issuer is configured, for local development.
type UnverifiedParser struct{}

func (UnverifiedParser) Verify(_ context.Context, rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, errors.New("empty token")
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Identity().UserID == "" {
		return nil, errors.New("subject claim not found in token")
	}
	return &claims, nil
}
