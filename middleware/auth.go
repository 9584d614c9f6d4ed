package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const identityContextKey contextKey = "identity"

const (
	RolePlayer = "player"
	RoleMod    = "mod"
)

// Identity is the authenticated caller extracted from the JWT.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

var ErrNoIdentity = errors.New("no authenticated identity in context")

// Authenticate verifies the bearer token and stores the caller's identity in
// the request context. Websocket clients cannot set headers from the
// browser, so a token query parameter is accepted as a fallback.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				raw = strings.TrimPrefix(header, "Bearer ")
			} else {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			identity := Identity{}
			if v, ok := claims["user_id"].(string); ok {
				identity.UserID = v
			}
			if v, ok := claims["name"].(string); ok {
				identity.Name = v
			}
			if v, ok := claims["role"].(string); ok {
				identity.Role = v
			}
			if identity.UserID == "" {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize restricts a route to the given roles.
func Authorize(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := GetIdentityFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if role == identity.Role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func GetIdentityFromContext(ctx context.Context) (Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return identity, nil
}
