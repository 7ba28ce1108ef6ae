package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// key types for context values
type ctxKey string

const ctxKeyAuthInfo ctxKey = "pricing.authInfo"

// AuthInfo holds the validated identity of an administrative caller.
type AuthInfo struct {
	// Subject (sub claim) of the validated token.
	Subject string

	// Roles claim, when present.
	Roles []string
}

// FromContext returns the AuthInfo stored in the request context, or nil.
func FromContext(ctx context.Context) *AuthInfo {
	v := ctx.Value(ctxKeyAuthInfo)
	if v == nil {
		return nil
	}
	if ai, ok := v.(*AuthInfo); ok {
		return ai
	}
	return nil
}

// NewContext attaches AuthInfo to a context. Exposed for tests and for
// non-HTTP callers (the CLI path).
func NewContext(ctx context.Context, ai *AuthInfo) context.Context {
	return context.WithValue(ctx, ctxKeyAuthInfo, ai)
}

// RequireAdmin returns middleware that validates an HMAC-signed bearer token
// on admin routes. With an empty secret the middleware is a passthrough; main
// logs a warning when it starts in that mode. The quote path is never behind
// this middleware: checkout must not depend on admin credentials.
func RequireAdmin(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ai := &AuthInfo{}
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if sub, ok := claims["sub"].(string); ok {
					ai.Subject = sub
				}
				if roles, ok := claims["roles"].([]interface{}); ok {
					for _, role := range roles {
						if s, ok := role.(string); ok {
							ai.Roles = append(ai.Roles, s)
						}
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), ai)))
		})
	}
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}
