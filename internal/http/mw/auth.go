// Package mw contains HTTP middleware for the powerbot service.
package mw

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fame0528/powerbot/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ClaimsKey is the context key for verified token claims.
	ClaimsKey ContextKey = "token_claims"
)

// GetClaims retrieves verified claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Verifier validates bearer tokens. A nil verifier rejects every
	// request, so misconfiguration fails closed.
	Verifier *auth.Verifier

	// Logger for auth events
	Logger *slog.Logger
}

// Auth returns middleware that requires a valid bearer token and puts
// its claims on the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Verifier == nil {
				http.Error(w, `{"error":"authentication not configured"}`, http.StatusUnauthorized)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			token := authHeader
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}

			claims, err := cfg.Verifier.VerifyToken(token)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Debug("token validation failed", "error", err)
				}
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope returns middleware that requires a specific scope on
// the already-verified claims.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !claims.HasScope(scope) {
				http.Error(w, `{"error":"insufficient scope"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
