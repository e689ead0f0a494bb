package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fame0528/powerbot/internal/auth"
)

func issueTestToken(t *testing.T, v *auth.Verifier, scopes []string) string {
	t.Helper()
	token, err := v.IssueToken("test-operator", scopes, time.Minute)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func TestAuth(t *testing.T) {
	verifier := auth.NewVerifier("test-secret", "powerbot")

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) == nil {
			t.Error("expected claims on the request context")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		verifier   *auth.Verifier
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid bearer token",
			verifier:   verifier,
			authHeader: "Bearer " + issueTestToken(t, verifier, nil),
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid token without bearer prefix",
			verifier:   verifier,
			authHeader: issueTestToken(t, verifier, nil),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			verifier:   verifier,
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			verifier:   verifier,
			authHeader: "Bearer not-a-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no verifier configured",
			verifier:   nil,
			authHeader: "Bearer " + issueTestToken(t, verifier, nil),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(AuthConfig{Verifier: tt.verifier})(okHandler)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	verifier := auth.NewVerifier("test-secret", "powerbot")
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		scopes     []string
		required   string
		wantStatus int
	}{
		{
			name:       "scope granted",
			scopes:     []string{"admin", "read"},
			required:   "admin",
			wantStatus: http.StatusOK,
		},
		{
			name:       "scope missing",
			scopes:     []string{"read"},
			required:   "admin",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "no scopes at all",
			scopes:     nil,
			required:   "admin",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := Auth(AuthConfig{Verifier: verifier})(RequireScope(tt.required)(okHandler))

			req := httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil)
			req.Header.Set("Authorization", "Bearer "+issueTestToken(t, verifier, tt.scopes))
			rec := httptest.NewRecorder()

			chain.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireScopeWithoutAuth(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireScope("admin")(okHandler)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
