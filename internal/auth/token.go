// Package auth issues and verifies the HS256 bearer tokens that guard
// the mutating API endpoints. Tokens are signed with the locally
// configured secret; there is no external identity provider.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNoSecret     = errors.New("no signing secret configured")
)

// Claims carries the token payload. Scope is a space-separated list of
// granted scopes, following the usual JWT convention.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// Scopes returns the granted scopes as a slice.
func (c *Claims) Scopes() []string {
	if c == nil || c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// HasScope checks whether a scope was granted.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier verifies and issues tokens with a shared HS256 secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty secret disables the
// verifier; callers should treat that as authentication unavailable.
func NewVerifier(secret, issuer string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// VerifyToken parses and validates a token string.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if v == nil {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a token for a subject with the given scopes and
// lifetime. Used by operator tooling and tests.
func (v *Verifier) IssueToken(subject string, scopes []string, ttl time.Duration) (string, error) {
	if v == nil {
		return "", ErrNoSecret
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: strings.Join(scopes, " "),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
