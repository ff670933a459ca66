// Package auth implements the credential verifier: the single stage
// that decides whether and as whom an inbound request is authorized.
// Three methods are tried in fixed priority order (the lattice_admin
// master bypass, a bearer API key, then the pqc_session signed cookie)
// and the first one that produces a valid credential wins.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "pqc_session"

// AdminCookie is the cookie carrying the master bypass secret.
const AdminCookie = "lattice_admin"

// ScopeSession is the scope claim stamped into every session token.
const ScopeSession = "lattice.session"

// SessionTTL is how long an issued session token remains valid.
const SessionTTL = 12 * time.Hour

// Claims extends the standard JWT claims with the gateway scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// SessionManager signs and validates pqc_session tokens using HS256.
// The token subject is the user's verified email, a durable identifier
// that survives login-provider changes.
type SessionManager struct {
	secret []byte
	issuer string
}

// NewSessionManager creates a manager with the given HMAC secret and issuer.
func NewSessionManager(secret, issuer string) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Issue generates a signed session token for the given email.
func (m *SessionManager) Issue(email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
		Scope: ScopeSession,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses and validates a session token, returning the subject
// email. Returns an error if the token is invalid, expired, or carries
// the wrong scope.
func (m *SessionManager) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if claims.Scope != ScopeSession {
		return "", fmt.Errorf("auth: wrong scope: got %q, want %q", claims.Scope, ScopeSession)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("auth: missing subject")
	}

	return claims.Subject, nil
}
