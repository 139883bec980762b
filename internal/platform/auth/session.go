package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

const defaultSessionTTL = 30 * 24 * time.Hour

var (
	// ErrSessionTokenInvalid signals a malformed or forged cart session token.
	ErrSessionTokenInvalid = errors.New("auth: cart session token invalid")
	// ErrSessionTokenExpired signals a structurally valid but expired token.
	ErrSessionTokenExpired = errors.New("auth: cart session token expired")
)

// SessionManager mints and verifies the signed tokens that tie anonymous
// carts to a browser session. Tokens are HS256 JWTs whose subject is the
// session identifier stored on the cart.
type SessionManager struct {
	key    []byte
	ttl    time.Duration
	clock  func() time.Time
	method jwt.SigningMethod
}

// SessionOption customises SessionManager behaviour.
type SessionOption func(*SessionManager)

// WithSessionTTL overrides the token lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSessionClock injects a custom clock primarily for tests.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewSessionManager builds a SessionManager around the supplied signing key.
func NewSessionManager(signingKey string, opts ...SessionOption) (*SessionManager, error) {
	key := strings.TrimSpace(signingKey)
	if key == "" {
		return nil, errors.New("auth: session signing key is required")
	}

	manager := &SessionManager{
		key:    []byte(key),
		ttl:    defaultSessionTTL,
		clock:  time.Now,
		method: jwt.SigningMethodHS256,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

// Mint issues a fresh session token. The returned session ID is the value
// persisted on anonymous carts; the token is what the client carries.
func (m *SessionManager) Mint() (sessionID string, token string, err error) {
	now := m.clock().UTC()
	sessionID = "sess_" + ulid.Make().String()

	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.key)
	if err != nil {
		return "", "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return sessionID, signed, nil
}

// Verify checks the token signature and expiry and returns the session ID.
func (m *SessionManager) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrSessionTokenInvalid
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.key, nil
	}, jwt.WithValidMethods([]string{m.method.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrSessionTokenInvalid, err)
	}
	if !parsed.Valid {
		return "", ErrSessionTokenInvalid
	}

	sessionID := strings.TrimSpace(claims.Subject)
	if !strings.HasPrefix(sessionID, "sess_") {
		return "", ErrSessionTokenInvalid
	}
	return sessionID, nil
}
