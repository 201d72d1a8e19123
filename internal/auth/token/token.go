// Package token issues and verifies HS256 access tokens.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenType = "access"

var ErrInvalidToken = errors.New("invalid token")

// Claims is what a verified access token asserts.
type Claims struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// Manager signs and parses access tokens with a shared secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an access token for the user within the tenant.
func (m *Manager) Issue(userID, tenantID uuid.UUID) (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		"sub":       userID.String(),
		"tenant_id": tenantID.String(),
		"type":      accessTokenType,
		"exp":       now.Add(m.ttl).Unix(),
		"iat":       now.Unix(),
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenObj.SignedString(m.secret)
}

// Verify parses rawToken and returns its claims. Any signature, expiry, type or
// subject problem yields ErrInvalidToken.
func (m *Manager) Verify(rawToken string) (Claims, error) {
	parsed, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != accessTokenType {
		return Claims{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{UserID: userID}
	if raw, ok := claims["tenant_id"].(string); ok && strings.TrimSpace(raw) != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return Claims{}, ErrInvalidToken
		}
		out.TenantID = tenantID
	}
	return out, nil
}
