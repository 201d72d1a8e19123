package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := NewManager("secret", time.Minute)
	userID, tenantID := uuid.New(), uuid.New()

	raw, err := m.Issue(userID, tenantID)
	require.NoError(t, err)

	claims, err := m.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
}

func TestVerifyRejectsWrongSecretAndExpiry(t *testing.T) {
	m := NewManager("secret", time.Minute)
	raw, err := m.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = NewManager("other", time.Minute).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewManager("secret", time.Minute)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNonAccessTokens(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"type": "refresh",
		"exp":  time.Now().Add(time.Minute).Unix(),
	})
	raw, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewManager("secret", time.Minute).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
