package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager(testSecret, "", time.Hour)
	id := uuid.New()

	token, err := m.GenerateAccessToken(id, "a@example.com", []string{RoleAdmin})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.MemberID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.True(t, claims.IsAdmin())
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager(testSecret, "toolrent", time.Hour)

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewTokenManager("ffffffffffffffffffffffffffffffff", "toolrent", time.Hour)
		token, err := other.GenerateAccessToken(uuid.New(), "", nil)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		claims := MemberClaims{
			MemberID: uuid.New(),
			Type:     TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "toolrent",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("WrongType", func(t *testing.T) {
		claims := MemberClaims{
			MemberID:         uuid.New(),
			Type:             "refresh",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "toolrent"},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
