package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"presentation-api/internal/model"
)

func TestTokenService(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", time.Hour)

	t.Run("round trips claims", func(t *testing.T) {
		token, err := svc.Issue("user-123", []string{"user"})
		require.NoError(t, err)

		claims, err := svc.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "user-123", claims.Subject)
		require.Equal(t, []string{"user"}, claims.Roles)
		require.NotEmpty(t, claims.TokenID)
	})

	t.Run("two tokens for the same user differ", func(t *testing.T) {
		first, err := svc.Issue("user-123", []string{"user"})
		require.NoError(t, err)
		second, err := svc.Issue("user-123", []string{"user"})
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := svc.Verify("not-a-token")
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("rejects a token signed with another secret", func(t *testing.T) {
		other := NewTokenService("different-secret", time.Hour)
		token, err := other.Issue("user-123", []string{"user"})
		require.NoError(t, err)

		_, err = svc.Verify(token)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		expired := NewTokenService("test-secret", -time.Minute)
		token, err := expired.Issue("user-123", []string{"user"})
		require.NoError(t, err)

		_, err = svc.Verify(token)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("rejects the none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Verify(token)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("rejects a token without a subject", func(t *testing.T) {
		anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		token, err := anonymous.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = svc.Verify(token)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})
}
