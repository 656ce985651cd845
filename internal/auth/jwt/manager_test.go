package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("test-secret-key-32-chars-long-minimum", "dismail", 15*time.Minute, 7*24*time.Hour)
}

func TestGenerateTokenPair(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.GenerateTokenPair("user-1", "alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)
}

func TestValidateToken(t *testing.T) {
	manager := newTestManager()

	t.Run("有效令牌", func(t *testing.T) {
		pair, err := manager.GenerateTokenPair("user-1", "alice@example.com")
		require.NoError(t, err)

		claims, err := manager.ValidateToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.Equal(t, "dismail", claims.Issuer)
	})

	t.Run("无效令牌", func(t *testing.T) {
		_, err := manager.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("签名密钥不匹配", func(t *testing.T) {
		other := NewManager("another-secret-key-32-chars-long-min", "dismail", 15*time.Minute, 7*24*time.Hour)
		pair, err := other.GenerateTokenPair("user-1", "alice@example.com")
		require.NoError(t, err)

		_, err = manager.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("过期令牌", func(t *testing.T) {
		short := NewManager("test-secret-key-32-chars-long-minimum", "dismail", -time.Minute, time.Hour)
		pair, err := short.GenerateTokenPair("user-1", "alice@example.com")
		require.NoError(t, err)

		_, err = short.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestRefreshAccessToken(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.GenerateTokenPair("user-1", "alice@example.com")
	require.NoError(t, err)

	token, err := manager.RefreshAccessToken(pair.RefreshToken)
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}
