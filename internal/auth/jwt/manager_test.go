package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("test-secret", "assistant-test", 15*time.Minute, 7*24*time.Hour)
}

func TestManager_GenerateTokenPair(t *testing.T) {
	manager := newTestManager()

	tokens, err := manager.GenerateTokenPair("user-1", "me@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, int64(15*60), tokens.ExpiresIn)

	claims, err := manager.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "me@example.com", claims.Email)
	assert.Equal(t, TypeAccess, claims.Type)
}

func TestManager_RefreshTokenIsNotAnAccessToken(t *testing.T) {
	manager := newTestManager()

	tokens, err := manager.GenerateTokenPair("user-1", "me@example.com")
	require.NoError(t, err)

	_, err = manager.ValidateAccessToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = manager.RefreshAccessToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	access, err := manager.RefreshAccessToken(tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := manager.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestManager_ValidateAccessToken_Invalid(t *testing.T) {
	manager := newTestManager()

	tests := []struct {
		name  string
		token func() string
	}{
		{"garbage", func() string { return "not.a.token" }},
		{"empty", func() string { return "" }},
		{"other secret", func() string {
			tokens, _ := NewManager("other-secret", "assistant-test", time.Minute, time.Hour).GenerateTokenPair("user-1", "")
			return tokens.AccessToken
		}},
		{"other issuer", func() string {
			tokens, _ := NewManager("test-secret", "someone-else", time.Minute, time.Hour).GenerateTokenPair("user-1", "")
			return tokens.AccessToken
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ValidateAccessToken(tt.token())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestManager_ValidateAccessToken_Expired(t *testing.T) {
	manager := newTestManager()
	manager.now = func() time.Time { return time.Now().Add(-time.Hour) }

	tokens, err := manager.GenerateTokenPair("user-1", "me@example.com")
	require.NoError(t, err)

	manager.now = time.Now
	_, err = manager.ValidateAccessToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
