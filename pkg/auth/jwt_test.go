package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateToken("user-1", "bot-1", "")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "bot-1", claims.BotID)
	assert.Equal(t, RoleUser, claims.Role)
	assert.False(t, claims.IsAdmin())
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	other := NewJWTManager("other", time.Hour)
	expired := NewJWTManager("secret", -time.Minute)

	foreign, err := other.GenerateToken("u", "b", RoleAdmin)
	require.NoError(t, err)
	stale, err := expired.GenerateToken("u", "b", RoleUser)
	require.NoError(t, err)
	noBot, err := m.GenerateToken("u", "", RoleUser)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong key": foreign,
		"expired":   stale,
		"no bot":    noBot,
		"garbage":   "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
