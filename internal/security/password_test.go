package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotContains(t, string(hash), "correct horse")

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordSalted(t *testing.T) {
	first, err := HashPassword("same input")
	require.NoError(t, err)
	second, err := HashPassword("same input")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := VerifyPassword("anything", []byte("not an argon2 hash"))
	assert.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("secret", "usr_1", "user@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "usr_1", claims.Subject)
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("secret", "usr_1", "user@example.com", time.Hour)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseAccessTokenExpired(t *testing.T) {
	token, err := GenerateAccessToken("secret", "usr_1", "user@example.com", -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "secret")
	assert.Error(t, err)
}
