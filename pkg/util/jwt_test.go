package util

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT("u-1", "partner-7", "partner", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "partner-7", claims.PartnerID)
	assert.Equal(t, "partner", claims.Role)
}

func TestParseJWT_Rejects(t *testing.T) {
	good, err := GenerateJWT("u-1", "", "admin", "secret", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT("u-1", "", "admin", "secret", -time.Minute)
	require.NoError(t, err)
	noRole, err := GenerateJWT("u-1", "", "", "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(good, "other")
	assert.Error(t, err)

	_, err = ParseJWT(expired, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ParseJWT(noRole, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)

	_, err = ParseJWT("garbage", "secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer   abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, ExtractToken(r), tt.header)
	}
}
