package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

func newTestTokenService() *TokenService {
	return NewTokenService(TokenConfig{
		Secret:       "test-secret",
		AccessExpiry: 15 * time.Minute,
		Issuer:       "session-api",
	})
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	svc := newTestTokenService()
	user := &models.User{ID: "user-1", TenantID: "tenant-1", Email: "a@b.c"}

	signed, expiresAt, err := svc.IssueAccessToken(user, models.DeviceClassMobile, "device-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, models.DeviceClassMobile, claims.DeviceClass)
	assert.Equal(t, "device-1", claims.DeviceID)
	assert.True(t, claims.HasDeviceClaims())
}

func TestValidateTokenWrongSecret(t *testing.T) {
	signed, _, err := newTestTokenService().IssueAccessToken(&models.User{ID: "user-1"}, models.DeviceClassWeb, "device-1")
	require.NoError(t, err)

	other := NewTokenService(TokenConfig{Secret: "different-secret", AccessExpiry: time.Minute})
	_, err = other.ValidateToken(signed)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newTestTokenService()

	claims := &models.JWTClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestNewRefreshTokenHashMatches(t *testing.T) {
	svc := newTestTokenService()

	token, hash, err := svc.NewRefreshToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, svc.HashRefreshToken(token), hash)

	other, _, err := svc.NewRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
