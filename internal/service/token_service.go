package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

// TokenConfig defines configuration for credential issuance.
type TokenConfig struct {
	Secret       string
	AccessExpiry time.Duration
	Issuer       string
}

// TokenService is the credential issuer: signed access tokens carrying the
// device claims the session authority checks, plus opaque refresh tokens
// stored hashed against the device record.
type TokenService struct {
	config TokenConfig
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(config TokenConfig) *TokenService {
	if config.AccessExpiry <= 0 {
		config.AccessExpiry = time.Hour
	}
	return &TokenService{config: config}
}

// AccessExpiry exposes the configured access token lifetime.
func (s *TokenService) AccessExpiry() time.Duration {
	return s.config.AccessExpiry
}

// IssueAccessToken signs an access token bound to the given device slot.
func (s *TokenService) IssueAccessToken(user *models.User, class models.DeviceClass, deviceID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessExpiry)
	claims := &models.JWTClaims{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Email:       user.Email,
		DeviceClass: class,
		DeviceID:    deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// NewRefreshToken mints an opaque refresh token and the hash persisted
// against the device record. The raw value is never stored.
func (s *TokenService) NewRefreshToken() (token string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, s.HashRefreshToken(token), nil
}

// HashRefreshToken derives the storable hash of a refresh token.
func (s *TokenService) HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
