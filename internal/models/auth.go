package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest is the password login payload.
type LoginRequest struct {
	Email       string      `json:"email" validate:"required,email"`
	Password    string      `json:"password" validate:"required"`
	DeviceClass DeviceClass `json:"device_class" validate:"required,oneof=mobile web"`
	BrowserID   string      `json:"browser_id"`
	DeviceName  string      `json:"device_name"`
	Fingerprint string      `json:"fingerprint"`
	IP          string      `json:"-"`
	UserAgent   string      `json:"-"`
}

// LoginResponse carries the issued credential pair and the device it binds to.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	DeviceID     string    `json:"device_id"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

// RefreshTokenRequest rotates a refresh token bound to a device.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	DeviceID     string `json:"device_id" validate:"required"`
}

// RefreshTokenResponse carries the rotated credential pair.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// LogoutRequest targets the caller's device; cascade extends a primary
// mobile logout to every web session.
type LogoutRequest struct {
	Cascade bool `json:"cascade"`
}

// JWTClaims represents the JWT payload for access tokens. DeviceClass and
// DeviceID bind the token to the session authority; tokens issued before the
// device claims existed carry neither.
type JWTClaims struct {
	UserID      string      `json:"user_id"`
	TenantID    string      `json:"tenant_id"`
	Email       string      `json:"email"`
	DeviceClass DeviceClass `json:"device_class,omitempty"`
	DeviceID    string      `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// HasDeviceClaims reports whether the token is bound to a device slot.
func (c *JWTClaims) HasDeviceClaims() bool {
	return c != nil && c.DeviceClass.Valid() && c.DeviceID != ""
}
