package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type authDeviceManager interface {
	RegisterDevice(ctx context.Context, input models.RegisterDeviceInput) (*models.Device, error)
	PersistRefreshTokenHash(ctx context.Context, deviceID, hash string) error
	LogoutDevice(ctx context.Context, deviceID string, cascade bool) error
	FindDevice(ctx context.Context, deviceID string) (*models.Device, error)
	UpdateDeviceActivity(ctx context.Context, deviceID string)
}

type authTokenIssuer interface {
	IssueAccessToken(user *models.User, class models.DeviceClass, deviceID string) (string, time.Time, error)
	NewRefreshToken() (token string, hash string, err error)
	HashRefreshToken(token string) string
	AccessExpiry() time.Duration
}

type authSessionChecker interface {
	IsSessionValid(ctx context.Context, userID string, class models.DeviceClass, deviceID string) bool
}

// AuthService handles password login, refresh rotation and logout. Every
// credential pair is bound to a device record; registration decides which
// existing sessions the login displaces.
type AuthService struct {
	users     authUserRepository
	devices   authDeviceManager
	tokens    authTokenIssuer
	sessions  authSessionChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users authUserRepository,
	devices authDeviceManager,
	tokens authTokenIssuer,
	sessions authSessionChecker,
	validate *validator.Validate,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		devices:   devices,
		tokens:    tokens,
		sessions:  sessions,
		validator: validate,
		logger:    logger,
	}
}

// Login authenticates the password, registers the device and issues a
// credential pair bound to it.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	device, err := s.devices.RegisterDevice(ctx, models.RegisterDeviceInput{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Class:       req.DeviceClass,
		BrowserID:   req.BrowserID,
		Name:        req.DeviceName,
		Fingerprint: req.Fingerprint,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user, device.Class, device.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}
	refreshToken, refreshHash, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue refresh token")
	}
	if err := s.devices.PersistRefreshTokenHash(ctx, device.ID, refreshHash); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("device_id", device.ID),
		zap.String("device_class", string(device.Class)))

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		DeviceID:     device.ID,
		ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
		IssuedAt:     time.Now().UTC(),
		User:         user.Info(),
	}, nil
}

// RefreshToken rotates the credential pair bound to a device. The device
// must still be active, hold the matching refresh hash and own its session
// slot; a device displaced by a newer login cannot refresh its way back in.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	device, err := s.devices.FindDevice(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive {
		return nil, appErrors.Clone(appErrors.ErrSessionReplaced, "device session ended")
	}

	presented := s.tokens.HashRefreshToken(req.RefreshToken)
	if device.RefreshTokenHash == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(device.RefreshTokenHash)) != 1 {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	if !s.sessions.IsSessionValid(ctx, device.UserID, device.Class, device.ID) {
		return nil, appErrors.Clone(appErrors.ErrSessionReplaced, "session replaced by another device")
	}

	user, err := s.users.FindByID(ctx, device.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown user")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user, device.Class, device.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}
	refreshToken, refreshHash, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue refresh token")
	}
	if err := s.devices.PersistRefreshTokenHash(ctx, device.ID, refreshHash); err != nil {
		return nil, err
	}
	s.devices.UpdateDeviceActivity(ctx, device.ID)

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Logout ends the caller's device session, cascading to web sessions when
// the caller is the primary mobile device and asked for it.
func (s *AuthService) Logout(ctx context.Context, deviceID string, cascade bool) error {
	return s.devices.LogoutDevice(ctx, deviceID, cascade)
}
