package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/hub"
	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

type qrTokenRepository interface {
	Create(ctx context.Context, token *models.QRLoginToken) error
	FindByToken(ctx context.Context, token string) (*models.QRLoginToken, error)
	MarkScanned(ctx context.Context, token string, now time.Time) (bool, error)
	MarkApproved(ctx context.Context, token, userID, tenantID string) (bool, error)
	MarkRejected(ctx context.Context, token string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type qrUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type deviceRegistrar interface {
	RegisterDevice(ctx context.Context, input models.RegisterDeviceInput) (*models.Device, error)
	PersistRefreshTokenHash(ctx context.Context, deviceID, hash string) error
}

type credentialIssuer interface {
	IssueAccessToken(user *models.User, class models.DeviceClass, deviceID string) (string, time.Time, error)
	NewRefreshToken() (token string, hash string, err error)
}

type qrWaiterNotifier interface {
	NotifyQRWaiter(token string, ev hub.Event) bool
}

// QRLoginConfig tunes token lifetime.
type QRLoginConfig struct {
	TokenTTL time.Duration
}

// QRLoginService drives the pending -> scanned -> approved/rejected token
// flow. Transitions are one-way; a pending token past its deadline reads as
// expired without ever being written.
type QRLoginService struct {
	tokens  qrTokenRepository
	users   qrUserRepository
	devices deviceRegistrar
	issuer  credentialIssuer
	waiters qrWaiterNotifier
	metrics *MetricsService
	logger  *zap.Logger
	config  QRLoginConfig
}

// NewQRLoginService constructs a QRLoginService instance.
func NewQRLoginService(
	tokens qrTokenRepository,
	users qrUserRepository,
	devices deviceRegistrar,
	issuer credentialIssuer,
	waiters qrWaiterNotifier,
	metrics *MetricsService,
	logger *zap.Logger,
	config QRLoginConfig,
) *QRLoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 2 * time.Minute
	}
	return &QRLoginService{
		tokens:  tokens,
		users:   users,
		devices: devices,
		issuer:  issuer,
		waiters: waiters,
		metrics: metrics,
		logger:  logger,
		config:  config,
	}
}

// GenerateToken mints a short-lived pending token for an anonymous desktop.
func (s *QRLoginService) GenerateToken(ctx context.Context, req models.GenerateQRTokenRequest) (*models.QRLoginToken, error) {
	now := time.Now().UTC()
	token := &models.QRLoginToken{
		Token:          uuid.NewString(),
		Status:         models.QRStatusPending,
		WebFingerprint: req.Fingerprint,
		WebUserAgent:   req.UserAgent,
		WebIP:          req.IP,
		BrowserID:      req.BrowserID,
		ExpiresAt:      now.Add(s.config.TokenTTL),
		CreatedAt:      now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create login token")
	}
	s.metrics.RecordQRTransition(string(models.QRStatusPending))
	return token, nil
}

// CheckStatus is the desktop's polling fallback when it has no live socket.
func (s *QRLoginService) CheckStatus(ctx context.Context, token string) (*models.QRStatusResponse, error) {
	record, err := s.findToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &models.QRStatusResponse{
		Token:     record.Token,
		Status:    record.EffectiveStatus(time.Now().UTC()),
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Scan moves a pending token to scanned on behalf of a logged-in mobile
// client and tells the desktop waiter.
func (s *QRLoginService) Scan(ctx context.Context, token string) error {
	record, err := s.findToken(ctx, token)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	switch record.EffectiveStatus(now) {
	case models.QRStatusPending:
	case models.QRStatusExpired:
		return appErrors.Clone(appErrors.ErrExpired, "login token expired")
	default:
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "login token already scanned")
	}

	ok, err := s.tokens.MarkScanned(ctx, token, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark token scanned")
	}
	if !ok {
		// A concurrent scan or the expiry deadline won the race.
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "login token already scanned")
	}

	s.metrics.RecordQRTransition(string(models.QRStatusScanned))
	s.waiters.NotifyQRWaiter(token, hub.Event{Event: hub.EventScanned})
	return nil
}

// Approve completes the QR login: the approver's identity mints a web device
// and a credential pair, both delivered to the desktop waiter. The stored
// transition commits only after the device exists, so a half-approved token
// stays approvable.
func (s *QRLoginService) Approve(ctx context.Context, token, userID, tenantID string) error {
	record, err := s.findToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.requireScanned(record); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "approving user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approving user")
	}

	device, err := s.devices.RegisterDevice(ctx, models.RegisterDeviceInput{
		UserID:      userID,
		TenantID:    tenantID,
		Class:       models.DeviceClassWeb,
		BrowserID:   record.BrowserID,
		Name:        "Web (QR login)",
		Fingerprint: record.WebFingerprint,
		IP:          record.WebIP,
		UserAgent:   record.WebUserAgent,
	})
	if err != nil {
		return err
	}

	accessToken, _, err := s.issuer.IssueAccessToken(user, models.DeviceClassWeb, device.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}
	refreshToken, refreshHash, err := s.issuer.NewRefreshToken()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue refresh token")
	}
	if err := s.devices.PersistRefreshTokenHash(ctx, device.ID, refreshHash); err != nil {
		return err
	}

	ok, err := s.tokens.MarkApproved(ctx, token, userID, tenantID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark token approved")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "login token already resolved")
	}

	s.metrics.RecordQRTransition(string(models.QRStatusApproved))
	info := user.Info()
	delivered := s.waiters.NotifyQRWaiter(token, hub.Event{
		Event:        hub.EventApproved,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		DeviceID:     device.ID,
		User:         &info,
	})
	s.logger.Info("qr login approved",
		zap.String("user_id", userID),
		zap.String("device_id", device.ID),
		zap.Bool("delivered", delivered))
	return nil
}

// Reject resolves a scanned token negatively and tells the desktop waiter.
func (s *QRLoginService) Reject(ctx context.Context, token string) error {
	record, err := s.findToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.requireScanned(record); err != nil {
		return err
	}

	ok, err := s.tokens.MarkRejected(ctx, token)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark token rejected")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "login token already resolved")
	}

	s.metrics.RecordQRTransition(string(models.QRStatusRejected))
	s.waiters.NotifyQRWaiter(token, hub.Event{Event: hub.EventRejected})
	return nil
}

// CleanupExpiredTokens removes dead token rows. Never fails; returns the
// number removed.
func (s *QRLoginService) CleanupExpiredTokens(ctx context.Context) int64 {
	count, err := s.tokens.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Warn("expired token cleanup failed", zap.Error(err))
		return 0
	}
	if count > 0 {
		s.logger.Info("expired login tokens cleaned", zap.Int64("count", count))
	}
	return count
}

func (s *QRLoginService) findToken(ctx context.Context, token string) (*models.QRLoginToken, error) {
	record, err := s.tokens.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "login token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load login token")
	}
	return record, nil
}

func (s *QRLoginService) requireScanned(record *models.QRLoginToken) error {
	switch record.EffectiveStatus(time.Now().UTC()) {
	case models.QRStatusScanned:
		return nil
	case models.QRStatusPending:
		return appErrors.Clone(appErrors.ErrConflict, "login token has not been scanned")
	case models.QRStatusExpired:
		return appErrors.Clone(appErrors.ErrExpired, "login token expired")
	default:
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "login token already resolved")
	}
}
