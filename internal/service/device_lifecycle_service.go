package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/hub"
	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

type lifecycleDeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	FindByID(ctx context.Context, id string) (*models.Device, error)
	ListActive(ctx context.Context, filter models.DeviceFilter) ([]models.Device, error)
	Deactivate(ctx context.Context, id string, now time.Time) (bool, error)
	UpdateRefreshTokenHash(ctx context.Context, id, hash string, now time.Time) error
	TouchActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionAuthority interface {
	GetActiveDevice(ctx context.Context, userID string, class models.DeviceClass) (string, error)
	ActivateWebDevice(ctx context.Context, userID, deviceID string) error
	ActivateMobileDevice(ctx context.Context, userID, deviceID string) error
	RevokeDevice(ctx context.Context, userID string, class models.DeviceClass) error
	RevokeAll(ctx context.Context, userID string) error
}

type connectionHub interface {
	NotifyDevice(deviceID string, ev hub.Event) int
	EvictDevice(deviceID string) int
}

// DeviceLifecycleConfig tunes registration and logout policy.
type DeviceLifecycleConfig struct {
	WebDeviceTTL    time.Duration
	GracePeriod     time.Duration
	RegisterRetries int
	RegisterBackoff time.Duration
}

// DeviceLifecycleService orchestrates who may stay logged in: it finds
// conflicting devices on registration, announces their revocation over the
// hub, deactivates them in the device store and installs the winner in the
// session authority.
type DeviceLifecycleService struct {
	repo      lifecycleDeviceRepository
	sessions  sessionAuthority
	hub       connectionHub
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	config    DeviceLifecycleConfig
}

// NewDeviceLifecycleService constructs a DeviceLifecycleService instance.
func NewDeviceLifecycleService(
	repo lifecycleDeviceRepository,
	sessions sessionAuthority,
	connections connectionHub,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	config DeviceLifecycleConfig,
) *DeviceLifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.WebDeviceTTL <= 0 {
		config.WebDeviceTTL = 30 * 24 * time.Hour
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = 200 * time.Millisecond
	}
	if config.RegisterRetries <= 0 {
		config.RegisterRetries = 2
	}
	if config.RegisterBackoff <= 0 {
		config.RegisterBackoff = 250 * time.Millisecond
	}
	return &DeviceLifecycleService{
		repo:      repo,
		sessions:  sessions,
		hub:       connections,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		config:    config,
	}
}

// RegisterDevice creates a device record for a fresh login, evicting
// whatever the class dominance rule says must go.
func (s *DeviceLifecycleService) RegisterDevice(ctx context.Context, input models.RegisterDeviceInput) (*models.Device, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid device registration payload")
	}

	switch input.Class {
	case models.DeviceClassMobile:
		return s.registerMobile(ctx, input)
	case models.DeviceClassWeb:
		return s.registerWeb(ctx, input)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown device class")
	}
}

// registerWeb enforces the single global web session: every active web
// device of the user+tenant is displaced regardless of browser. Conflicting
// writes are resolved by a bounded optimistic retry with re-query.
func (s *DeviceLifecycleService) registerWeb(ctx context.Context, input models.RegisterDeviceInput) (*models.Device, error) {
	filter := models.DeviceFilter{
		UserID:   input.UserID,
		TenantID: input.TenantID,
		Classes:  []models.DeviceClass{models.DeviceClassWeb},
	}

	existing, err := s.repo.ListActive(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query active web devices")
	}

	s.announce(existing, func(models.Device) string { return hub.ReasonNewWebLogin })

	for attempt := 0; attempt <= s.config.RegisterRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.config.RegisterBackoff)
			// The conflicting login may have changed the active set.
			existing, err = s.repo.ListActive(ctx, filter)
			if err != nil {
				s.logger.Warn("re-query of active web devices failed", zap.Error(err))
				continue
			}
		}

		if !s.commitRevocations(ctx, existing) {
			s.logger.Warn("web registration lost a revocation race, retrying",
				zap.String("user_id", input.UserID),
				zap.Int("attempt", attempt))
			continue
		}

		device := s.newDevice(input)
		if err := s.repo.Create(ctx, device); err != nil {
			s.logger.Warn("device create failed, retrying", zap.Error(err), zap.Int("attempt", attempt))
			continue
		}
		if err := s.sessions.ActivateWebDevice(ctx, input.UserID, device.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to install web session")
		}

		s.metrics.RecordLogin(string(models.DeviceClassWeb))
		s.logger.Info("web device registered",
			zap.String("user_id", input.UserID),
			zap.String("device_id", device.ID),
			zap.Int("displaced", len(existing)))
		return device, nil
	}

	return nil, appErrors.Clone(appErrors.ErrConflict, "device registration raced a concurrent login; retry budget exhausted")
}

// registerMobile cascades to both classes: a mobile login displaces the old
// mobile device and every web session of the user. All notifications go out
// before any deactivation write begins, and each deactivation is isolated.
func (s *DeviceLifecycleService) registerMobile(ctx context.Context, input models.RegisterDeviceInput) (*models.Device, error) {
	existing, err := s.repo.ListActive(ctx, models.DeviceFilter{
		UserID:  input.UserID,
		Classes: models.DeviceClassMobile.CascadeClasses(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query active devices")
	}

	s.announce(existing, func(d models.Device) string {
		if d.Class == models.DeviceClassWeb {
			return hub.ReasonWebEndedByMobile
		}
		return hub.ReasonNewMobileLogin
	})

	now := time.Now().UTC()
	for _, old := range existing {
		if _, err := s.repo.Deactivate(ctx, old.ID, now); err != nil {
			// Isolated: one stuck record must not block the cascade.
			s.logger.Warn("failed to deactivate device during mobile cascade",
				zap.String("device_id", old.ID), zap.Error(err))
		}
		s.hub.EvictDevice(old.ID)
	}

	device := s.newDevice(input)
	if err := s.repo.Create(ctx, device); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create mobile device")
	}
	if err := s.sessions.ActivateMobileDevice(ctx, input.UserID, device.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to install mobile session")
	}

	s.metrics.RecordLogin(string(models.DeviceClassMobile))
	s.logger.Info("mobile device registered",
		zap.String("user_id", input.UserID),
		zap.String("device_id", device.ID),
		zap.Int("displaced", len(existing)))
	return device, nil
}

// LogoutDevice notifies and deactivates one device. When the target is the
// primary mobile device and cascade is set, every web session goes first
// (without further cascading).
func (s *DeviceLifecycleService) LogoutDevice(ctx context.Context, deviceID string, cascade bool) error {
	device, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "device not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load device")
	}
	if !device.IsActive {
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "device already logged out")
	}

	if cascade && device.IsPrimary && device.Class == models.DeviceClassMobile {
		if _, err := s.LogoutAllWebDevices(ctx, device.UserID, device.TenantID); err != nil {
			s.logger.Warn("cascade web logout failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}

	notified := s.hub.NotifyDevice(device.ID, hub.Event{Event: hub.EventForceLogout, Reason: hub.ReasonLoggedOut})
	if notified > 0 {
		time.Sleep(s.config.GracePeriod)
	}
	s.metrics.RecordForceLogout(hub.ReasonLoggedOut, notified)

	now := time.Now().UTC()
	if _, err := s.repo.Deactivate(ctx, device.ID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate device")
	}
	s.releaseSessionSlot(ctx, device)
	s.hub.EvictDevice(device.ID)

	s.logger.Info("device logged out",
		zap.String("device_id", device.ID),
		zap.String("user_id", device.UserID),
		zap.Bool("cascade", cascade))
	return nil
}

// LogoutAllWebDevices notifies then deactivates every active web device of
// the user+tenant; a mobile client uses it to remote-kill web sessions.
func (s *DeviceLifecycleService) LogoutAllWebDevices(ctx context.Context, userID, tenantID string) (int, error) {
	devices, err := s.repo.ListActive(ctx, models.DeviceFilter{
		UserID:   userID,
		TenantID: tenantID,
		Classes:  []models.DeviceClass{models.DeviceClassWeb},
	})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query active web devices")
	}

	s.announce(devices, func(models.Device) string { return hub.ReasonRemoteLogout })

	now := time.Now().UTC()
	count := 0
	for _, device := range devices {
		ok, err := s.repo.Deactivate(ctx, device.ID, now)
		if err != nil {
			s.logger.Warn("failed to deactivate web device",
				zap.String("device_id", device.ID), zap.Error(err))
			continue
		}
		if ok {
			count++
		}
		s.releaseSessionSlot(ctx, &device)
		s.hub.EvictDevice(device.ID)
	}

	s.logger.Info("web devices logged out",
		zap.String("user_id", userID),
		zap.Int("count", count))
	return count, nil
}

// UpdateDeviceActivity bumps the device's activity clock. Never fails: a
// missed housekeeping write must not abort the caller's request.
func (s *DeviceLifecycleService) UpdateDeviceActivity(ctx context.Context, deviceID string) {
	if err := s.repo.TouchActivity(ctx, deviceID, time.Now().UTC(), s.config.WebDeviceTTL); err != nil {
		s.logger.Warn("failed to update device activity", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// CleanupExpiredDevices soft-deactivates devices past their expiry. Never
// fails; returns the number cleaned.
func (s *DeviceLifecycleService) CleanupExpiredDevices(ctx context.Context) int64 {
	count, err := s.repo.DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Warn("expired device cleanup failed", zap.Error(err))
		return 0
	}
	if count > 0 {
		s.logger.Info("expired devices cleaned", zap.Int64("count", count))
	}
	return count
}

// PersistRefreshTokenHash stores the credential hash on the device record.
func (s *DeviceLifecycleService) PersistRefreshTokenHash(ctx context.Context, deviceID, hash string) error {
	if err := s.repo.UpdateRefreshTokenHash(ctx, deviceID, hash, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist credential hash")
	}
	return nil
}

// ListActiveDevices returns the user's active devices for the operational view.
func (s *DeviceLifecycleService) ListActiveDevices(ctx context.Context, userID, tenantID string) ([]models.Device, error) {
	devices, err := s.repo.ListActive(ctx, models.DeviceFilter{UserID: userID, TenantID: tenantID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list devices")
	}
	return devices, nil
}

// FindDevice loads one device record.
func (s *DeviceLifecycleService) FindDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "device not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load device")
	}
	return device, nil
}

// announce is the first phase of announce-then-evict: best-effort broadcast
// to every device in the batch, then one grace period so clients can react
// before any deactivation write begins.
func (s *DeviceLifecycleService) announce(devices []models.Device, reasonFor func(models.Device) string) {
	if len(devices) == 0 {
		return
	}
	for _, device := range devices {
		reason := reasonFor(device)
		notified := s.hub.NotifyDevice(device.ID, hub.Event{Event: hub.EventForceLogout, Reason: reason})
		s.metrics.RecordForceLogout(reason, notified)
	}
	time.Sleep(s.config.GracePeriod)
}

// commitRevocations is the second phase: persist every deactivation and tear
// down the transports. It reports false when a device was already inactive —
// the signal that a concurrent login won the race.
func (s *DeviceLifecycleService) commitRevocations(ctx context.Context, devices []models.Device) bool {
	now := time.Now().UTC()
	clean := true
	for _, device := range devices {
		ok, err := s.repo.Deactivate(ctx, device.ID, now)
		if err != nil {
			s.logger.Warn("device deactivation failed",
				zap.String("device_id", device.ID), zap.Error(err))
			clean = false
			continue
		}
		if !ok {
			clean = false
		}
		s.hub.EvictDevice(device.ID)
	}
	return clean
}

func (s *DeviceLifecycleService) newDevice(input models.RegisterDeviceInput) *models.Device {
	now := time.Now().UTC()
	device := &models.Device{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		TenantID:     input.TenantID,
		Class:        input.Class,
		BrowserID:    input.BrowserID,
		Name:         input.Name,
		Fingerprint:  input.Fingerprint,
		IsActive:     true,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Class == models.DeviceClassMobile {
		device.IsPrimary = true
	} else {
		expires := now.Add(s.config.WebDeviceTTL)
		device.ExpiresAt = &expires
	}
	return device
}

// releaseSessionSlot clears the authority slot only while this device still
// owns it; a slot already handed to a newer login is left alone.
func (s *DeviceLifecycleService) releaseSessionSlot(ctx context.Context, device *models.Device) {
	current, err := s.sessions.GetActiveDevice(ctx, device.UserID, device.Class)
	if err != nil {
		s.logger.Warn("failed to read session slot during logout",
			zap.String("device_id", device.ID), zap.Error(err))
		return
	}
	if current != device.ID {
		return
	}
	if err := s.sessions.RevokeDevice(ctx, device.UserID, device.Class); err != nil {
		s.logger.Warn("failed to revoke session slot",
			zap.String("device_id", device.ID), zap.Error(err))
	}
}
