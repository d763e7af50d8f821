package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/hub"
	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

type mockDeviceRepo struct {
	mu sync.Mutex

	createFn     func(ctx context.Context, device *models.Device) error
	findFn       func(ctx context.Context, id string) (*models.Device, error)
	listFn       func(ctx context.Context, filter models.DeviceFilter) ([]models.Device, error)
	deactivateFn func(ctx context.Context, id string, now time.Time) (bool, error)

	created     []*models.Device
	deactivated []string
	touched     []string
	cleanupErr  error
	cleanupN    int64
	hashes      map[string]string
}

func (m *mockDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	m.mu.Lock()
	m.created = append(m.created, device)
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, device)
	}
	return nil
}

func (m *mockDeviceRepo) FindByID(ctx context.Context, id string) (*models.Device, error) {
	if m.findFn != nil {
		return m.findFn(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *mockDeviceRepo) ListActive(ctx context.Context, filter models.DeviceFilter) ([]models.Device, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockDeviceRepo) Deactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	m.deactivated = append(m.deactivated, id)
	m.mu.Unlock()
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, id, now)
	}
	return true, nil
}

func (m *mockDeviceRepo) UpdateRefreshTokenHash(ctx context.Context, id, hash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes == nil {
		m.hashes = map[string]string{}
	}
	m.hashes[id] = hash
	return nil
}

func (m *mockDeviceRepo) TouchActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	m.mu.Lock()
	m.touched = append(m.touched, id)
	m.mu.Unlock()
	return nil
}

func (m *mockDeviceRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.cleanupN, m.cleanupErr
}

type mockSessionAuthority struct {
	mu sync.Mutex

	slots map[string]string // "user:class" -> deviceID

	webActivations    []string
	mobileActivations []string
	revoked           []string
	getErr            error
	activateErr       error
}

func (m *mockSessionAuthority) key(userID string, class models.DeviceClass) string {
	return userID + ":" + string(class)
}

func (m *mockSessionAuthority) GetActiveDevice(ctx context.Context, userID string, class models.DeviceClass) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[m.key(userID, class)], nil
}

func (m *mockSessionAuthority) ActivateWebDevice(ctx context.Context, userID, deviceID string) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots == nil {
		m.slots = map[string]string{}
	}
	m.slots[m.key(userID, models.DeviceClassWeb)] = deviceID
	m.webActivations = append(m.webActivations, deviceID)
	return nil
}

func (m *mockSessionAuthority) ActivateMobileDevice(ctx context.Context, userID, deviceID string) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots == nil {
		m.slots = map[string]string{}
	}
	m.slots[m.key(userID, models.DeviceClassMobile)] = deviceID
	delete(m.slots, m.key(userID, models.DeviceClassWeb))
	m.mobileActivations = append(m.mobileActivations, deviceID)
	return nil
}

func (m *mockSessionAuthority) RevokeDevice(ctx context.Context, userID string, class models.DeviceClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, m.key(userID, class))
	m.revoked = append(m.revoked, m.key(userID, class))
	return nil
}

func (m *mockSessionAuthority) RevokeAll(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, m.key(userID, models.DeviceClassMobile))
	delete(m.slots, m.key(userID, models.DeviceClassWeb))
	return nil
}

type notification struct {
	DeviceID string
	Event    hub.Event
}

type mockHub struct {
	mu sync.Mutex

	notifications []notification
	evicted       []string
}

func (m *mockHub) NotifyDevice(deviceID string, ev hub.Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notification{DeviceID: deviceID, Event: ev})
	return 1
}

func (m *mockHub) EvictDevice(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted = append(m.evicted, deviceID)
	return 1
}

func (m *mockHub) notifiedDevices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.notifications))
	for _, n := range m.notifications {
		ids = append(ids, n.DeviceID)
	}
	return ids
}

func newLifecycleService(repo *mockDeviceRepo, sessions *mockSessionAuthority, h *mockHub) *DeviceLifecycleService {
	return NewDeviceLifecycleService(repo, sessions, h, nil, nil, zap.NewNop(), DeviceLifecycleConfig{
		WebDeviceTTL:    time.Hour,
		GracePeriod:     time.Millisecond,
		RegisterRetries: 2,
		RegisterBackoff: time.Millisecond,
	})
}

func activeDevice(id, userID string, class models.DeviceClass) models.Device {
	return models.Device{
		ID:       id,
		UserID:   userID,
		TenantID: "tenant-1",
		Class:    class,
		IsActive: true,
	}
}

func TestRegisterWebDisplacesAllWebDevices(t *testing.T) {
	repo := &mockDeviceRepo{
		listFn: func(_ context.Context, filter models.DeviceFilter) ([]models.Device, error) {
			assert.Equal(t, []models.DeviceClass{models.DeviceClassWeb}, filter.Classes)
			assert.Equal(t, "tenant-1", filter.TenantID)
			return []models.Device{
				activeDevice("web-1", "user-1", models.DeviceClassWeb),
				activeDevice("web-2", "user-1", models.DeviceClassWeb),
			}, nil
		},
	}
	sessions := &mockSessionAuthority{}
	h := &mockHub{}
	svc := newLifecycleService(repo, sessions, h)

	device, err := svc.RegisterDevice(context.Background(), models.RegisterDeviceInput{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Class:    models.DeviceClassWeb,
	})
	require.NoError(t, err)

	assert.Equal(t, models.DeviceClassWeb, device.Class)
	assert.False(t, device.IsPrimary)
	require.NotNil(t, device.ExpiresAt)
	assert.ElementsMatch(t, []string{"web-1", "web-2"}, h.notifiedDevices())
	for _, n := range h.notifications {
		assert.Equal(t, hub.EventForceLogout, n.Event.Event)
		assert.Equal(t, hub.ReasonNewWebLogin, n.Event.Reason)
	}
	assert.ElementsMatch(t, []string{"web-1", "web-2"}, repo.deactivated)
	assert.ElementsMatch(t, []string{"web-1", "web-2"}, h.evicted)
	assert.Equal(t, []string{device.ID}, sessions.webActivations)
}

func TestRegisterWebRetriesOnWriteConflict(t *testing.T) {
	queries := 0
	repo := &mockDeviceRepo{}
	repo.listFn = func(context.Context, models.DeviceFilter) ([]models.Device, error) {
		queries++
		if queries == 1 {
			return []models.Device{activeDevice("web-old", "user-1", models.DeviceClassWeb)}, nil
		}
		// The concurrent login that won the race is now the active device.
		return []models.Device{activeDevice("web-racer", "user-1", models.DeviceClassWeb)}, nil
	}
	repo.deactivateFn = func(_ context.Context, id string, _ time.Time) (bool, error) {
		// The original device was already deactivated by the other login.
		return id != "web-old", nil
	}
	sessions := &mockSessionAuthority{}
	h := &mockHub{}
	svc := newLifecycleService(repo, sessions, h)

	device, err := svc.RegisterDevice(context.Background(), models.RegisterDeviceInput{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Class:    models.DeviceClassWeb,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, queries)
	assert.Contains(t, repo.deactivated, "web-racer")
	assert.Equal(t, []string{device.ID}, sessions.webActivations)
}

func TestRegisterWebExhaustsRetryBudget(t *testing.T) {
	repo := &mockDeviceRepo{
		listFn: func(context.Context, models.DeviceFilter) ([]models.Device, error) {
			return []models.Device{activeDevice("web-1", "user-1", models.DeviceClassWeb)}, nil
		},
		deactivateFn: func(context.Context, string, time.Time) (bool, error) {
			return false, nil
		},
	}
	svc := newLifecycleService(repo, &mockSessionAuthority{}, &mockHub{})

	_, err := svc.RegisterDevice(context.Background(), models.RegisterDeviceInput{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Class:    models.DeviceClassWeb,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	// Initial attempt plus two retries, each committing the one revocation.
	assert.Len(t, repo.deactivated, 3)
	assert.Empty(t, repo.created)
}

func TestRegisterMobileCascadesToWeb(t *testing.T) {
	repo := &mockDeviceRepo{
		listFn: func(_ context.Context, filter models.DeviceFilter) ([]models.Device, error) {
			assert.Empty(t, filter.TenantID)
			assert.Equal(t, []models.DeviceClass{models.DeviceClassMobile, models.DeviceClassWeb}, filter.Classes)
			return []models.Device{
				activeDevice("mobile-old", "user-1", models.DeviceClassMobile),
				activeDevice("web-1", "user-1", models.DeviceClassWeb),
			}, nil
		},
	}
	sessions := &mockSessionAuthority{slots: map[string]string{"user-1:web": "web-1"}}
	h := &mockHub{}
	svc := newLifecycleService(repo, sessions, h)

	device, err := svc.RegisterDevice(context.Background(), models.RegisterDeviceInput{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Class:    models.DeviceClassMobile,
	})
	require.NoError(t, err)

	assert.True(t, device.IsPrimary)
	assert.Nil(t, device.ExpiresAt)

	reasons := map[string]string{}
	for _, n := range h.notifications {
		reasons[n.DeviceID] = n.Event.Reason
	}
	assert.Equal(t, hub.ReasonNewMobileLogin, reasons["mobile-old"])
	assert.Equal(t, hub.ReasonWebEndedByMobile, reasons["web-1"])

	assert.ElementsMatch(t, []string{"mobile-old", "web-1"}, repo.deactivated)
	assert.Equal(t, []string{device.ID}, sessions.mobileActivations)
	// Mobile activation clears the web slot in the same commit.
	assert.Empty(t, sessions.slots["user-1:web"])
}

func TestRegisterMobileCascadeSurvivesDeactivationFailure(t *testing.T) {
	repo := &mockDeviceRepo{
		listFn: func(context.Context, models.DeviceFilter) ([]models.Device, error) {
			return []models.Device{
				activeDevice("mobile-old", "user-1", models.DeviceClassMobile),
				activeDevice("web-1", "user-1", models.DeviceClassWeb),
			}, nil
		},
		deactivateFn: func(_ context.Context, id string, _ time.Time) (bool, error) {
			if id == "mobile-old" {
				return false, assert.AnError
			}
			return true, nil
		},
	}
	sessions := &mockSessionAuthority{}
	h := &mockHub{}
	svc := newLifecycleService(repo, sessions, h)

	device, err := svc.RegisterDevice(context.Background(), models.RegisterDeviceInput{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Class:    models.DeviceClassMobile,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{device.ID}, sessions.mobileActivations)
	assert.Contains(t, repo.deactivated, "web-1")
}

func TestLogoutDeviceUnknown(t *testing.T) {
	svc := newLifecycleService(&mockDeviceRepo{}, &mockSessionAuthority{}, &mockHub{})

	err := svc.LogoutDevice(context.Background(), "missing", false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestLogoutDeviceAlreadyInactive(t *testing.T) {
	inactive := activeDevice("web-1", "user-1", models.DeviceClassWeb)
	inactive.IsActive = false
	repo := &mockDeviceRepo{
		findFn: func(context.Context, string) (*models.Device, error) {
			return &inactive, nil
		},
	}
	svc := newLifecycleService(repo, &mockSessionAuthority{}, &mockHub{})

	err := svc.LogoutDevice(context.Background(), "web-1", false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyProcessed))
}

func TestLogoutDeviceReleasesOwnedSlotOnly(t *testing.T) {
	device := activeDevice("web-1", "user-1", models.DeviceClassWeb)
	repo := &mockDeviceRepo{
		findFn: func(context.Context, string) (*models.Device, error) {
			d := device
			return &d, nil
		},
	}
	// The slot already belongs to a newer login.
	sessions := &mockSessionAuthority{slots: map[string]string{"user-1:web": "web-newer"}}
	h := &mockHub{}
	svc := newLifecycleService(repo, sessions, h)

	require.NoError(t, svc.LogoutDevice(context.Background(), "web-1", false))

	assert.Empty(t, sessions.revoked)
	assert.Equal(t, "web-newer", sessions.slots["user-1:web"])
	assert.Equal(t, []string{"web-1"}, repo.deactivated)
	assert.Equal(t, []string{"web-1"}, h.evicted)
}

func TestLogoutPrimaryMobileCascades(t *testing.T) {
	mobile := activeDevice("mobile-1", "user-1", models.DeviceClassMobile)
	mobile.IsPrimary = true
	repo := &mockDeviceRepo{
		findFn: func(context.Context, string) (*models.Device, error) {
			d := mobile
			return &d, nil
		},
		listFn: func(_ context.Context, filter models.DeviceFilter) ([]models.Device, error) {
			assert.Equal(t, []models.DeviceClass{models.DeviceClassWeb}, filter.Classes)
			return []models.Device{activeDevice("web-1", "user-1", models.DeviceClassWeb)}, nil
		},
	}
	sessions := &mockSessionAuthority{slots: map[string]string{
		"user-1:mobile": "mobile-1",
		"user-1:web":    "web-1",
	}}
	h := &mockHub{}
	svc := newLifecycleService(repo, sessions, h)

	require.NoError(t, svc.LogoutDevice(context.Background(), "mobile-1", true))

	// Web devices go first, then the mobile device itself.
	assert.Equal(t, []string{"web-1", "mobile-1"}, repo.deactivated)
	assert.ElementsMatch(t, []string{"web-1", "mobile-1"}, h.evicted)
	assert.Empty(t, sessions.slots)
}

func TestLogoutAllWebDevicesCountsCommitted(t *testing.T) {
	repo := &mockDeviceRepo{
		listFn: func(context.Context, models.DeviceFilter) ([]models.Device, error) {
			return []models.Device{
				activeDevice("web-1", "user-1", models.DeviceClassWeb),
				activeDevice("web-2", "user-1", models.DeviceClassWeb),
			}, nil
		},
		deactivateFn: func(_ context.Context, id string, _ time.Time) (bool, error) {
			return id == "web-1", nil
		},
	}
	h := &mockHub{}
	svc := newLifecycleService(repo, &mockSessionAuthority{}, h)

	count, err := svc.LogoutAllWebDevices(context.Background(), "user-1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	for _, n := range h.notifications {
		assert.Equal(t, hub.ReasonRemoteLogout, n.Event.Reason)
	}
	assert.ElementsMatch(t, []string{"web-1", "web-2"}, h.evicted)
}

func TestCleanupExpiredDevicesSwallowsErrors(t *testing.T) {
	repo := &mockDeviceRepo{cleanupErr: assert.AnError}
	svc := newLifecycleService(repo, &mockSessionAuthority{}, &mockHub{})

	assert.Equal(t, int64(0), svc.CleanupExpiredDevices(context.Background()))

	repo.cleanupErr = nil
	repo.cleanupN = 4
	assert.Equal(t, int64(4), svc.CleanupExpiredDevices(context.Background()))
}

func TestUpdateDeviceActivityNeverFails(t *testing.T) {
	repo := &mockDeviceRepo{}
	svc := newLifecycleService(repo, &mockSessionAuthority{}, &mockHub{})

	svc.UpdateDeviceActivity(context.Background(), "web-1")
	assert.Equal(t, []string{"web-1"}, repo.touched)
}
