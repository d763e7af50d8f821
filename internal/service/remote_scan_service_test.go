package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/hub"
	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

type tabNotification struct {
	DeviceID string
	TabID    string
	Event    hub.Event
}

type mockScanHub struct {
	sendErr  error
	sessions map[string]*models.RemoteScanSession

	sent     []models.RemoteScanSession
	notified []tabNotification
}

func (m *mockScanHub) SendRemoteScanRequest(sess models.RemoteScanSession) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	if m.sessions == nil {
		m.sessions = map[string]*models.RemoteScanSession{}
	}
	s := sess
	m.sessions[sess.ScanID] = &s
	m.sent = append(m.sent, sess)
	return nil
}

func (m *mockScanHub) PopScanSession(scanID, tenantID string) (*models.RemoteScanSession, error) {
	sess, ok := m.sessions[scanID]
	if !ok {
		return nil, nil
	}
	if sess.TenantID != tenantID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "scan session belongs to another tenant")
	}
	delete(m.sessions, scanID)
	return sess, nil
}

func (m *mockScanHub) NotifyTab(deviceID, tabID string, ev hub.Event) bool {
	m.notified = append(m.notified, tabNotification{DeviceID: deviceID, TabID: tabID, Event: ev})
	return true
}

type mockMobileSessions struct {
	deviceID string
	err      error
}

func (m *mockMobileSessions) GetActiveDevice(context.Context, string, models.DeviceClass) (string, error) {
	return m.deviceID, m.err
}

func newScanService(h *mockScanHub, sessions *mockMobileSessions) *RemoteScanService {
	return NewRemoteScanService(h, sessions, nil, zap.NewNop())
}

func TestRequestScanRoutesToActiveMobile(t *testing.T) {
	h := &mockScanHub{}
	svc := newScanService(h, &mockMobileSessions{deviceID: "mobile-1"})

	sess, err := svc.RequestScan(context.Background(), "user-1", "tenant-1", "web-1", "tab-1")
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ScanID)
	assert.Equal(t, "mobile-1", sess.MobileDeviceID)
	assert.Equal(t, "web-1", sess.DesktopDeviceID)
	assert.Equal(t, "tab-1", sess.DesktopTabID)
	require.Len(t, h.sent, 1)
}

func TestRequestScanWithoutMobileSession(t *testing.T) {
	svc := newScanService(&mockScanHub{}, &mockMobileSessions{deviceID: ""})

	_, err := svc.RequestScan(context.Background(), "user-1", "tenant-1", "web-1", "tab-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRequestScanStoreUnavailable(t *testing.T) {
	svc := newScanService(&mockScanHub{}, &mockMobileSessions{err: assert.AnError})

	_, err := svc.RequestScan(context.Background(), "user-1", "tenant-1", "web-1", "tab-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrStoreUnavailable))
}

func TestReportResultDeliversToRequestingTab(t *testing.T) {
	h := &mockScanHub{}
	svc := newScanService(h, &mockMobileSessions{deviceID: "mobile-1"})

	sess, err := svc.RequestScan(context.Background(), "user-1", "tenant-1", "web-1", "tab-1")
	require.NoError(t, err)

	result := models.RemoteScanResult{Barcode: "12345", Product: json.RawMessage(`{"name":"beans"}`)}
	require.NoError(t, svc.ReportResult(context.Background(), sess.ScanID, "tenant-1", result))

	require.Len(t, h.notified, 1)
	n := h.notified[0]
	assert.Equal(t, "web-1", n.DeviceID)
	assert.Equal(t, "tab-1", n.TabID)
	assert.Equal(t, hub.EventScanResult, n.Event.Event)
	assert.Equal(t, "12345", n.Event.Barcode)

	// The correlation is consumed; a second report has nothing to resolve.
	err = svc.ReportResult(context.Background(), sess.ScanID, "tenant-1", result)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestReportResultTenantMismatch(t *testing.T) {
	h := &mockScanHub{}
	svc := newScanService(h, &mockMobileSessions{deviceID: "mobile-1"})

	sess, err := svc.RequestScan(context.Background(), "user-1", "tenant-1", "web-1", "tab-1")
	require.NoError(t, err)

	err = svc.ReportResult(context.Background(), sess.ScanID, "tenant-2", models.RemoteScanResult{Barcode: "1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	// Mismatch does not consume; the rightful tenant still resolves it.
	require.NoError(t, svc.ReportResult(context.Background(), sess.ScanID, "tenant-1", models.RemoteScanResult{Barcode: "1"}))
}

func TestReportErrorForwardsMessage(t *testing.T) {
	h := &mockScanHub{}
	svc := newScanService(h, &mockMobileSessions{deviceID: "mobile-1"})

	sess, err := svc.RequestScan(context.Background(), "user-1", "tenant-1", "web-1", "tab-1")
	require.NoError(t, err)

	require.NoError(t, svc.ReportError(context.Background(), sess.ScanID, "tenant-1", "camera unavailable"))

	require.Len(t, h.notified, 1)
	assert.Equal(t, hub.EventScanError, h.notified[0].Event.Event)
	assert.Equal(t, "camera unavailable", h.notified[0].Event.Error)
}

func TestCancelConsumesSession(t *testing.T) {
	h := &mockScanHub{}
	svc := newScanService(h, &mockMobileSessions{deviceID: "mobile-1"})

	sess, err := svc.RequestScan(context.Background(), "user-1", "tenant-1", "web-1", "tab-1")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), sess.ScanID, "tenant-1"))
	require.Len(t, h.notified, 1)
	assert.Equal(t, hub.EventScanCancelled, h.notified[0].Event.Event)
	assert.Empty(t, h.sessions)
}
