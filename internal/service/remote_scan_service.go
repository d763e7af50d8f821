package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/hub"
	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

type scanHub interface {
	SendRemoteScanRequest(sess models.RemoteScanSession) error
	PopScanSession(scanID, tenantID string) (*models.RemoteScanSession, error)
	NotifyTab(deviceID, tabID string, ev hub.Event) bool
}

type mobileSessionReader interface {
	GetActiveDevice(ctx context.Context, userID string, class models.DeviceClass) (string, error)
}

const (
	scanOutcomeRequested = "requested"
	scanOutcomeCompleted = "completed"
	scanOutcomeFailed    = "failed"
	scanOutcomeCancelled = "cancelled"
)

// RemoteScanService routes barcode scan requests from a desktop tab to the
// user's active mobile device and the result back to the exact tab that
// asked. Correlations live in the hub and are consumed exactly once.
type RemoteScanService struct {
	hub      scanHub
	sessions mobileSessionReader
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewRemoteScanService constructs a RemoteScanService instance.
func NewRemoteScanService(h scanHub, sessions mobileSessionReader, metrics *MetricsService, logger *zap.Logger) *RemoteScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteScanService{hub: h, sessions: sessions, metrics: metrics, logger: logger}
}

// RequestScan opens a scan correlation and pushes the request to the user's
// active mobile device. The mobile device must hold the session slot and
// have a live connection.
func (s *RemoteScanService) RequestScan(ctx context.Context, userID, tenantID, desktopDeviceID, tabID string) (*models.RemoteScanSession, error) {
	mobileDeviceID, err := s.sessions.GetActiveDevice(ctx, userID, models.DeviceClassMobile)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to resolve active mobile device")
	}
	if mobileDeviceID == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active mobile device")
	}

	sess := models.RemoteScanSession{
		ScanID:          uuid.NewString(),
		TenantID:        tenantID,
		MobileDeviceID:  mobileDeviceID,
		DesktopDeviceID: desktopDeviceID,
		DesktopTabID:    tabID,
		RequestedAt:     time.Now().UTC(),
	}
	if err := s.hub.SendRemoteScanRequest(sess); err != nil {
		return nil, err
	}

	s.metrics.RecordScanOutcome(scanOutcomeRequested)
	s.logger.Info("remote scan requested",
		zap.String("scan_id", sess.ScanID),
		zap.String("mobile_device_id", mobileDeviceID),
		zap.String("desktop_tab_id", tabID))
	return &sess, nil
}

// ReportResult consumes the correlation and delivers the scanned barcode to
// the originating desktop tab. A second report of the same scan fails.
func (s *RemoteScanService) ReportResult(ctx context.Context, scanID, tenantID string, result models.RemoteScanResult) error {
	sess, err := s.popSession(scanID, tenantID)
	if err != nil {
		return err
	}

	delivered := s.hub.NotifyTab(sess.DesktopDeviceID, sess.DesktopTabID, hub.Event{
		Event:   hub.EventScanResult,
		ScanID:  scanID,
		Barcode: result.Barcode,
		Product: result.Product,
	})
	s.metrics.RecordScanOutcome(scanOutcomeCompleted)
	if !delivered {
		// The tab went away between request and result; the scan is still
		// consumed so a retry cannot double-deliver.
		s.logger.Warn("scan result had no live tab to deliver to",
			zap.String("scan_id", scanID))
	}
	return nil
}

// ReportError consumes the correlation and forwards the mobile-side failure.
func (s *RemoteScanService) ReportError(ctx context.Context, scanID, tenantID, message string) error {
	sess, err := s.popSession(scanID, tenantID)
	if err != nil {
		return err
	}

	s.hub.NotifyTab(sess.DesktopDeviceID, sess.DesktopTabID, hub.Event{
		Event:  hub.EventScanError,
		ScanID: scanID,
		Error:  message,
	})
	s.metrics.RecordScanOutcome(scanOutcomeFailed)
	return nil
}

// Cancel consumes the correlation on behalf of the desktop side.
func (s *RemoteScanService) Cancel(ctx context.Context, scanID, tenantID string) error {
	sess, err := s.popSession(scanID, tenantID)
	if err != nil {
		return err
	}

	s.hub.NotifyTab(sess.DesktopDeviceID, sess.DesktopTabID, hub.Event{
		Event:  hub.EventScanCancelled,
		ScanID: scanID,
	})
	s.metrics.RecordScanOutcome(scanOutcomeCancelled)
	return nil
}

func (s *RemoteScanService) popSession(scanID, tenantID string) (*models.RemoteScanSession, error) {
	sess, err := s.hub.PopScanSession(scanID, tenantID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scan session not found or already resolved")
	}
	return sess, nil
}
