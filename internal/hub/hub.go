package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/models"
	appErrors "github.com/lumapos/session-api/pkg/errors"
)

// Config tunes the connection registry.
type Config struct {
	// GracePeriod separates the force-logout announcement from transport
	// eviction, giving clients time to act on the push.
	GracePeriod time.Duration
	// ScanTimeout bounds the life of a remote-scan correlation.
	ScanTimeout time.Duration
	// SweepInterval drives the stale-correlation sweeper.
	SweepInterval time.Duration
	SendQueueSize int
}

// Hub is the per-instance registry of live push channels: QR login waiters,
// device tabs and remote-scan correlations. Connections registered here are
// only reachable from this instance; cross-instance fan-out needs an external
// pub/sub bridge and is out of scope.
//
// The mutex guards map mutation only and is never held across channel sends
// or sleeps, so one slow client cannot stall the registry.
type Hub struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	qrWaiters map[string]*Conn
	tabs      map[string]map[string]*Conn
	scans     map[string]models.RemoteScanSession
}

// New constructs a Hub.
func New(cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 200 * time.Millisecond
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &Hub{
		cfg:       cfg,
		logger:    logger,
		qrWaiters: make(map[string]*Conn),
		tabs:      make(map[string]map[string]*Conn),
		scans:     make(map[string]models.RemoteScanSession),
	}
}

// RegisterQRWaiter attaches the desktop waiting on a QR token. At most one
// waiter exists per token; a prior waiter is closed and replaced.
func (h *Hub) RegisterQRWaiter(token string) *Conn {
	conn := newConn("", "", h.cfg.SendQueueSize)

	h.mu.Lock()
	prior := h.qrWaiters[token]
	h.qrWaiters[token] = conn
	h.mu.Unlock()

	if prior != nil {
		prior.Close()
	}

	h.logger.Debug("qr waiter registered", zap.String("token", token))
	return conn
}

// UnregisterQRWaiter removes the waiter if it still owns the token slot.
func (h *Hub) UnregisterQRWaiter(token string, conn *Conn) {
	h.mu.Lock()
	if h.qrWaiters[token] == conn {
		delete(h.qrWaiters, token)
	}
	h.mu.Unlock()

	conn.Close()
}

// NotifyQRWaiter pushes an event to the desktop waiting on the token.
func (h *Hub) NotifyQRWaiter(token string, ev Event) bool {
	h.mu.Lock()
	conn := h.qrWaiters[token]
	h.mu.Unlock()

	if conn == nil {
		return false
	}
	ok := conn.Send(ev)
	if !ok {
		h.logger.Warn("qr waiter push failed", zap.String("token", token), zap.String("event", ev.Event))
	}
	return ok
}

// RegisterTab attaches one live connection for a device. Re-registering the
// same tab replaces (and closes) its own prior entry only.
func (h *Hub) RegisterTab(deviceID, tabID string) *Conn {
	conn := newConn(deviceID, tabID, h.cfg.SendQueueSize)

	h.mu.Lock()
	byTab, ok := h.tabs[deviceID]
	if !ok {
		byTab = make(map[string]*Conn)
		h.tabs[deviceID] = byTab
	}
	prior := byTab[tabID]
	byTab[tabID] = conn
	h.mu.Unlock()

	if prior != nil {
		prior.Close()
	}

	h.logger.Debug("tab registered", zap.String("device_id", deviceID), zap.String("tab_id", tabID))
	return conn
}

// UnregisterTab removes a connection if it still owns its tab slot. Dead
// sockets call through here on pump exit, so the registry self-heals.
func (h *Hub) UnregisterTab(deviceID, tabID string, conn *Conn) {
	h.mu.Lock()
	if byTab, ok := h.tabs[deviceID]; ok && byTab[tabID] == conn {
		delete(byTab, tabID)
		if len(byTab) == 0 {
			delete(h.tabs, deviceID)
		}
	}
	h.mu.Unlock()

	conn.Close()
}

// NotifyDevice pushes an event to every live tab of the device, returning the
// number of successful sends. Failed sends are logged, not retried.
func (h *Hub) NotifyDevice(deviceID string, ev Event) int {
	conns := h.snapshotTabs(deviceID)

	notified := 0
	for _, conn := range conns {
		if conn.Send(ev) {
			notified++
			continue
		}
		h.logger.Warn("device push failed",
			zap.String("device_id", deviceID),
			zap.String("tab_id", conn.TabID),
			zap.String("event", ev.Event))
	}
	return notified
}

// NotifyTab pushes an event to one specific tab of a device.
func (h *Hub) NotifyTab(deviceID, tabID string, ev Event) bool {
	h.mu.Lock()
	var conn *Conn
	if byTab, ok := h.tabs[deviceID]; ok {
		conn = byTab[tabID]
	}
	h.mu.Unlock()

	if conn == nil {
		return false
	}
	ok := conn.Send(ev)
	if !ok {
		h.logger.Warn("tab push failed",
			zap.String("device_id", deviceID),
			zap.String("tab_id", tabID),
			zap.String("event", ev.Event))
	}
	return ok
}

// EvictDevice forcibly closes every remaining connection for the device and
// removes its registry entry, returning the number of connections closed.
func (h *Hub) EvictDevice(deviceID string) int {
	h.mu.Lock()
	byTab := h.tabs[deviceID]
	delete(h.tabs, deviceID)
	h.mu.Unlock()

	for _, conn := range byTab {
		conn.Close()
	}
	return len(byTab)
}

// ForceLogoutDevice performs the announce-then-evict sequence: push a
// force_logout event to every tab, wait the grace period so clients can act
// on it, then tear the transports down. Closing first would race the push on
// some transports and leave the client unaware of why it was disconnected.
func (h *Hub) ForceLogoutDevice(deviceID, reason string) int {
	notified := h.NotifyDevice(deviceID, Event{Event: EventForceLogout, Reason: reason})
	if notified > 0 {
		time.Sleep(h.cfg.GracePeriod)
	}
	evicted := h.EvictDevice(deviceID)

	h.logger.Info("device force logout",
		zap.String("device_id", deviceID),
		zap.String("reason", reason),
		zap.Int("notified", notified),
		zap.Int("evicted", evicted))
	return notified
}

// GracePeriod exposes the configured announce-to-evict delay for callers that
// run the two phases themselves (batch cascades).
func (h *Hub) GracePeriod() time.Duration {
	return h.cfg.GracePeriod
}

// SendRemoteScanRequest stores the correlation record and pushes a scan
// request to the mobile device, failing cleanly when it has no live
// connection.
func (h *Hub) SendRemoteScanRequest(sess models.RemoteScanSession) error {
	h.mu.Lock()
	h.scans[sess.ScanID] = sess
	h.mu.Unlock()

	ev := Event{Event: EventScanRequest, ScanID: sess.ScanID}
	if h.NotifyDevice(sess.MobileDeviceID, ev) == 0 {
		h.mu.Lock()
		delete(h.scans, sess.ScanID)
		h.mu.Unlock()
		return appErrors.Clone(appErrors.ErrDeviceOffline, "mobile device has no live connection")
	}
	return nil
}

// PopScanSession atomically consumes the correlation record, checking tenant
// ownership in the same step. Exactly one caller per scan_id gets the
// session; concurrent duplicates observe an empty slot. A tenant mismatch
// does not consume the record.
func (h *Hub) PopScanSession(scanID, tenantID string) (*models.RemoteScanSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.scans[scanID]
	if !ok {
		return nil, nil
	}
	if sess.TenantID != tenantID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "scan session belongs to another tenant")
	}
	delete(h.scans, scanID)
	return &sess, nil
}

// RunScanSweeper expires stale correlation records on a fixed interval and
// notifies the still-connected desktop. Blocks until ctx is done.
func (h *Hub) RunScanSweeper(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.expireScans(now.UTC())
		}
	}
}

func (h *Hub) expireScans(now time.Time) {
	h.mu.Lock()
	var expired []models.RemoteScanSession
	for id, sess := range h.scans {
		if now.Sub(sess.RequestedAt) >= h.cfg.ScanTimeout {
			expired = append(expired, sess)
			delete(h.scans, id)
		}
	}
	h.mu.Unlock()

	for _, sess := range expired {
		h.NotifyTab(sess.DesktopDeviceID, sess.DesktopTabID, Event{Event: EventScanTimeout, ScanID: sess.ScanID})
		h.logger.Info("remote scan timed out",
			zap.String("scan_id", sess.ScanID),
			zap.String("mobile_device_id", sess.MobileDeviceID))
	}
}

// LiveConnections reports the number of registered device connections.
func (h *Hub) LiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, byTab := range h.tabs {
		total += len(byTab)
	}
	return total
}

// PendingScans reports the number of open remote-scan correlations.
func (h *Hub) PendingScans() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scans)
}

func (h *Hub) snapshotTabs(deviceID string) []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	byTab := h.tabs[deviceID]
	conns := make([]*Conn, 0, len(byTab))
	for _, conn := range byTab {
		conns = append(conns, conn)
	}
	return conns
}
