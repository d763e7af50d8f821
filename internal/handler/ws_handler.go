package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/hub"
	"github.com/lumapos/session-api/internal/middleware"
	"github.com/lumapos/session-api/internal/models"
	"github.com/lumapos/session-api/internal/service"
	appErrors "github.com/lumapos/session-api/pkg/errors"
	"github.com/lumapos/session-api/pkg/response"
)

// WSConfig tunes the socket pumps.
type WSConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// WSHandler upgrades HTTP requests into hub connections and runs the
// transport pumps. The hub itself never touches a socket; everything
// network-shaped lives here.
type WSHandler struct {
	hub      *hub.Hub
	tokens   *service.TokenService
	sessions middleware.SessionChecker
	qr       *service.QRLoginService
	logger   *zap.Logger
	config   WSConfig
}

// NewWSHandler creates a new handler.
func NewWSHandler(h *hub.Hub, tokens *service.TokenService, sessions middleware.SessionChecker, qr *service.QRLoginService, logger *zap.Logger, config WSConfig) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	return &WSHandler{hub: h, tokens: tokens, sessions: sessions, qr: qr, logger: logger, config: config}
}

// Device godoc
// @Summary Device push socket
// @Description Live push channel for an authenticated device; one connection per browser tab
// @Tags WebSocket
// @Param token query string true "Access token"
// @Param tab_id query string false "Tab ID, generated when absent"
// @Success 101 {string} string "Switching Protocols"
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *WSHandler) Device(c *gin.Context) {
	// Browsers cannot set an Authorization header on a websocket upgrade.
	claims, err := h.tokens.ValidateToken(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !claims.HasDeviceClaims() {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token is not bound to a device"))
		return
	}
	if !h.sessions.IsSessionValid(c.Request.Context(), claims.UserID, claims.DeviceClass, claims.DeviceID) {
		response.Error(c, appErrors.ErrSessionReplaced)
		return
	}

	tabID := c.Query("tab_id")
	if tabID == "" {
		tabID = uuid.NewString()
	}

	sock, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	conn := h.hub.RegisterTab(claims.DeviceID, tabID)
	defer h.hub.UnregisterTab(claims.DeviceID, tabID, conn)

	h.logger.Info("device socket opened",
		zap.String("device_id", claims.DeviceID),
		zap.String("tab_id", tabID))
	h.runPumps(c.Request.Context(), sock, conn)
	h.logger.Info("device socket closed",
		zap.String("device_id", claims.DeviceID),
		zap.String("tab_id", tabID))
}

// QRWaiter godoc
// @Summary QR login wait socket
// @Description Anonymous desktop channel that receives scanned/approved/rejected for one QR token
// @Tags WebSocket
// @Param token path string true "QR token"
// @Success 101 {string} string "Switching Protocols"
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /ws/qr/{token} [get]
func (h *WSHandler) QRWaiter(c *gin.Context) {
	token := c.Param("token")
	status, err := h.qr.CheckStatus(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	if status.Status == models.QRStatusExpired {
		response.Error(c, appErrors.Clone(appErrors.ErrExpired, "login token expired"))
		return
	}

	sock, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	conn := h.hub.RegisterQRWaiter(token)
	defer h.hub.UnregisterQRWaiter(token, conn)

	h.runPumps(c.Request.Context(), sock, conn)
}

// runPumps drains hub events onto the socket, pings on an interval and
// watches the peer for disconnect. Returns when either side goes away.
func (h *WSHandler) runPumps(parent context.Context, sock *websocket.Conn, conn *hub.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer func() { _ = sock.Close(websocket.StatusNormalClosure, "bye") }()
	defer conn.Close()

	// Reader exists only to observe the close; clients talk over REST.
	go func() {
		defer cancel()
		for {
			if _, _, err := sock.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case ev := <-conn.Events():
			if err := h.writeEvent(ctx, sock, ev); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := h.writeEvent(ctx, sock, hub.Event{Event: hub.EventPing}); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) writeEvent(parent context.Context, sock *websocket.Conn, ev hub.Event) error {
	ctx, cancel := context.WithTimeout(parent, h.config.WriteTimeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return sock.Write(ctx, websocket.MessageText, b)
}
