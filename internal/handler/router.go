package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Auth   *AuthHandler
	Device *DeviceHandler
	QR     *QRHandler
	Scan   *ScanHandler
	WS     *WSHandler
}

// RegisterRoutes mounts the API surface under /api/v1. The QR generate,
// status and waiter-socket endpoints are anonymous; everything else sits
// behind the auth gate.
func RegisterRoutes(r *gin.Engine, h Handlers, gate gin.HandlerFunc) {
	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", gate, h.Auth.Logout)
	auth.GET("/me", gate, h.Auth.Me)

	devices := v1.Group("/devices", gate)
	devices.GET("", h.Device.List)
	devices.DELETE("/:id", h.Device.Logout)
	devices.POST("/web/logout", h.Device.LogoutWeb)

	qr := v1.Group("/qr/tokens")
	qr.POST("", h.QR.Generate)
	qr.GET("/:token", h.QR.Status)
	qr.POST("/:token/scan", gate, h.QR.Scan)
	qr.POST("/:token/approve", gate, h.QR.Approve)
	qr.POST("/:token/reject", gate, h.QR.Reject)

	scans := v1.Group("/scans", gate)
	scans.POST("", h.Scan.Request)
	scans.POST("/:id/result", h.Scan.Result)
	scans.POST("/:id/error", h.Scan.Error)
	scans.DELETE("/:id", h.Scan.Cancel)

	// Sockets authenticate via query token inside the handler.
	v1.GET("/ws", h.WS.Device)
	v1.GET("/ws/qr/:token", h.WS.QRWaiter)
}
