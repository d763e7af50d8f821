package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumapos/session-api/internal/models"
	"github.com/lumapos/session-api/internal/service"
	appErrors "github.com/lumapos/session-api/pkg/errors"
	"github.com/lumapos/session-api/pkg/response"
)

// DeviceHandler exposes the operational device view and remote logout.
type DeviceHandler struct {
	service *service.DeviceLifecycleService
}

// NewDeviceHandler creates a new handler.
func NewDeviceHandler(svc *service.DeviceLifecycleService) *DeviceHandler {
	return &DeviceHandler{service: svc}
}

// List godoc
// @Summary List active devices
// @Description Returns the caller's active devices
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	devices, err := h.service.ListActiveDevices(c.Request.Context(), claims.UserID, claims.TenantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, devices, nil)
}

// Logout godoc
// @Summary Logout a specific device
// @Description Ends the session of one of the caller's devices
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /devices/{id} [delete]
func (h *DeviceHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	deviceID := c.Param("id")
	device, err := h.service.FindDevice(c.Request.Context(), deviceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if device.UserID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "device belongs to another user"))
		return
	}

	if err := h.service.LogoutDevice(c.Request.Context(), deviceID, false); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// LogoutWeb godoc
// @Summary Logout all web sessions
// @Description Ends every active web session of the caller; used by the mobile app's remote logout
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /devices/web/logout [post]
func (h *DeviceHandler) LogoutWeb(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.DeviceClass != models.DeviceClassMobile {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "remote web logout requires a mobile session"))
		return
	}

	count, err := h.service.LogoutAllWebDevices(c.Request.Context(), claims.UserID, claims.TenantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"logged_out": count}, nil)
}
