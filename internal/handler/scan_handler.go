package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumapos/session-api/internal/models"
	"github.com/lumapos/session-api/internal/service"
	appErrors "github.com/lumapos/session-api/pkg/errors"
	"github.com/lumapos/session-api/pkg/response"
)

// ScanHandler routes remote barcode scans between a desktop tab and the
// user's active mobile device.
type ScanHandler struct {
	service *service.RemoteScanService
}

// NewScanHandler creates a new handler.
func NewScanHandler(svc *service.RemoteScanService) *ScanHandler {
	return &ScanHandler{service: svc}
}

// Request godoc
// @Summary Request a remote scan
// @Description Asks the caller's active mobile device to scan a barcode for one desktop tab
// @Tags RemoteScan
// @Accept json
// @Produce json
// @Param payload body object true "Tab ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scans [post]
func (h *ScanHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.DeviceClass != models.DeviceClassWeb {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "remote scans are requested from a web session"))
		return
	}

	var req struct {
		TabID string `json:"tab_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "tab_id required"))
		return
	}

	sess, err := h.service.RequestScan(c.Request.Context(), claims.UserID, claims.TenantID, claims.DeviceID, req.TabID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, sess)
}

// Result godoc
// @Summary Report a scan result
// @Description Delivers the scanned barcode to the desktop tab that requested it
// @Tags RemoteScan
// @Accept json
// @Produce json
// @Param id path string true "Scan ID"
// @Param payload body models.RemoteScanResult true "Scan result"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scans/{id}/result [post]
func (h *ScanHandler) Result(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var result models.RemoteScanResult
	if err := c.ShouldBindJSON(&result); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan result"))
		return
	}

	if err := h.service.ReportResult(c.Request.Context(), c.Param("id"), claims.TenantID, result); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Error godoc
// @Summary Report a scan failure
// @Description Forwards a mobile-side scan failure to the requesting desktop tab
// @Tags RemoteScan
// @Accept json
// @Produce json
// @Param id path string true "Scan ID"
// @Param payload body object true "Error message"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scans/{id}/error [post]
func (h *ScanHandler) Error(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "message required"))
		return
	}

	if err := h.service.ReportError(c.Request.Context(), c.Param("id"), claims.TenantID, req.Message); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel a pending scan
// @Description Consumes the scan correlation on behalf of the desktop side
// @Tags RemoteScan
// @Produce json
// @Param id path string true "Scan ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scans/{id} [delete]
func (h *ScanHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.TenantID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
