package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumapos/session-api/internal/models"
	"github.com/lumapos/session-api/internal/service"
	appErrors "github.com/lumapos/session-api/pkg/errors"
	"github.com/lumapos/session-api/pkg/response"
)

// QRHandler wires the QR login flow: the anonymous desktop generates and
// polls, the authenticated mobile scans, approves or rejects.
type QRHandler struct {
	service *service.QRLoginService
}

// NewQRHandler creates a new handler.
func NewQRHandler(svc *service.QRLoginService) *QRHandler {
	return &QRHandler{service: svc}
}

// Generate godoc
// @Summary Generate QR login token
// @Description Mints a short-lived token for an anonymous desktop to display as a QR code
// @Tags QRLogin
// @Accept json
// @Produce json
// @Param payload body models.GenerateQRTokenRequest false "Desktop attributes"
// @Success 201 {object} response.Envelope
// @Router /qr/tokens [post]
func (h *QRHandler) Generate(c *gin.Context) {
	var req models.GenerateQRTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	token, err := h.service.GenerateToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, token)
}

// Status godoc
// @Summary Poll QR token status
// @Description Polling fallback for desktops without a live socket
// @Tags QRLogin
// @Produce json
// @Param token path string true "QR token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /qr/tokens/{token} [get]
func (h *QRHandler) Status(c *gin.Context) {
	status, err := h.service.CheckStatus(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, status, nil)
}

// Scan godoc
// @Summary Scan QR token
// @Description Marks a pending token scanned on behalf of the authenticated mobile user
// @Tags QRLogin
// @Produce json
// @Param token path string true "QR token"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /qr/tokens/{token}/scan [post]
func (h *QRHandler) Scan(c *gin.Context) {
	if claims := claimsFromContext(c); claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Scan(c.Request.Context(), c.Param("token")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Approve godoc
// @Summary Approve QR login
// @Description Completes the flow: the approver's identity mints a web session delivered to the waiting desktop
// @Tags QRLogin
// @Produce json
// @Param token path string true "QR token"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /qr/tokens/{token}/approve [post]
func (h *QRHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Approve(c.Request.Context(), c.Param("token"), claims.UserID, claims.TenantID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Reject godoc
// @Summary Reject QR login
// @Description Resolves a scanned token negatively
// @Tags QRLogin
// @Produce json
// @Param token path string true "QR token"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /qr/tokens/{token}/reject [post]
func (h *QRHandler) Reject(c *gin.Context) {
	if claims := claimsFromContext(c); claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Reject(c.Request.Context(), c.Param("token")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
