package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/models"
	"github.com/lumapos/session-api/internal/service"
	appErrors "github.com/lumapos/session-api/pkg/errors"
	"github.com/lumapos/session-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// SessionChecker answers whether a device still owns its session slot.
type SessionChecker interface {
	IsSessionValid(ctx context.Context, userID string, class models.DeviceClass, deviceID string) bool
}

// AuthGateDeps carries what the gate needs beyond token parsing.
type AuthGateDeps struct {
	Tokens   *service.TokenService
	Sessions SessionChecker
	Metrics  *service.MetricsService
	Logger   *zap.Logger
}

// AuthGate protects routes by requiring a valid access token whose device
// still holds its session slot. A token whose device was displaced by a
// newer login is rejected even though its signature has not expired.
//
// Tokens minted before device claims existed carry neither device_class nor
// device_id and skip the slot check entirely. That path is fail-open: such a
// token stays usable until it expires, with no kill switch. Kept for rollout
// compatibility with long-lived legacy tokens; remove once they have aged
// out.
func AuthGate(deps AuthGateDeps) gin.HandlerFunc {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := deps.Tokens.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		if claims.HasDeviceClaims() {
			if !deps.Sessions.IsSessionValid(c.Request.Context(), claims.UserID, claims.DeviceClass, claims.DeviceID) {
				deps.Metrics.RecordSessionRejection()
				logger.Info("rejected token for replaced session",
					zap.String("user_id", claims.UserID),
					zap.String("device_id", claims.DeviceID),
					zap.String("device_class", string(claims.DeviceClass)))
				response.Error(c, appErrors.ErrSessionReplaced)
				c.Abort()
				return
			}
		} else {
			deps.Metrics.RecordLegacyBypass()
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentClaims extracts the authenticated claims set by AuthGate.
func CurrentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
