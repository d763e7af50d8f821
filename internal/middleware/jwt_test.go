package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapos/session-api/internal/models"
	"github.com/lumapos/session-api/internal/service"
)

type stubSessionChecker struct {
	valid   bool
	checked int
}

func (s *stubSessionChecker) IsSessionValid(context.Context, string, models.DeviceClass, string) bool {
	s.checked++
	return s.valid
}

func newGateRouter(tokens *service.TokenService, sessions *stubSessionChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthGate(AuthGateDeps{Tokens: tokens, Sessions: sessions}), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "missing claims"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	return router
}

func gateTokenService() *service.TokenService {
	return service.NewTokenService(service.TokenConfig{Secret: "gate-secret", AccessExpiry: time.Minute})
}

func TestAuthGateMissingHeader(t *testing.T) {
	router := newGateRouter(gateTokenService(), &stubSessionChecker{valid: true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthGateValidSession(t *testing.T) {
	tokens := gateTokenService()
	sessions := &stubSessionChecker{valid: true}
	router := newGateRouter(tokens, sessions)

	signed, _, err := tokens.IssueAccessToken(&models.User{ID: "user-1", TenantID: "tenant-1"}, models.DeviceClassWeb, "device-1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sessions.checked)
}

func TestAuthGateReplacedSession(t *testing.T) {
	tokens := gateTokenService()
	router := newGateRouter(tokens, &stubSessionChecker{valid: false})

	signed, _, err := tokens.IssueAccessToken(&models.User{ID: "user-1"}, models.DeviceClassWeb, "device-old")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_REPLACED")
}

func TestAuthGateLegacyTokenSkipsSlotCheck(t *testing.T) {
	sessions := &stubSessionChecker{valid: false}
	router := newGateRouter(gateTokenService(), sessions)

	// Tokens from before device claims existed carry neither device_class
	// nor device_id and bypass the slot check even with no valid session.
	claims := &models.JWTClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("gate-secret"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, sessions.checked)
}
