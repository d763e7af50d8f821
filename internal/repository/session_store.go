package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumapos/session-api/internal/models"
)

// SessionStore is the session authority: the Redis mapping
// (user, device_class) -> active device_id. It is the sole source of truth
// for authentication validity; device-store flags are operational metadata
// and never consulted by the per-request check.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionStore constructs a session store with the given entry TTL.
func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 8 * 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl, logger: logger}
}

func sessionKey(userID string, class models.DeviceClass) string {
	return fmt.Sprintf("session:%s:%s", userID, class)
}

// SetActiveDevice unconditionally binds the (user, class) slot to deviceID
// with the store TTL. Any prior value is superseded by the write itself.
func (s *SessionStore) SetActiveDevice(ctx context.Context, userID string, class models.DeviceClass, deviceID string) error {
	if err := s.client.Set(ctx, sessionKey(userID, class), deviceID, s.ttl).Err(); err != nil {
		return fmt.Errorf("set active device %s/%s: %w", userID, class, err)
	}
	return nil
}

// GetActiveDevice returns the device currently bound to the slot, or "" when
// none is bound.
func (s *SessionStore) GetActiveDevice(ctx context.Context, userID string, class models.DeviceClass) (string, error) {
	val, err := s.client.Get(ctx, sessionKey(userID, class)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("get active device %s/%s: %w", userID, class, err)
	}
	return val, nil
}

// IsSessionValid is the kill switch: true iff the stored value equals
// deviceID. It fails closed — a missing entry, a differing value or an
// unreachable store all read as invalid.
func (s *SessionStore) IsSessionValid(ctx context.Context, userID string, class models.DeviceClass, deviceID string) bool {
	val, err := s.client.Get(ctx, sessionKey(userID, class)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("session store unreachable, failing closed",
				zap.String("user_id", userID),
				zap.String("device_class", string(class)),
				zap.Error(err))
		}
		return false
	}
	return val == deviceID
}

// RevokeDevice clears the (user, class) slot.
func (s *SessionStore) RevokeDevice(ctx context.Context, userID string, class models.DeviceClass) error {
	if err := s.client.Del(ctx, sessionKey(userID, class)).Err(); err != nil {
		return fmt.Errorf("revoke device %s/%s: %w", userID, class, err)
	}
	return nil
}

// RevokeAll clears both class slots for the user in one multi-key delete.
func (s *SessionStore) RevokeAll(ctx context.Context, userID string) error {
	keys := []string{
		sessionKey(userID, models.DeviceClassMobile),
		sessionKey(userID, models.DeviceClassWeb),
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke all sessions for %s: %w", userID, err)
	}
	return nil
}

// ActivateMobileDevice binds the mobile slot and clears the web slot in one
// Redis transaction: there is no observable state where both are set or
// neither reflects the mobile login.
func (s *SessionStore) ActivateMobileDevice(ctx context.Context, userID, deviceID string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(userID, models.DeviceClassMobile), deviceID, s.ttl)
	pipe.Del(ctx, sessionKey(userID, models.DeviceClassWeb))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("activate mobile device %s: %w", userID, err)
	}
	return nil
}

// ActivateWebDevice binds only the web slot; a web login never touches the
// mobile slot (mobile can evict web, web cannot evict mobile).
func (s *SessionStore) ActivateWebDevice(ctx context.Context, userID, deviceID string) error {
	if err := s.client.Set(ctx, sessionKey(userID, models.DeviceClassWeb), deviceID, s.ttl).Err(); err != nil {
		return fmt.Errorf("activate web device %s: %w", userID, err)
	}
	return nil
}
