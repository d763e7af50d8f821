package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lumapos/session-api/internal/models"
)

const deviceColumns = `id, user_id, tenant_id, device_class, browser_id, device_name, fingerprint, refresh_token_hash, is_active, is_primary, last_active_at, expires_at, created_at, updated_at`

// DeviceRepository provides database access for device records.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts a new device record.
func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) error {
	const query = `INSERT INTO devices (id, user_id, tenant_id, device_class, browser_id, device_name, fingerprint, refresh_token_hash, is_active, is_primary, last_active_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := r.db.ExecContext(ctx, query,
		device.ID, device.UserID, device.TenantID, device.Class, device.BrowserID,
		device.Name, device.Fingerprint, device.RefreshTokenHash, device.IsActive,
		device.IsPrimary, device.LastActiveAt, device.ExpiresAt, device.CreatedAt, device.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

// FindByID returns a device by identifier.
func (r *DeviceRepository) FindByID(ctx context.Context, id string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1 LIMIT 1`
	var device models.Device
	if err := r.db.GetContext(ctx, &device, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find device by id: %w", err)
	}
	return &device, nil
}

// ListActive returns active devices matching the filter. TenantID and Classes
// narrow the set when present; browser_id is deliberately not a filter — the
// single-web-session policy spans browsers.
func (r *DeviceRepository) ListActive(ctx context.Context, filter models.DeviceFilter) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE is_active = TRUE AND user_id = $1`
	args := []interface{}{filter.UserID}

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if len(filter.Classes) > 0 {
		placeholders := make([]string, 0, len(filter.Classes))
		for _, class := range filter.Classes {
			args = append(args, class)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		query += fmt.Sprintf(" AND device_class IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY last_active_at DESC"

	devices := []models.Device{}
	if err := r.db.SelectContext(ctx, &devices, query, args...); err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}
	return devices, nil
}

// Deactivate soft-deactivates a device and clears its credential hash. It
// reports false when the device was already inactive, which registration
// uses as its write-conflict signal.
func (r *DeviceRepository) Deactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE devices SET is_active = FALSE, refresh_token_hash = '', updated_at = $2 WHERE id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("deactivate device: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate device rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateRefreshTokenHash stores the hash of the credential issued to a device.
func (r *DeviceRepository) UpdateRefreshTokenHash(ctx context.Context, id, hash string, now time.Time) error {
	const query = `UPDATE devices SET refresh_token_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, hash, now); err != nil {
		return fmt.Errorf("update refresh token hash: %w", err)
	}
	return nil
}

// TouchActivity bumps last_active_at and, for expiring devices, pushes the
// expiry window forward.
func (r *DeviceRepository) TouchActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	const query = `UPDATE devices SET last_active_at = $2, expires_at = CASE WHEN expires_at IS NULL THEN NULL ELSE $3 END, updated_at = $2 WHERE id = $1 AND is_active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, id, now, now.Add(ttl)); err != nil {
		return fmt.Errorf("touch device activity: %w", err)
	}
	return nil
}

// DeactivateExpired soft-deactivates every active device past its expiry and
// returns the number affected. Mobile devices have no expiry and are never
// matched.
func (r *DeviceRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE devices SET is_active = FALSE, refresh_token_hash = '', updated_at = $1 WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired devices: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate expired rows: %w", err)
	}
	return affected, nil
}
