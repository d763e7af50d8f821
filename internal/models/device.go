package models

import "time"

// DeviceClass is one of the two independently tracked session slots per user.
type DeviceClass string

const (
	DeviceClassMobile DeviceClass = "mobile"
	DeviceClassWeb    DeviceClass = "web"
)

// Valid reports whether the class is a known device class.
func (c DeviceClass) Valid() bool {
	return c == DeviceClassMobile || c == DeviceClassWeb
}

// CanEvict encodes the asymmetric dominance rule: a mobile login evicts
// devices of either class, a web login only evicts other web devices.
func (c DeviceClass) CanEvict(other DeviceClass) bool {
	switch c {
	case DeviceClassMobile:
		return other.Valid()
	case DeviceClassWeb:
		return other == DeviceClassWeb
	default:
		return false
	}
}

// CascadeClasses lists the classes a login on c invalidates, in eviction order.
func (c DeviceClass) CascadeClasses() []DeviceClass {
	if c == DeviceClassMobile {
		return []DeviceClass{DeviceClassMobile, DeviceClassWeb}
	}
	return []DeviceClass{DeviceClassWeb}
}

// Device represents a registered login device stored in the devices table.
// Devices are soft-deactivated, never hard-deleted.
type Device struct {
	ID               string      `db:"id" json:"id"`
	UserID           string      `db:"user_id" json:"user_id"`
	TenantID         string      `db:"tenant_id" json:"tenant_id"`
	Class            DeviceClass `db:"device_class" json:"device_class"`
	BrowserID        string      `db:"browser_id" json:"browser_id,omitempty"`
	Name             string      `db:"device_name" json:"device_name"`
	Fingerprint      string      `db:"fingerprint" json:"-"`
	RefreshTokenHash string      `db:"refresh_token_hash" json:"-"`
	IsActive         bool        `db:"is_active" json:"is_active"`
	IsPrimary        bool        `db:"is_primary" json:"is_primary"`
	LastActiveAt     time.Time   `db:"last_active_at" json:"last_active_at"`
	ExpiresAt        *time.Time  `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// DeviceFilter captures criteria for listing device records.
type DeviceFilter struct {
	UserID   string
	TenantID string
	Classes  []DeviceClass
}

// RegisterDeviceInput carries everything needed to mint a device record.
type RegisterDeviceInput struct {
	UserID      string      `validate:"required"`
	TenantID    string      `validate:"required"`
	Class       DeviceClass `validate:"required,oneof=mobile web"`
	BrowserID   string
	Name        string
	Fingerprint string
	IP          string
	UserAgent   string
}
