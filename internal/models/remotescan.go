package models

import (
	"encoding/json"
	"time"
)

// RemoteScanSession correlates a desktop scan request with the mobile device
// expected to fulfil it. Sessions live in the connection hub only and are
// consumed exactly once.
type RemoteScanSession struct {
	ScanID          string    `json:"scan_id"`
	TenantID        string    `json:"tenant_id"`
	MobileDeviceID  string    `json:"mobile_device_id"`
	DesktopDeviceID string    `json:"desktop_device_id"`
	DesktopTabID    string    `json:"desktop_tab_id"`
	RequestedAt     time.Time `json:"requested_at"`
}

// RemoteScanResult is the mobile-reported outcome of a scan request.
type RemoteScanResult struct {
	Barcode string          `json:"barcode" validate:"required"`
	Product json.RawMessage `json:"product,omitempty"`
}
