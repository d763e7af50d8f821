package hub

import (
	"encoding/json"

	"github.com/lumapos/session-api/internal/models"
)

// Push event names. These are wire contract, do not rename.
const (
	EventScanned     = "scanned"
	EventApproved    = "approved"
	EventRejected    = "rejected"
	EventForceLogout = "force_logout"
	EventPing        = "ping"

	EventScanRequest   = "remote_scan:request"
	EventScanResult    = "remote_scan:result"
	EventScanError     = "remote_scan:error"
	EventScanCancelled = "remote_scan:cancelled"
	EventScanTimeout   = "remote_scan:timeout"
)

// Force-logout reasons surfaced to revoked clients.
const (
	ReasonNewWebLogin      = "web session ended by new login"
	ReasonNewMobileLogin   = "mobile session ended by new login"
	ReasonWebEndedByMobile = "web session ended by new mobile login"
	ReasonLoggedOut        = "logged out"
	ReasonRemoteLogout     = "web session ended remotely"
)

// Event is the envelope pushed over live connections. Fields are sparse;
// each event name populates its own subset.
type Event struct {
	Event        string           `json:"event"`
	Reason       string           `json:"reason,omitempty"`
	ScanID       string           `json:"scan_id,omitempty"`
	Barcode      string           `json:"barcode,omitempty"`
	Product      json.RawMessage  `json:"product,omitempty"`
	Error        string           `json:"error,omitempty"`
	AccessToken  string           `json:"access_token,omitempty"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	DeviceID     string           `json:"device_id,omitempty"`
	User         *models.UserInfo `json:"user,omitempty"`
}
