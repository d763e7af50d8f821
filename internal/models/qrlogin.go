package models

import "time"

// QRTokenStatus is the stored state of a QR login token. Expired is derived
// at read time from a pending token past its deadline and is never written.
type QRTokenStatus string

const (
	QRStatusPending  QRTokenStatus = "pending"
	QRStatusScanned  QRTokenStatus = "scanned"
	QRStatusApproved QRTokenStatus = "approved"
	QRStatusRejected QRTokenStatus = "rejected"
	QRStatusExpired  QRTokenStatus = "expired"
)

// QRLoginToken pairs a desktop waiter with a mobile approver.
type QRLoginToken struct {
	Token              string        `db:"token" json:"token"`
	Status             QRTokenStatus `db:"status" json:"status"`
	WebFingerprint     string        `db:"web_fingerprint" json:"-"`
	WebUserAgent       string        `db:"web_user_agent" json:"-"`
	WebIP              string        `db:"web_ip" json:"-"`
	BrowserID          string        `db:"browser_id" json:"browser_id,omitempty"`
	ApprovedByUserID   *string       `db:"approved_by_user_id" json:"approved_by_user_id,omitempty"`
	ApprovedByTenantID *string       `db:"approved_by_tenant_id" json:"approved_by_tenant_id,omitempty"`
	ExpiresAt          time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
}

// EffectiveStatus returns the stored status with the derived expiry applied:
// a pending token past its deadline reads as expired.
func (t *QRLoginToken) EffectiveStatus(now time.Time) QRTokenStatus {
	if t.Status == QRStatusPending && now.After(t.ExpiresAt) {
		return QRStatusExpired
	}
	return t.Status
}

// GenerateQRTokenRequest captures the desktop attributes recorded on the token.
type GenerateQRTokenRequest struct {
	Fingerprint string `json:"fingerprint"`
	BrowserID   string `json:"browser_id"`
	UserAgent   string `json:"-"`
	IP          string `json:"-"`
}

// QRStatusResponse is the poll-friendly view of a token.
type QRStatusResponse struct {
	Token     string        `json:"token"`
	Status    QRTokenStatus `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
}
