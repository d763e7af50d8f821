package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lumapos/session-api/internal/models"
)

const qrTokenColumns = `token, status, web_fingerprint, web_user_agent, web_ip, browser_id, approved_by_user_id, approved_by_tenant_id, expires_at, created_at`

// QRTokenRepository provides database access for QR login tokens.
//
// Status transitions are guarded updates: the WHERE clause names the expected
// current status, so a second actor racing the same transition affects zero
// rows and fails cleanly instead of double-processing.
type QRTokenRepository struct {
	db *sqlx.DB
}

// NewQRTokenRepository creates a new instance of QRTokenRepository.
func NewQRTokenRepository(db *sqlx.DB) *QRTokenRepository {
	return &QRTokenRepository{db: db}
}

// Create inserts a new pending token.
func (r *QRTokenRepository) Create(ctx context.Context, token *models.QRLoginToken) error {
	const query = `INSERT INTO qr_login_tokens (token, status, web_fingerprint, web_user_agent, web_ip, browser_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		token.Token, token.Status, token.WebFingerprint, token.WebUserAgent,
		token.WebIP, token.BrowserID, token.ExpiresAt, token.CreatedAt,
	); err != nil {
		return fmt.Errorf("create qr token: %w", err)
	}
	return nil
}

// FindByToken returns a token record.
func (r *QRTokenRepository) FindByToken(ctx context.Context, token string) (*models.QRLoginToken, error) {
	query := `SELECT ` + qrTokenColumns + ` FROM qr_login_tokens WHERE token = $1 LIMIT 1`
	var record models.QRLoginToken
	if err := r.db.GetContext(ctx, &record, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find qr token: %w", err)
	}
	return &record, nil
}

// MarkScanned transitions pending -> scanned. The expiry condition closes the
// race between a lazy expired read and a concurrent scan.
func (r *QRTokenRepository) MarkScanned(ctx context.Context, token string, now time.Time) (bool, error) {
	const query = `UPDATE qr_login_tokens SET status = $2 WHERE token = $1 AND status = $3 AND expires_at > $4`
	res, err := r.db.ExecContext(ctx, query, token, models.QRStatusScanned, models.QRStatusPending, now)
	if err != nil {
		return false, fmt.Errorf("mark qr token scanned: %w", err)
	}
	return oneRowAffected(res)
}

// MarkApproved transitions scanned -> approved and records the approver.
func (r *QRTokenRepository) MarkApproved(ctx context.Context, token, userID, tenantID string) (bool, error) {
	const query = `UPDATE qr_login_tokens SET status = $2, approved_by_user_id = $3, approved_by_tenant_id = $4 WHERE token = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, token, models.QRStatusApproved, userID, tenantID, models.QRStatusScanned)
	if err != nil {
		return false, fmt.Errorf("mark qr token approved: %w", err)
	}
	return oneRowAffected(res)
}

// MarkRejected transitions scanned -> rejected.
func (r *QRTokenRepository) MarkRejected(ctx context.Context, token string) (bool, error) {
	const query = `UPDATE qr_login_tokens SET status = $2 WHERE token = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, token, models.QRStatusRejected, models.QRStatusScanned)
	if err != nil {
		return false, fmt.Errorf("mark qr token rejected: %w", err)
	}
	return oneRowAffected(res)
}

// DeleteExpired removes tokens past their deadline; expired is a derived
// read-time status, so stale rows are garbage, not state.
func (r *QRTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM qr_login_tokens WHERE expires_at < $1 AND status IN ($2, $3)`
	res, err := r.db.ExecContext(ctx, query, now, models.QRStatusPending, models.QRStatusScanned)
	if err != nil {
		return 0, fmt.Errorf("delete expired qr tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired qr token rows: %w", err)
	}
	return affected, nil
}

func oneRowAffected(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
