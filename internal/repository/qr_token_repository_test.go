package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapos/session-api/internal/models"
)

func TestMarkScannedGuardsStatusAndExpiry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewQRTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE qr_login_tokens SET status = $2 WHERE token = $1 AND status = $3 AND expires_at > $4")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE qr_login_tokens SET status = $2 WHERE token = $1 AND status = $3 AND expires_at > $4")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	ok, err := repo.MarkScanned(context.Background(), "tok", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second scan races the first: the guard matches nothing.
	ok, err = repo.MarkScanned(context.Background(), "tok", now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkApprovedRecordsApprover(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewQRTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = $2, approved_by_user_id = $3, approved_by_tenant_id = $4 WHERE token = $1 AND status = $5")).
		WithArgs("tok", string(models.QRStatusApproved), "u1", "t1", string(models.QRStatusScanned)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkApproved(context.Background(), "tok", "u1", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTokenReadsRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewQRTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"token", "status", "web_fingerprint", "web_user_agent", "web_ip",
		"browser_id", "approved_by_user_id", "approved_by_tenant_id", "expires_at", "created_at",
	}).AddRow("tok", string(models.QRStatusPending), "fp", "ua", "1.2.3.4", "b1", nil, nil, now.Add(2*time.Minute), now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM qr_login_tokens WHERE token = $1 LIMIT 1")).
		WithArgs("tok").
		WillReturnRows(rows)

	record, err := repo.FindByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.QRStatusPending, record.Status)
	assert.Nil(t, record.ApprovedByUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
