package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapos/session-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func deviceRows(now time.Time, ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "tenant_id", "device_class", "browser_id", "device_name",
		"fingerprint", "refresh_token_hash", "is_active", "is_primary",
		"last_active_at", "expires_at", "created_at", "updated_at",
	})
	for _, id := range ids {
		rows.AddRow(id, "u1", "t1", string(models.DeviceClassWeb), "b1", "Chrome",
			"fp", "hash", true, false, now, now.Add(time.Hour), now, now)
	}
	return rows
}

func TestCreateDevice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectExec("INSERT INTO devices").WillReturnResult(sqlmock.NewResult(1, 1))

	now := time.Now().UTC()
	err := repo.Create(context.Background(), &models.Device{
		ID: "d1", UserID: "u1", TenantID: "t1", Class: models.DeviceClassWeb,
		IsActive: true, LastActiveAt: now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveFiltersByTenantAndClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE is_active = TRUE AND user_id = $1 AND tenant_id = $2 AND device_class IN ($3)")).
		WithArgs("u1", "t1", string(models.DeviceClassWeb)).
		WillReturnRows(deviceRows(now, "d1", "d2"))

	devices, err := repo.ListActive(context.Background(), models.DeviceFilter{
		UserID:   "u1",
		TenantID: "t1",
		Classes:  []models.DeviceClass{models.DeviceClassWeb},
	})
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveWithoutTenantSpansClasses(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE is_active = TRUE AND user_id = $1 AND device_class IN ($2, $3)")).
		WithArgs("u1", string(models.DeviceClassMobile), string(models.DeviceClassWeb)).
		WillReturnRows(deviceRows(now, "d1"))

	devices, err := repo.ListActive(context.Background(), models.DeviceFilter{
		UserID:  "u1",
		Classes: []models.DeviceClass{models.DeviceClassMobile, models.DeviceClassWeb},
	})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateReportsConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET is_active = FALSE, refresh_token_hash = '', updated_at = $2 WHERE id = $1 AND is_active = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET is_active = FALSE, refresh_token_hash = '', updated_at = $2 WHERE id = $1 AND is_active = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	ok, err := repo.Deactivate(context.Background(), "d1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second deactivation finds the row already inactive.
	ok, err = repo.Deactivate(context.Background(), "d1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateExpiredCountsRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeactivateExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
