package store

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"onsite-tracker-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_ActiveRegions(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "regions" WHERE active = $1 ORDER BY id`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "latitude", "longitude", "radius", "active"}).
			AddRow(1, "Office", 40.4168, -3.7038, 50.0, true).
			AddRow(2, "Site", 40.5, -3.7038, 80.0, true))

	regions, err := store.ActiveRegions(context.Background())
	assert.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "Office", regions[0].Name)
	assert.Equal(t, int64(2), regions[1].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_RegionByID_NotFound(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "regions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	region, err := store.RegionByID(context.Background(), 42)
	assert.NoError(t, err, "a missing region is not an error")
	assert.Nil(t, region)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeactivateRegion(t *testing.T) {
	t.Run("existing region", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "regions" SET "active"=$1,"updated_at"=$2 WHERE id = $3`)).
			WithArgs(false, Any{}, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.DeactivateRegion(context.Background(), 7)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown region", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "regions"`)).
			WithArgs(false, Any{}, int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.DeactivateRegion(context.Background(), 99)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_ActiveSession(t *testing.T) {
	t.Run("one accruing session", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		entered := time.Now().UTC().Add(-time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sessions" WHERE exited_at IS NULL AND paused_at IS NULL ORDER BY entered_at DESC`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "region_id", "region_name", "entered_at"}).
				AddRow(3, 1, "Office", entered))

		session, err := store.ActiveSession(context.Background())
		assert.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, int64(3), session.ID)
		assert.Equal(t, model.StatusActive, session.Status())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing accruing", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sessions"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		session, err := store.ActiveSession(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, session)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_CurrentSession_IncludesPaused(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	entered := time.Now().UTC().Add(-time.Hour)
	pausedAt := time.Now().UTC().Add(-10 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sessions" WHERE exited_at IS NULL ORDER BY entered_at DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "region_id", "region_name", "entered_at", "paused_at"}).
			AddRow(4, 1, "Office", entered, pausedAt))

	session, err := store.CurrentSession(context.Background())
	assert.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, model.StatusPaused, session.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SessionsBetween(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sessions" WHERE entered_at >= $1 AND entered_at < $2 ORDER BY entered_at DESC`)).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "region_id", "entered_at"}).
			AddRow(1, 1, from.Add(9*time.Hour)))

	sessions, err := store.SessionsBetween(context.Background(), from, to)
	assert.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
