package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestAcquireLocks(t *testing.T) {
	ctx := context.Background()
	tripID := uuid.New()
	userID := uuid.New()
	seatA := uuid.New()
	seatB := uuid.New()
	now := time.Now()

	t.Run("Returns granted seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectQuery(`INSERT INTO seat_locks AS l`).
			WithArgs(tripID.String(), userID.String(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow(seatA.String()))

		granted, err := repo.AcquireLocks(ctx, tripID, userID, []uuid.UUID{seatA, seatB}, now.Add(5*time.Minute), now)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{seatA}, granted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No seats skips the query", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		granted, err := repo.AcquireLocks(ctx, tripID, userID, nil, now, now)
		require.NoError(t, err)
		assert.Empty(t, granted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectQuery(`INSERT INTO seat_locks AS l`).
			WillReturnError(fmt.Errorf("connection reset"))

		_, err := repo.AcquireLocks(ctx, tripID, userID, []uuid.UUID{seatA}, now, now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to acquire seat locks")
	})
}

func TestReleaseLocks(t *testing.T) {
	ctx := context.Background()
	tripID := uuid.New()
	userID := uuid.New()
	seatA := uuid.New()
	seatB := uuid.New()

	t.Run("Selected seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectExec(`DELETE FROM seat_locks WHERE trip_id = \$1 AND user_id = \$2 AND seat_id IN \(\$3, \$4\)`).
			WithArgs(tripID.String(), userID.String(), seatA.String(), seatB.String()).
			WillReturnResult(sqlmock.NewResult(0, 2))

		released, err := repo.ReleaseLocks(ctx, tripID, userID, []uuid.UUID{seatA, seatB})
		require.NoError(t, err)
		assert.Equal(t, int64(2), released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("All of the user's seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectExec(`DELETE FROM seat_locks WHERE trip_id = \$1 AND user_id = \$2$`).
			WithArgs(tripID.String(), userID.String()).
			WillReturnResult(sqlmock.NewResult(0, 3))

		released, err := repo.ReleaseLocks(ctx, tripID, userID, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteExpiredLocks(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSeatLockRepository(db)
	tripID := uuid.New()
	now := time.Now()

	mock.ExpectExec(`DELETE FROM seat_locks WHERE trip_id = \$1 AND expires_at <= \$2`).
		WithArgs(tripID.String(), now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	purged, err := repo.DeleteExpiredLocks(context.Background(), tripID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
