package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/happybusride/booking-backend/internal/models"
)

// SeatLockRepository handles time-bounded seat holds
type SeatLockRepository struct {
	db sqlx.ExtContext
}

// NewSeatLockRepository creates a new SeatLockRepository
func NewSeatLockRepository(db sqlx.ExtContext) *SeatLockRepository {
	return &SeatLockRepository{db: db}
}

// DeleteExpiredLocks purges locks on the trip that are no longer honored
func (r *SeatLockRepository) DeleteExpiredLocks(ctx context.Context, tripID uuid.UUID, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM seat_locks WHERE trip_id = $1 AND expires_at <= $2`, tripID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired locks: %w", err)
	}
	purged, _ := result.RowsAffected()
	return purged, nil
}

// ListActiveLocks returns the unexpired locks on a trip
func (r *SeatLockRepository) ListActiveLocks(ctx context.Context, tripID uuid.UUID, now time.Time) ([]models.SeatLock, error) {
	query := `
		SELECT trip_id, seat_id, user_id, expires_at, created_at
		FROM seat_locks
		WHERE trip_id = $1 AND expires_at > $2
		ORDER BY seat_id`

	var locks []models.SeatLock
	if err := sqlx.SelectContext(ctx, r.db, &locks, query, tripID, now); err != nil {
		return nil, fmt.Errorf("failed to list seat locks: %w", err)
	}
	return locks, nil
}

// AcquireLocks upserts one lock row per seat in a single statement. The
// conflict branch only overwrites a row held by the same user or already
// expired, so a concurrent caller's live lock is never stolen: its seat is
// simply missing from the returned set. Seats are written in sorted order to
// keep row-lock acquisition order stable across callers.
func (r *SeatLockRepository) AcquireLocks(ctx context.Context, tripID, userID uuid.UUID, seatIDs []uuid.UUID, expiresAt, now time.Time) ([]uuid.UUID, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	sorted := make(models.UUIDArray, len(seatIDs))
	copy(sorted, seatIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	query := `
		INSERT INTO seat_locks AS l (trip_id, seat_id, user_id, expires_at, created_at)
		SELECT $1, s.seat_id, $2, $3, $4
		FROM unnest($5::uuid[]) WITH ORDINALITY AS s(seat_id, ord)
		ORDER BY s.ord
		ON CONFLICT (trip_id, seat_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    expires_at = EXCLUDED.expires_at
		WHERE l.user_id = EXCLUDED.user_id OR l.expires_at <= $4
		RETURNING seat_id`

	var granted []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &granted, query, tripID, userID, expiresAt, now, sorted); err != nil {
		return nil, fmt.Errorf("failed to acquire seat locks: %w", err)
	}
	return granted, nil
}

// ReleaseLocks deletes the user's own locks; other users' locks are never touched
func (r *SeatLockRepository) ReleaseLocks(ctx context.Context, tripID, userID uuid.UUID, seatIDs []uuid.UUID) (int64, error) {
	var (
		query string
		args  []interface{}
		err   error
	)
	if len(seatIDs) == 0 {
		query = `DELETE FROM seat_locks WHERE trip_id = $1 AND user_id = $2`
		args = []interface{}{tripID, userID}
	} else {
		query, args, err = sqlx.In(
			`DELETE FROM seat_locks WHERE trip_id = ? AND user_id = ? AND seat_id IN (?)`,
			tripID, userID, seatIDs)
		if err != nil {
			return 0, fmt.Errorf("failed to build release query: %w", err)
		}
		query = r.db.Rebind(query)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to release seat locks: %w", err)
	}
	released, _ := result.RowsAffected()
	return released, nil
}
