package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SeatLock is a time-bounded exclusive hold on one seat of one trip
type SeatLock struct {
	TripID    uuid.UUID `json:"trip_id" db:"trip_id"`
	SeatID    uuid.UUID `json:"seat_id" db:"seat_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsActive reports whether the lock is still honored at now
func (l *SeatLock) IsActive(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// SeatClaim is a seat referenced by a booking that has not yet been confirmed
type SeatClaim struct {
	SeatID    uuid.UUID `db:"seat_id"`
	BookingID uuid.UUID `db:"booking_id"`
	UserID    uuid.UUID `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

// SeatSelectionRequest is the body of lock and release calls
type SeatSelectionRequest struct {
	TripID  uuid.UUID   `json:"trip_id" binding:"required"`
	SeatIDs []uuid.UUID `json:"seat_ids" binding:"required"`
}

// Validate checks basic shape; the seat count ceiling is a service policy
func (r *SeatSelectionRequest) Validate() error {
	if r.TripID == uuid.Nil {
		return errors.New("trip_id is required")
	}
	if len(r.SeatIDs) == 0 {
		return errors.New("at least one seat is required")
	}
	return nil
}

// LockResult is returned to the client so it can render a countdown
type LockResult struct {
	TripID    uuid.UUID   `json:"trip_id"`
	SeatIDs   []uuid.UUID `json:"seat_ids"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// HeldSeats lists a user's unexpired locks on a trip
type HeldSeats struct {
	TripID    uuid.UUID   `json:"trip_id"`
	SeatIDs   []uuid.UUID `json:"seat_ids"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}
