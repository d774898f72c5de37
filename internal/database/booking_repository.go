package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/happybusride/booking-backend/internal/models"
)

const bookingColumns = `
	id, pnr, qr_token, user_id, trip_id, status,
	base_fare, gst_amount, convenience_fee, discount, total_amount,
	device_info, cancellation_reason, confirmed_at, cancelled_at, completed_at,
	created_at, updated_at`

// BookingRepository handles bookings, passengers and seat claims
type BookingRepository struct {
	db sqlx.ExtContext
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db sqlx.ExtContext) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// SEAT OCCUPANCY
// ============================================================================

// ListOccupiedSeatIDs returns seats held by confirmed or completed bookings
func (r *BookingRepository) ListOccupiedSeatIDs(ctx context.Context, tripID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := sqlx.SelectContext(ctx, r.db, &ids,
		`SELECT seat_id FROM booking_seats WHERE trip_id = $1 AND occupied = TRUE`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupied seats: %w", err)
	}
	return ids, nil
}

// ListPendingClaims returns seats on PENDING bookings created after since whose
// payment has not failed
func (r *BookingRepository) ListPendingClaims(ctx context.Context, tripID uuid.UUID, since time.Time) ([]models.SeatClaim, error) {
	query := `
		SELECT bs.seat_id, b.id AS booking_id, b.user_id, b.created_at
		FROM booking_seats bs
		JOIN bookings b ON b.id = bs.booking_id
		LEFT JOIN payments p ON p.booking_id = b.id
		WHERE bs.trip_id = $1
		  AND b.status = 'PENDING'
		  AND b.created_at > $2
		  AND (p.status IS NULL OR p.status <> 'FAILED')`

	var claims []models.SeatClaim
	if err := sqlx.SelectContext(ctx, r.db, &claims, query, tripID, since); err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}
	return claims, nil
}

// SetSeatsOccupied marks or unmarks every seat of a booking as occupied. The
// partial unique index on occupied seats rejects a second occupant.
func (r *BookingRepository) SetSeatsOccupied(ctx context.Context, bookingID uuid.UUID, occupied bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE booking_seats SET occupied = $2 WHERE booking_id = $1`, bookingID, occupied)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrSeatTaken
		}
		return fmt.Errorf("failed to update seat occupancy: %w", err)
	}
	return nil
}

// ============================================================================
// BOOKINGS
// ============================================================================

// CreateBooking inserts a booking with its passengers and seats
func (r *BookingRepository) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, pnr, qr_token, user_id, trip_id, status,
			base_fare, gst_amount, convenience_fee, discount, total_amount,
			device_info, created_at, updated_at
		) VALUES (
			:id, :pnr, :qr_token, :user_id, :trip_id, :status,
			:base_fare, :gst_amount, :convenience_fee, :discount, :total_amount,
			:device_info, :created_at, :updated_at
		)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, booking); err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if len(booking.Passengers) > 0 {
		passengerQuery := `
			INSERT INTO booking_passengers (id, booking_id, name, age, gender, seat_id)
			VALUES (:id, :booking_id, :name, :age, :gender, :seat_id)`
		if _, err := sqlx.NamedExecContext(ctx, r.db, passengerQuery, booking.Passengers); err != nil {
			return fmt.Errorf("failed to create booking passengers: %w", err)
		}
	}

	if len(booking.Seats) > 0 {
		seatQuery := `
			INSERT INTO booking_seats (id, booking_id, trip_id, seat_id, occupied)
			VALUES (:id, :booking_id, :trip_id, :seat_id, :occupied)`
		if _, err := sqlx.NamedExecContext(ctx, r.db, seatQuery, booking.Seats); err != nil {
			if IsUniqueViolation(err) {
				return ErrSeatTaken
			}
			return fmt.Errorf("failed to create booking seats: %w", err)
		}
	}

	return nil
}

// GetBooking returns a booking with passengers and seats, or nil if not found
func (r *BookingRepository) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return r.getBookingWhere(ctx, `id = $1`, bookingID)
}

// GetBookingByPNR finds a booking by reference within a trip
func (r *BookingRepository) GetBookingByPNR(ctx context.Context, tripID uuid.UUID, pnr string) (*models.Booking, error) {
	return r.getBookingWhere(ctx, `trip_id = $1 AND pnr = $2`, tripID, pnr)
}

func (r *BookingRepository) getBookingWhere(ctx context.Context, where string, args ...interface{}) (*models.Booking, error) {
	var booking models.Booking
	err := sqlx.GetContext(ctx, r.db, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE `+where, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	err = sqlx.SelectContext(ctx, r.db, &booking.Passengers, `
		SELECT id, booking_id, name, age, gender, seat_id
		FROM booking_passengers
		WHERE booking_id = $1
		ORDER BY name`, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking passengers: %w", err)
	}

	err = sqlx.SelectContext(ctx, r.db, &booking.Seats, `
		SELECT bs.id, bs.booking_id, bs.trip_id, bs.seat_id, s.seat_number, bs.occupied
		FROM booking_seats bs
		JOIN seats s ON s.id = bs.seat_id
		WHERE bs.booking_id = $1
		ORDER BY s.seat_number`, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking seats: %w", err)
	}

	return &booking, nil
}

// ListTripBookings returns the bookings on a trip in one status, without children
func (r *BookingRepository) ListTripBookings(ctx context.Context, tripID uuid.UUID, status models.BookingStatus) ([]models.Booking, error) {
	var bookings []models.Booking
	err := sqlx.SelectContext(ctx, r.db, &bookings,
		`SELECT `+bookingColumns+` FROM bookings WHERE trip_id = $1 AND status = $2 ORDER BY created_at`,
		tripID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list trip bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// STATUS TRANSITIONS
// ============================================================================

// TransitionBooking moves a booking from one status to another. It returns
// false when the booking was not in the expected status, which is how
// concurrent confirmations of the same booking are told apart.
func (r *BookingRepository) TransitionBooking(ctx context.Context, bookingID uuid.UUID, from, to models.BookingStatus, at time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $3,
		    updated_at = $4,
		    confirmed_at = CASE WHEN $3 = 'CONFIRMED' THEN $4 ELSE confirmed_at END,
		    completed_at = CASE WHEN $3 = 'COMPLETED' THEN $4 ELSE completed_at END
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, bookingID, from, to, at)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// CancelBooking cancels a CONFIRMED booking
func (r *BookingRepository) CancelBooking(ctx context.Context, bookingID uuid.UUID, to models.BookingStatus, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2, cancellation_reason = $3, cancelled_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'CONFIRMED'`

	result, err := r.db.ExecContext(ctx, query, bookingID, to, reason, at)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// ExpireUserPendingBookings abandons the user's earlier checkouts on a trip
func (r *BookingRepository) ExpireUserPendingBookings(ctx context.Context, tripID, userID uuid.UUID, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = 'EXPIRED', updated_at = $3
		WHERE trip_id = $1 AND user_id = $2 AND status = 'PENDING'`, tripID, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending bookings: %w", err)
	}
	expired, _ := result.RowsAffected()
	return expired, nil
}

// ExpireStalePendingBookings marks PENDING bookings created before the cutoff as EXPIRED
func (r *BookingRepository) ExpireStalePendingBookings(ctx context.Context, createdBefore, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = 'EXPIRED', updated_at = $2
		WHERE status = 'PENDING' AND created_at < $1`, createdBefore, at)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale bookings: %w", err)
	}
	expired, _ := result.RowsAffected()
	return expired, nil
}

// CompleteTripBookings moves every CONFIRMED booking on a trip to COMPLETED
func (r *BookingRepository) CompleteTripBookings(ctx context.Context, tripID uuid.UUID, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = 'COMPLETED', completed_at = $2, updated_at = $2
		WHERE trip_id = $1 AND status = 'CONFIRMED'`, tripID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to complete trip bookings: %w", err)
	}
	completed, _ := result.RowsAffected()
	return completed, nil
}
