package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/happybusride/booking-backend/internal/models"
)

const dateLayout = "2006-01-02"

const tripColumns = `
	t.id, t.schedule_id, t.travel_date, t.status, t.driver_user_id,
	t.last_lat, t.last_lng, t.last_location_at, t.actual_departure, t.actual_arrival,
	t.created_at, t.updated_at`

// TripRepository handles trips and the schedule, bus and seat data behind them
type TripRepository struct {
	db sqlx.ExtContext
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db sqlx.ExtContext) *TripRepository {
	return &TripRepository{db: db}
}

// GetTripDetails returns a trip joined with its schedule and operator terms
func (r *TripRepository) GetTripDetails(ctx context.Context, tripID uuid.UUID) (*models.TripDetails, error) {
	query := `
		SELECT ` + tripColumns + `,
		       s.bus_id, s.departure_time, s.base_fare,
		       o.id AS operator_id, o.commission_rate, o.cancellation_policy
		FROM trips t
		JOIN schedules s ON s.id = t.schedule_id
		JOIN buses b ON b.id = s.bus_id
		JOIN operators o ON o.id = b.operator_id
		WHERE t.id = $1`

	var details models.TripDetails
	err := sqlx.GetContext(ctx, r.db, &details, query, tripID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip details: %w", err)
	}
	return &details, nil
}

// GetOrCreateTrip returns the trip for (schedule, date), inserting it on first use.
// The unique constraint on (schedule_id, travel_date) makes concurrent callers agree.
func (r *TripRepository) GetOrCreateTrip(ctx context.Context, scheduleID uuid.UUID, travelDate time.Time) (*models.Trip, error) {
	query := `
		INSERT INTO trips AS t (id, schedule_id, travel_date, status)
		VALUES ($1, $2, $3::date, 'SCHEDULED')
		ON CONFLICT (schedule_id, travel_date) DO UPDATE SET updated_at = t.updated_at
		RETURNING ` + tripColumns

	var trip models.Trip
	err := sqlx.GetContext(ctx, r.db, &trip, query, uuid.New(), scheduleID, travelDate.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get or create trip: %w", err)
	}
	return &trip, nil
}

// CreateTrips inserts any missing trips for the given dates and returns how many were created
func (r *TripRepository) CreateTrips(ctx context.Context, scheduleID uuid.UUID, travelDates []time.Time) (int64, error) {
	if len(travelDates) == 0 {
		return 0, nil
	}
	dates := make([]string, len(travelDates))
	for i, d := range travelDates {
		dates[i] = d.Format(dateLayout)
	}

	query := `
		INSERT INTO trips (id, schedule_id, travel_date, status)
		SELECT gen_random_uuid(), $1, d::date, 'SCHEDULED'
		FROM unnest($2::text[]) AS d
		ON CONFLICT (schedule_id, travel_date) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, scheduleID, pq.Array(dates))
	if err != nil {
		return 0, fmt.Errorf("failed to create trips: %w", err)
	}
	created, _ := result.RowsAffected()
	return created, nil
}

// GetScheduleOwner returns the user id of the operator running an active schedule
func (r *TripRepository) GetScheduleOwner(ctx context.Context, scheduleID uuid.UUID) (*uuid.UUID, error) {
	query := `
		SELECT o.user_id
		FROM schedules s
		JOIN buses b ON b.id = s.bus_id
		JOIN operators o ON o.id = b.operator_id
		WHERE s.id = $1 AND s.is_active = TRUE`

	var ownerID uuid.UUID
	err := sqlx.GetContext(ctx, r.db, &ownerID, query, scheduleID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule owner: %w", err)
	}
	return &ownerID, nil
}

// ListActiveScheduleIDs returns every schedule that should have trips materialized
func (r *TripRepository) ListActiveScheduleIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT id FROM schedules WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	return ids, nil
}

// UpdateTripStatus moves a trip from one status to another. It returns false
// if the trip was no longer in the expected status.
func (r *TripRepository) UpdateTripStatus(ctx context.Context, tripID uuid.UUID, from, to models.TripStatus, at time.Time) (bool, error) {
	query := `
		UPDATE trips
		SET status = $3,
		    updated_at = $4,
		    actual_departure = CASE WHEN $3 = 'IN_PROGRESS' THEN COALESCE(actual_departure, $4) ELSE actual_departure END,
		    actual_arrival = CASE WHEN $3 = 'COMPLETED' THEN $4 ELSE actual_arrival END
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, tripID, from, to, at)
	if err != nil {
		return false, fmt.Errorf("failed to update trip status: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// UpdateTripLocation stores the latest GPS fix for a trip
func (r *TripRepository) UpdateTripLocation(ctx context.Context, tripID uuid.UUID, lat, lng float64, at time.Time) error {
	query := `
		UPDATE trips
		SET last_lat = $2, last_lng = $3, last_location_at = $4, updated_at = $4
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, tripID, lat, lng, at)
	if err != nil {
		return fmt.Errorf("failed to update trip location: %w", err)
	}
	return nil
}

// GetBus returns a bus with the user id of its operator
func (r *TripRepository) GetBus(ctx context.Context, busID uuid.UUID) (*models.Bus, error) {
	query := `
		SELECT b.id, b.operator_id, o.user_id AS operator_user_id, b.name, b.bus_type,
		       b.total_seats, b.layout_config
		FROM buses b
		JOIN operators o ON o.id = b.operator_id
		WHERE b.id = $1`

	var bus models.Bus
	err := sqlx.GetContext(ctx, r.db, &bus, query, busID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bus: %w", err)
	}
	return &bus, nil
}

// ListActiveSeats returns the bookable seats of a bus in floor-plan order
func (r *TripRepository) ListActiveSeats(ctx context.Context, busID uuid.UUID) ([]models.Seat, error) {
	query := `
		SELECT id, bus_id, seat_number, seat_type, row_number, column_label, deck, is_active
		FROM seats
		WHERE bus_id = $1 AND is_active = TRUE
		ORDER BY deck, row_number, seat_number`

	var seats []models.Seat
	if err := sqlx.SelectContext(ctx, r.db, &seats, query, busID); err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	return seats, nil
}

// ReplaceBusSeats deletes every seat of a bus and inserts the regenerated set.
// Returns ErrReferenced if existing seats are referenced by bookings.
func (r *TripRepository) ReplaceBusSeats(ctx context.Context, busID uuid.UUID, layout models.LayoutConfig, seats []models.Seat) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM seats WHERE bus_id = $1`, busID); err != nil {
		if IsForeignKeyViolation(err) {
			return ErrReferenced
		}
		return fmt.Errorf("failed to delete seats: %w", err)
	}

	if len(seats) > 0 {
		insert := `
			INSERT INTO seats (id, bus_id, seat_number, seat_type, row_number, column_label, deck, is_active)
			VALUES (:id, :bus_id, :seat_number, :seat_type, :row_number, :column_label, :deck, :is_active)`
		if _, err := sqlx.NamedExecContext(ctx, r.db, insert, seats); err != nil {
			return fmt.Errorf("failed to insert seats: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE buses SET layout_config = $2, total_seats = $3 WHERE id = $1`,
		busID, layout, len(seats))
	if err != nil {
		return fmt.Errorf("failed to update bus layout: %w", err)
	}
	return nil
}
