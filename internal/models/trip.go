package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TripStatus represents the lifecycle state of a trip
type TripStatus string

const (
	TripStatusScheduled  TripStatus = "SCHEDULED"
	TripStatusBoarding   TripStatus = "BOARDING"
	TripStatusInProgress TripStatus = "IN_PROGRESS"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusCancelled  TripStatus = "CANCELLED"
	TripStatusDelayed    TripStatus = "DELAYED"
)

// tripTransitions lists the statuses reachable from each status
var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusScheduled:  {TripStatusBoarding, TripStatusDelayed, TripStatusCancelled},
	TripStatusDelayed:    {TripStatusScheduled, TripStatusBoarding, TripStatusInProgress, TripStatusCancelled},
	TripStatusBoarding:   {TripStatusInProgress, TripStatusDelayed, TripStatusCancelled},
	TripStatusInProgress: {TripStatusCompleted, TripStatusDelayed},
}

// CanTransitionTo reports whether a trip may move from s to next
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, allowed := range tripTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsBookable reports whether seats on a trip in this status can be sold
func (s TripStatus) IsBookable() bool {
	return s == TripStatusScheduled || s == TripStatusDelayed
}

// CancellationPolicy is the operator-level refund rule
type CancellationPolicy string

const (
	PolicyFlexible CancellationPolicy = "FLEXIBLE"
	PolicyModerate CancellationPolicy = "MODERATE"
	PolicyStrict   CancellationPolicy = "STRICT"
)

// Trip is one dated occurrence of a schedule
type Trip struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ScheduleID      uuid.UUID  `json:"schedule_id" db:"schedule_id"`
	TravelDate      time.Time  `json:"travel_date" db:"travel_date"`
	Status          TripStatus `json:"status" db:"status"`
	DriverUserID    *uuid.UUID `json:"driver_user_id,omitempty" db:"driver_user_id"`
	LastLat         *float64   `json:"last_lat,omitempty" db:"last_lat"`
	LastLng         *float64   `json:"last_lng,omitempty" db:"last_lng"`
	LastLocationAt  *time.Time `json:"last_location_at,omitempty" db:"last_location_at"`
	ActualDeparture *time.Time `json:"actual_departure,omitempty" db:"actual_departure"`
	ActualArrival   *time.Time `json:"actual_arrival,omitempty" db:"actual_arrival"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// TripDetails joins a trip with the schedule, bus and operator data the
// booking core prices and authorizes against
type TripDetails struct {
	Trip
	BusID              uuid.UUID          `json:"bus_id" db:"bus_id"`
	DepartureTime      string             `json:"departure_time" db:"departure_time"` // HH:MM, local
	BaseFare           decimal.Decimal    `json:"base_fare" db:"base_fare"`
	OperatorID         uuid.UUID          `json:"operator_id" db:"operator_id"`
	CommissionRate     decimal.Decimal    `json:"commission_rate" db:"commission_rate"`
	CancellationPolicy CancellationPolicy `json:"cancellation_policy" db:"cancellation_policy"`
}

// DepartureAt combines the travel date with the schedule's departure time in loc
func (t *TripDetails) DepartureAt(loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", t.DepartureTime)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.TravelDate.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// UpdateTripStatusRequest is sent by the driver app
type UpdateTripStatusRequest struct {
	Status TripStatus `json:"status" binding:"required"`
}

// UpdateTripLocationRequest carries a GPS fix
type UpdateTripLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinates are on the globe
func (r *UpdateTripLocationRequest) Validate() error {
	if r.Lat < -90 || r.Lat > 90 || r.Lng < -180 || r.Lng > 180 {
		return errors.New("lat must be within [-90, 90] and lng within [-180, 180]")
	}
	return nil
}
