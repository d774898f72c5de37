package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/models"
)

const operatorCancelReason = "Trip cancelled by operator"

// ActiveTripService handles the driver-facing side of a trip: status changes,
// GPS updates and ticket scans
type ActiveTripService struct {
	store  database.Store
	now    Clock
	logger *logrus.Logger
}

// NewActiveTripService creates a new ActiveTripService
func NewActiveTripService(store database.Store, clock Clock, logger *logrus.Logger) *ActiveTripService {
	return &ActiveTripService{
		store:  store,
		now:    clockOrNow(clock),
		logger: logger,
	}
}

// assignedTrip loads a trip the actor may drive: its assigned driver or an admin
func assignedTrip(ctx context.Context, tx database.Tx, actor Actor, tripID uuid.UUID) (*models.TripDetails, error) {
	details, err := tx.GetTripDetails(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, notFoundError(CodeTripNotFound, "Trip not found")
	}
	if actor.IsAdmin() {
		return details, nil
	}
	if details.DriverUserID == nil || *details.DriverUserID != actor.UserID {
		return nil, forbiddenError(CodeNotAssigned, "You are not assigned to this trip")
	}
	return details, nil
}

// UpdateTripStatus moves a trip through its lifecycle. Completing a trip
// completes its confirmed bookings; cancelling it cancels them on the
// operator's account with a full refund.
func (s *ActiveTripService) UpdateTripStatus(ctx context.Context, actor Actor, tripID uuid.UUID, to models.TripStatus) (*models.Trip, error) {
	now := s.now()

	var (
		trip     *models.Trip
		affected int64
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		details, err := assignedTrip(ctx, tx, actor, tripID)
		if err != nil {
			return err
		}
		from := details.Status
		if !from.CanTransitionTo(to) {
			return validationError(CodeInvalidTransition,
				fmt.Sprintf("Cannot change trip status from %s to %s", from, to))
		}

		ok, err := tx.UpdateTripStatus(ctx, tripID, from, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return conflictError(CodeInvalidTransition, "Trip status changed concurrently. Please refresh")
		}

		affected = 0
		switch to {
		case models.TripStatusCompleted:
			affected, err = tx.CompleteTripBookings(ctx, tripID, now)
			if err != nil {
				return err
			}
		case models.TripStatusCancelled:
			affected, err = cancelTripBookings(ctx, tx, details, now)
			if err != nil {
				return err
			}
		}

		updated, err := tx.GetTripDetails(ctx, tripID)
		if err != nil {
			return err
		}
		trip = &updated.Trip
		return nil
	})
	if err != nil {
		return nil, asBookingError("failed to update trip status", err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":  tripID,
		"status":   to,
		"actor_id": actor.UserID,
		"bookings": affected,
	}).Info("Trip status updated")
	return trip, nil
}

// cancelTripBookings reverses every confirmed booking on a cancelled trip
func cancelTripBookings(ctx context.Context, tx database.Tx, details *models.TripDetails, now time.Time) (int64, error) {
	bookings, err := tx.ListTripBookings(ctx, details.ID, models.BookingStatusConfirmed)
	if err != nil {
		return 0, err
	}
	for i := range bookings {
		_, err := reverseBooking(ctx, tx, &bookings[i], reversal{
			status:       models.BookingStatusCancelledOperator,
			reason:       operatorCancelReason,
			refundAmount: bookings[i].TotalAmount,
			policy:       details.CancellationPolicy,
			at:           now,
		})
		if err != nil {
			return 0, err
		}
	}
	return int64(len(bookings)), nil
}

// UpdateTripLocation records the latest GPS fix of a running trip
func (s *ActiveTripService) UpdateTripLocation(ctx context.Context, actor Actor, tripID uuid.UUID, req *models.UpdateTripLocationRequest) error {
	if err := req.Validate(); err != nil {
		return validationError(CodeInvalidRequest, err.Error())
	}

	err := s.store.InTx(ctx, func(tx database.Tx) error {
		details, err := assignedTrip(ctx, tx, actor, tripID)
		if err != nil {
			return err
		}
		if details.Status == models.TripStatusCompleted || details.Status == models.TripStatusCancelled {
			return conflictError(CodeInvalidTransition, "Trip is no longer running")
		}
		return tx.UpdateTripLocation(ctx, tripID, req.Lat, req.Lng, s.now())
	})
	if err != nil {
		return asBookingError("failed to update trip location", err)
	}
	return nil
}

// VerifyTicket checks a scanned PNR against the trip's bookings
func (s *ActiveTripService) VerifyTicket(ctx context.Context, actor Actor, tripID uuid.UUID, pnr string) (*models.TicketVerification, error) {
	// PNRs are issued upper-case; conductors often key them in by hand
	pnr = strings.ToUpper(strings.TrimSpace(pnr))
	if pnr == "" {
		return nil, validationError(CodeInvalidRequest, "pnr is required")
	}

	var result *models.TicketVerification
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		if _, err := assignedTrip(ctx, tx, actor, tripID); err != nil {
			return err
		}
		booking, err := tx.GetBookingByPNR(ctx, tripID, pnr)
		if err != nil {
			return err
		}
		if booking == nil {
			result = &models.TicketVerification{Valid: false, PNR: pnr, Message: "Ticket not found for this trip"}
			return nil
		}
		result = &models.TicketVerification{
			Valid:      booking.Status.OccupiesSeats(),
			PNR:        booking.PNR,
			Status:     booking.Status,
			SeatIDs:    booking.SeatIDs(),
			Passengers: booking.Passengers,
		}
		if !result.Valid {
			result.Message = fmt.Sprintf("Ticket is %s", booking.Status)
		}
		return nil
	})
	if err != nil {
		return nil, asBookingError("failed to verify ticket", err)
	}
	return result, nil
}
