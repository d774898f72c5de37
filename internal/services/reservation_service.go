package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/models"
)

const msgSeatsUnavailable = "One or more seats are no longer available. Please select different seats"

// ReservationService grants and releases time-bounded seat holds. Mutual
// exclusion comes from the store's conditional upsert on (trip, seat), so any
// number of server instances can serve lock calls for the same trip.
type ReservationService struct {
	store  database.Store
	cfg    config.BookingConfig
	now    Clock
	logger *logrus.Logger
}

// NewReservationService creates a new ReservationService
func NewReservationService(store database.Store, cfg config.BookingConfig, clock Clock, logger *logrus.Logger) *ReservationService {
	return &ReservationService{
		store:  store,
		cfg:    cfg,
		now:    clockOrNow(clock),
		logger: logger,
	}
}

// Lock holds every requested seat for the user or none of them. Calling it
// again for seats the user already holds refreshes their expiry.
func (s *ReservationService) Lock(ctx context.Context, userID uuid.UUID, req *models.SeatSelectionRequest) (*models.LockResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(CodeInvalidRequest, err.Error())
	}
	if err := s.checkSeatCount(req.SeatIDs); err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.LockDuration)

	err := s.store.InTx(ctx, func(tx database.Tx) error {
		details, err := tx.GetTripDetails(ctx, req.TripID)
		if err != nil {
			return err
		}
		if details == nil {
			return notFoundError(CodeTripNotFound, "Trip not found")
		}
		if !details.Status.IsBookable() {
			return conflictError(CodeTripNotBookable, "This trip is no longer open for booking")
		}
		if err := checkSeatsBelongToBus(ctx, tx, details.BusID, req.SeatIDs); err != nil {
			return err
		}

		if _, err := tx.DeleteExpiredLocks(ctx, req.TripID, now); err != nil {
			return err
		}

		st, err := loadSeatState(ctx, tx, req.TripID, now, now.Add(-s.cfg.PendingTTL))
		if err != nil {
			return err
		}
		if taken := st.heldByOthers(req.SeatIDs, userID); len(taken) > 0 {
			return conflictError(CodeSeatsUnavailable, msgSeatsUnavailable, taken...)
		}
		if booked := st.bookedAmong(req.SeatIDs); len(booked) > 0 {
			return conflictError(CodeSeatsAlreadyBooked, "One or more seats are already booked", booked...)
		}

		granted, err := tx.AcquireLocks(ctx, req.TripID, userID, req.SeatIDs, expiresAt, now)
		if err != nil {
			return err
		}
		if len(granted) != len(req.SeatIDs) {
			return conflictError(CodeSeatsUnavailable, msgSeatsUnavailable, missingSeats(req.SeatIDs, granted)...)
		}

		// A confirmation may have committed between the reads above and the
		// upsert; re-read occupancy now that our lock rows are written.
		occupied, err := tx.ListOccupiedSeatIDs(ctx, req.TripID)
		if err != nil {
			return err
		}
		if booked := intersect(req.SeatIDs, occupied); len(booked) > 0 {
			return conflictError(CodeSeatsAlreadyBooked, "One or more seats are already booked", booked...)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindConflict {
			s.logger.WithFields(logrus.Fields{
				"trip_id": req.TripID,
				"user_id": userID,
				"error":   err.Error(),
			}).Info("Seat lock rejected")
		}
		return nil, asBookingError("failed to lock seats", err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":    req.TripID,
		"user_id":    userID,
		"seats":      len(req.SeatIDs),
		"expires_at": expiresAt,
	}).Info("Seats locked")

	return &models.LockResult{TripID: req.TripID, SeatIDs: req.SeatIDs, ExpiresAt: expiresAt}, nil
}

// Release deletes the caller's locks on the given seats, or on the whole trip
// when no seats are given. Releasing seats that are not held is not an error.
func (s *ReservationService) Release(ctx context.Context, userID uuid.UUID, tripID uuid.UUID, seatIDs []uuid.UUID) (int64, error) {
	if tripID == uuid.Nil {
		return 0, validationError(CodeInvalidRequest, "trip_id is required")
	}

	var released int64
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		released, err = tx.ReleaseLocks(ctx, tripID, userID, seatIDs)
		return err
	})
	if err != nil {
		return 0, asBookingError("failed to release seats", err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":  tripID,
		"user_id":  userID,
		"released": released,
	}).Debug("Seats released")
	return released, nil
}

func (s *ReservationService) checkSeatCount(seatIDs []uuid.UUID) error {
	if len(seatIDs) > s.cfg.MaxSeatsPerBooking {
		return &BookingError{
			Kind:    KindValidation,
			Code:    CodeInvalidSeatCount,
			Message: "Too many seats selected",
		}
	}
	seen := make(map[uuid.UUID]bool, len(seatIDs))
	for _, id := range seatIDs {
		if seen[id] {
			return &BookingError{
				Kind:    KindValidation,
				Code:    CodeInvalidRequest,
				Message: "A seat is listed more than once",
				SeatIDs: []uuid.UUID{id},
			}
		}
		seen[id] = true
	}
	return nil
}

// checkSeatsBelongToBus rejects seat ids that are not active seats of the bus
func checkSeatsBelongToBus(ctx context.Context, tx database.Tx, busID uuid.UUID, seatIDs []uuid.UUID) error {
	seats, err := tx.ListActiveSeats(ctx, busID)
	if err != nil {
		return err
	}
	known := make(map[uuid.UUID]bool, len(seats))
	for _, seat := range seats {
		known[seat.ID] = true
	}
	var unknown []uuid.UUID
	for _, id := range seatIDs {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return &BookingError{
			Kind:    KindValidation,
			Code:    CodeUnknownSeat,
			Message: "One or more seats do not exist on this bus",
			SeatIDs: unknown,
		}
	}
	return nil
}

func missingSeats(requested, granted []uuid.UUID) []uuid.UUID {
	got := make(map[uuid.UUID]bool, len(granted))
	for _, id := range granted {
		got[id] = true
	}
	var missing []uuid.UUID
	for _, id := range requested {
		if !got[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func intersect(a, b []uuid.UUID) []uuid.UUID {
	in := make(map[uuid.UUID]bool, len(b))
	for _, id := range b {
		in[id] = true
	}
	var out []uuid.UUID
	for _, id := range a {
		if in[id] {
			out = append(out, id)
		}
	}
	return out
}
