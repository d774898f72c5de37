package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/models"
)

// SeatInventoryService computes per-trip seat availability. Expired locks are
// purged on every read instead of by a background sweeper, so a lock is never
// honored past its expiry even if nothing has deleted it yet.
type SeatInventoryService struct {
	store  database.Store
	cfg    config.BookingConfig
	loc    *time.Location
	now    Clock
	logger *logrus.Logger
}

// NewSeatInventoryService creates a new SeatInventoryService
func NewSeatInventoryService(store database.Store, cfg config.BookingConfig, clock Clock, logger *logrus.Logger) *SeatInventoryService {
	return &SeatInventoryService{
		store:  store,
		cfg:    cfg,
		loc:    loadLocation(cfg.Timezone),
		now:    clockOrNow(clock),
		logger: logger,
	}
}

// GetSeatView returns every active seat of the trip's bus with its status
func (s *SeatInventoryService) GetSeatView(ctx context.Context, tripID, userID uuid.UUID) (*models.SeatMap, error) {
	var seatMap *models.SeatMap
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		details, err := tx.GetTripDetails(ctx, tripID)
		if err != nil {
			return err
		}
		if details == nil {
			return notFoundError(CodeTripNotFound, "Trip not found")
		}
		seatMap, err = s.buildSeatMap(ctx, tx, details, userID)
		return err
	})
	if err != nil {
		return nil, asBookingError("failed to load seat view", err)
	}
	return seatMap, nil
}

// GetScheduleSeatView resolves the trip for a schedule on a date, creating it
// on first use, and returns its seat view
func (s *SeatInventoryService) GetScheduleSeatView(ctx context.Context, scheduleID uuid.UUID, date string, userID uuid.UUID) (*models.SeatMap, error) {
	travelDate, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return nil, validationError(CodeInvalidRequest, "date must be in YYYY-MM-DD format")
	}
	y, m, d := s.now().In(s.loc).Date()
	if travelDate.Before(time.Date(y, m, d, 0, 0, 0, 0, s.loc)) {
		return nil, validationError(CodeInvalidRequest, "date cannot be in the past")
	}

	var seatMap *models.SeatMap
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		owner, err := tx.GetScheduleOwner(ctx, scheduleID)
		if err != nil {
			return err
		}
		if owner == nil {
			return notFoundError(CodeScheduleNotFound, "Schedule not found")
		}
		trip, err := tx.GetOrCreateTrip(ctx, scheduleID, travelDate)
		if err != nil {
			return err
		}
		details, err := tx.GetTripDetails(ctx, trip.ID)
		if err != nil {
			return err
		}
		if details == nil {
			return notFoundError(CodeTripNotFound, "Trip not found")
		}
		seatMap, err = s.buildSeatMap(ctx, tx, details, userID)
		return err
	})
	if err != nil {
		return nil, asBookingError("failed to load seat view", err)
	}
	return seatMap, nil
}

// GetHeldSeats returns the caller's unexpired locks on a trip
func (s *SeatInventoryService) GetHeldSeats(ctx context.Context, tripID, userID uuid.UUID) (*models.HeldSeats, error) {
	held := &models.HeldSeats{TripID: tripID, SeatIDs: []uuid.UUID{}}
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		locks, err := tx.ListActiveLocks(ctx, tripID, s.now())
		if err != nil {
			return err
		}
		for _, lock := range locks {
			if lock.UserID != userID {
				continue
			}
			held.SeatIDs = append(held.SeatIDs, lock.SeatID)
			if held.ExpiresAt == nil || lock.ExpiresAt.Before(*held.ExpiresAt) {
				expiresAt := lock.ExpiresAt
				held.ExpiresAt = &expiresAt
			}
		}
		return nil
	})
	if err != nil {
		return nil, asBookingError("failed to load held seats", err)
	}
	return held, nil
}

func (s *SeatInventoryService) buildSeatMap(ctx context.Context, tx database.Tx, details *models.TripDetails, userID uuid.UUID) (*models.SeatMap, error) {
	now := s.now()

	purged, err := tx.DeleteExpiredLocks(ctx, details.ID, now)
	if err != nil {
		return nil, err
	}
	if purged > 0 {
		s.logger.WithFields(logrus.Fields{
			"trip_id": details.ID,
			"purged":  purged,
		}).Debug("Purged expired seat locks")
	}

	seats, err := tx.ListActiveSeats(ctx, details.BusID)
	if err != nil {
		return nil, err
	}
	st, err := loadSeatState(ctx, tx, details.ID, now, now.Add(-s.cfg.PendingTTL))
	if err != nil {
		return nil, err
	}

	seatMap := &models.SeatMap{
		TripID:     details.ID,
		TravelDate: details.TravelDate.Format("2006-01-02"),
		TripStatus: details.Status,
		Seats:      make([]models.SeatView, 0, len(seats)),
	}
	for _, seat := range seats {
		view := models.SeatView{Seat: seat, Status: models.SeatAvailable}
		if st.occupied[seat.ID] {
			view.Status = models.SeatBooked
		} else if holder, ok := st.holder(seat.ID); ok {
			view.Status = models.SeatLocked
			view.HeldByYou = holder == userID
		} else {
			seatMap.Available++
		}
		seatMap.Seats = append(seatMap.Seats, view)
	}
	return seatMap, nil
}

// seatState is the occupancy of one trip as seen inside a transaction
type seatState struct {
	occupied map[uuid.UUID]bool
	locks    map[uuid.UUID]models.SeatLock
	claims   map[uuid.UUID]models.SeatClaim
}

func loadSeatState(ctx context.Context, tx database.Tx, tripID uuid.UUID, now, claimsSince time.Time) (*seatState, error) {
	st := &seatState{
		occupied: make(map[uuid.UUID]bool),
		locks:    make(map[uuid.UUID]models.SeatLock),
		claims:   make(map[uuid.UUID]models.SeatClaim),
	}

	occupied, err := tx.ListOccupiedSeatIDs(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, id := range occupied {
		st.occupied[id] = true
	}

	locks, err := tx.ListActiveLocks(ctx, tripID, now)
	if err != nil {
		return nil, err
	}
	for _, lock := range locks {
		st.locks[lock.SeatID] = lock
	}

	claims, err := tx.ListPendingClaims(ctx, tripID, claimsSince)
	if err != nil {
		return nil, err
	}
	for _, claim := range claims {
		st.claims[claim.SeatID] = claim
	}
	return st, nil
}

// holder returns who keeps a seat off the market: an unexpired lock first,
// then a fresh pending booking
func (st *seatState) holder(seatID uuid.UUID) (uuid.UUID, bool) {
	if lock, ok := st.locks[seatID]; ok {
		return lock.UserID, true
	}
	if claim, ok := st.claims[seatID]; ok {
		return claim.UserID, true
	}
	return uuid.Nil, false
}

// heldByOthers returns the requested seats held by someone other than userID
func (st *seatState) heldByOthers(seatIDs []uuid.UUID, userID uuid.UUID) []uuid.UUID {
	var taken []uuid.UUID
	for _, id := range seatIDs {
		if holder, ok := st.holder(id); ok && holder != userID {
			taken = append(taken, id)
		}
	}
	return taken
}

// bookedAmong returns the requested seats already occupied by a booking
func (st *seatState) bookedAmong(seatIDs []uuid.UUID) []uuid.UUID {
	var booked []uuid.UUID
	for _, id := range seatIDs {
		if st.occupied[id] {
			booked = append(booked, id)
		}
	}
	return booked
}
