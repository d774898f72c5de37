package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
)

const maxGenerateDays = 90

// TripGeneratorService materializes trips from schedules ahead of time. Seat
// view requests also create trips lazily, so a gap here is never fatal.
type TripGeneratorService struct {
	store   database.Store
	horizon int
	loc     *time.Location
	now     Clock
	logger  *logrus.Logger
}

// NewTripGeneratorService creates a new TripGeneratorService
func NewTripGeneratorService(store database.Store, cfg config.BookingConfig, clock Clock, logger *logrus.Logger) *TripGeneratorService {
	return &TripGeneratorService{
		store:   store,
		horizon: cfg.TripHorizonDays,
		loc:     loadLocation(cfg.Timezone),
		now:     clockOrNow(clock),
		logger:  logger,
	}
}

// GenerateTrips creates the missing trips of one schedule for the next days,
// starting today. days <= 0 uses the configured horizon.
func (s *TripGeneratorService) GenerateTrips(ctx context.Context, actor Actor, scheduleID uuid.UUID, days int) (int64, error) {
	if days <= 0 {
		days = s.horizon
	}
	if days > maxGenerateDays {
		return 0, validationError(CodeInvalidRequest, "days cannot exceed 90")
	}

	var created int64
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		owner, err := tx.GetScheduleOwner(ctx, scheduleID)
		if err != nil {
			return err
		}
		if owner == nil {
			return notFoundError(CodeScheduleNotFound, "Schedule not found")
		}
		if !actor.IsAdmin() && *owner != actor.UserID {
			return forbiddenError(CodeNotAssigned, "You do not operate this schedule")
		}
		created, err = tx.CreateTrips(ctx, scheduleID, s.travelDates(days))
		return err
	})
	if err != nil {
		return 0, asBookingError("failed to generate trips", err)
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"days":        days,
		"created":     created,
	}).Info("Trips generated")
	return created, nil
}

// ExtendHorizon tops up every active schedule to the configured horizon. A
// failing schedule is logged and skipped.
func (s *TripGeneratorService) ExtendHorizon(ctx context.Context) (int64, error) {
	var scheduleIDs []uuid.UUID
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		scheduleIDs, err = tx.ListActiveScheduleIDs(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	dates := s.travelDates(s.horizon)
	var total int64
	for _, scheduleID := range scheduleIDs {
		var created int64
		err := s.store.InTx(ctx, func(tx database.Tx) error {
			var err error
			created, err = tx.CreateTrips(ctx, scheduleID, dates)
			return err
		})
		if err != nil {
			s.logger.WithError(err).WithField("schedule_id", scheduleID).Error("Failed to extend trip horizon")
			continue
		}
		total += created
	}
	return total, nil
}

// travelDates returns today and the following days-1 dates in the service timezone
func (s *TripGeneratorService) travelDates(days int) []time.Time {
	y, m, d := s.now().In(s.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, days)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}
