package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/models"
)

// BusSeatLayoutService regenerates a bus's seats from its layout. The seat
// set is always derived from the whole layout; seats are never edited one by one.
type BusSeatLayoutService struct {
	store  database.Store
	logger *logrus.Logger
}

// NewBusSeatLayoutService creates a new BusSeatLayoutService
func NewBusSeatLayoutService(store database.Store, logger *logrus.Logger) *BusSeatLayoutService {
	return &BusSeatLayoutService{store: store, logger: logger}
}

// ApplyLayout replaces every seat of the bus with the seats described by layout
func (s *BusSeatLayoutService) ApplyLayout(ctx context.Context, actor Actor, busID uuid.UUID, layout models.LayoutConfig) ([]models.Seat, error) {
	if err := layout.Validate(); err != nil {
		return nil, validationError(CodeInvalidRequest, err.Error())
	}

	var seats []models.Seat
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		bus, err := tx.GetBus(ctx, busID)
		if err != nil {
			return err
		}
		if bus == nil {
			return notFoundError(CodeBusNotFound, "Bus not found")
		}
		if !actor.IsAdmin() && bus.OperatorUserID != actor.UserID {
			return forbiddenError(CodeNotAssigned, "You do not operate this bus")
		}

		seats = GenerateSeats(busID, bus.BusType, layout)
		if err := tx.ReplaceBusSeats(ctx, busID, layout, seats); err != nil {
			if errors.Is(err, database.ErrReferenced) {
				return conflictError(CodeLayoutInUse, "Seats on this bus are referenced by bookings and cannot be regenerated")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, asBookingError("failed to apply layout", err)
	}

	s.logger.WithFields(logrus.Fields{
		"bus_id":   busID,
		"actor_id": actor.UserID,
		"seats":    len(seats),
	}).Info("Bus seat layout applied")
	return seats, nil
}

// GenerateSeats expands a layout deck by deck, row by row, column by column.
// Seats are numbered {row}{column}; buses with more than one deck prefix the
// number with L or U. Sleeper buses get berth types from the deck.
func GenerateSeats(busID uuid.UUID, busType string, layout models.LayoutConfig) []models.Seat {
	decks := layout.DeckList()
	sleeper := strings.Contains(strings.ToUpper(busType), "SLEEPER")

	var seats []models.Seat
	for _, deck := range decks {
		for row := 1; row <= layout.Rows; row++ {
			for _, col := range layout.Columns {
				if col == models.AisleMarker {
					continue
				}
				number := fmt.Sprintf("%d%s", row, col)
				if len(decks) > 1 {
					prefix := "L"
					if deck == models.DeckUpper {
						prefix = "U"
					}
					number = prefix + number
				}
				seatType := models.SeatTypeSeater
				if sleeper {
					seatType = models.SeatTypeLower
					if deck == models.DeckUpper {
						seatType = models.SeatTypeUpper
					}
				}
				seats = append(seats, models.Seat{
					ID:         uuid.New(),
					BusID:      busID,
					SeatNumber: number,
					SeatType:   seatType,
					Row:        row,
					Column:     col,
					Deck:       deck,
					IsActive:   true,
				})
			}
		}
	}
	return seats
}
