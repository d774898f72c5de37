package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybusride/booking-backend/internal/models"
)

func seatNumbers(seats []models.Seat) []string {
	numbers := make([]string, len(seats))
	for i, s := range seats {
		numbers[i] = s.SeatNumber
	}
	return numbers
}

func TestGenerateSeats(t *testing.T) {
	busID := uuid.New()

	t.Run("Single deck seater", func(t *testing.T) {
		layout := models.LayoutConfig{Rows: 2, Columns: []string{"A", "B", "_", "C"}}
		seats := GenerateSeats(busID, "AC_SEATER", layout)

		assert.Equal(t, []string{"1A", "1B", "1C", "2A", "2B", "2C"}, seatNumbers(seats))
		for _, s := range seats {
			assert.Equal(t, models.SeatTypeSeater, s.SeatType)
			assert.Equal(t, models.DeckLower, s.Deck)
			assert.Equal(t, busID, s.BusID)
			assert.True(t, s.IsActive)
		}
		assert.Equal(t, 2, seats[4].Row)
		assert.Equal(t, "B", seats[4].Column)
	})

	t.Run("Two deck sleeper", func(t *testing.T) {
		layout := models.LayoutConfig{
			Rows:    2,
			Columns: []string{"A", "_", "B"},
			Decks:   []string{models.DeckLower, models.DeckUpper},
		}
		seats := GenerateSeats(busID, "AC_SLEEPER", layout)

		assert.Equal(t, []string{"L1A", "L1B", "L2A", "L2B", "U1A", "U1B", "U2A", "U2B"}, seatNumbers(seats))
		assert.Equal(t, models.SeatTypeLower, seats[0].SeatType)
		assert.Equal(t, models.SeatTypeUpper, seats[7].SeatType)
	})

	t.Run("Single deck sleeper keeps plain numbers", func(t *testing.T) {
		layout := models.LayoutConfig{Rows: 1, Columns: []string{"A", "B"}}
		seats := GenerateSeats(busID, "sleeper", layout)

		assert.Equal(t, []string{"1A", "1B"}, seatNumbers(seats))
		assert.Equal(t, models.SeatTypeLower, seats[0].SeatType)
	})

	t.Run("Seat ids are unique", func(t *testing.T) {
		layout := models.LayoutConfig{Rows: 10, Columns: []string{"A", "B", "_", "C", "D"}}
		seen := make(map[uuid.UUID]bool)
		for _, s := range GenerateSeats(busID, "AC_SEATER", layout) {
			assert.False(t, seen[s.ID])
			seen[s.ID] = true
		}
		assert.Len(t, seen, 40)
	})
}

func TestBusSeatLayoutService_ApplyLayout(t *testing.T) {
	layout := models.LayoutConfig{Rows: 4, Columns: []string{"A", "_", "B", "C"}}

	t.Run("Operator regenerates an unsold bus", func(t *testing.T) {
		f := newFixture(t)
		owner := Actor{UserID: f.operator.UserID, Roles: []string{RoleOperator}}

		seats, err := f.layouts.ApplyLayout(f.ctx, owner, f.bus.ID, layout)
		require.NoError(t, err)
		assert.Len(t, seats, 12)

		view, err := f.inventory.GetSeatView(f.ctx, f.trip.ID, uuid.New())
		require.NoError(t, err)
		assert.Len(t, view.Seats, 12)
		assert.Equal(t, 12, view.Available)
	})

	t.Run("Invalid layout", func(t *testing.T) {
		f := newFixture(t)
		admin := Actor{UserID: uuid.New(), Roles: []string{RoleAdmin}}

		_, err := f.layouts.ApplyLayout(f.ctx, admin, f.bus.ID, models.LayoutConfig{Rows: 0, Columns: []string{"A"}})
		requireKind(t, err, KindValidation, CodeInvalidRequest)

		_, err = f.layouts.ApplyLayout(f.ctx, admin, f.bus.ID, models.LayoutConfig{Rows: 2, Columns: []string{"A", "A"}})
		requireKind(t, err, KindValidation, CodeInvalidRequest)
	})

	t.Run("Other operator is forbidden", func(t *testing.T) {
		f := newFixture(t)
		stranger := Actor{UserID: uuid.New(), Roles: []string{RoleOperator}}

		_, err := f.layouts.ApplyLayout(f.ctx, stranger, f.bus.ID, layout)
		requireKind(t, err, KindForbidden, CodeNotAssigned)
	})

	t.Run("Unknown bus", func(t *testing.T) {
		f := newFixture(t)
		admin := Actor{UserID: uuid.New(), Roles: []string{RoleAdmin}}

		_, err := f.layouts.ApplyLayout(f.ctx, admin, uuid.New(), layout)
		requireKind(t, err, KindNotFound, CodeBusNotFound)
	})

	t.Run("Layout with booked seats is kept", func(t *testing.T) {
		f := newFixture(t)
		admin := Actor{UserID: uuid.New(), Roles: []string{RoleAdmin}}
		f.book(t, f.newPassenger(), f.seatIDs("1A")...)

		_, err := f.layouts.ApplyLayout(f.ctx, admin, f.bus.ID, layout)
		requireKind(t, err, KindConflict, CodeLayoutInUse)

		view, err := f.inventory.GetSeatView(f.ctx, f.trip.ID, uuid.New())
		require.NoError(t, err)
		assert.Len(t, view.Seats, 9)
	})
}
