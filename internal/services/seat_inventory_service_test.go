package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybusride/booking-backend/internal/models"
)

func TestSeatInventoryService_GetSeatView(t *testing.T) {
	f := newFixture(t)
	alice := f.newPassenger()
	bob := f.newPassenger()

	f.book(t, alice, f.seatIDs("1A")...)
	_, err := f.lock(bob, f.seatIDs("2A", "2B")...)
	require.NoError(t, err)

	status := func(view *models.SeatMap) map[string]models.SeatView {
		out := make(map[string]models.SeatView, len(view.Seats))
		for _, v := range view.Seats {
			out[v.SeatNumber] = v
		}
		return out
	}

	t.Run("Seen by the holder", func(t *testing.T) {
		view, err := f.inventory.GetSeatView(f.ctx, f.trip.ID, bob)
		require.NoError(t, err)
		seats := status(view)

		assert.Equal(t, models.SeatBooked, seats["1A"].Status)
		assert.Equal(t, models.SeatLocked, seats["2A"].Status)
		assert.True(t, seats["2A"].HeldByYou)
		assert.Equal(t, models.SeatAvailable, seats["3C"].Status)
		assert.Equal(t, 6, view.Available)
		assert.Equal(t, "2026-11-05", view.TravelDate)
	})

	t.Run("Seen by someone else", func(t *testing.T) {
		view, err := f.inventory.GetSeatView(f.ctx, f.trip.ID, uuid.New())
		require.NoError(t, err)
		seats := status(view)

		assert.Equal(t, models.SeatLocked, seats["2B"].Status)
		assert.False(t, seats["2B"].HeldByYou)
	})

	t.Run("Expired locks are purged on read", func(t *testing.T) {
		f.clock.Advance(6 * time.Minute)
		view, err := f.inventory.GetSeatView(f.ctx, f.trip.ID, bob)
		require.NoError(t, err)

		assert.Equal(t, models.SeatAvailable, status(view)["2A"].Status)
		assert.Equal(t, 8, view.Available)
		assert.Equal(t, 0, f.store.LockCount(f.trip.ID))
	})

	t.Run("Unknown trip", func(t *testing.T) {
		_, err := f.inventory.GetSeatView(f.ctx, uuid.New(), bob)
		requireKind(t, err, KindNotFound, CodeTripNotFound)
	})
}

func TestSeatInventoryService_PendingClaimHoldsSeats(t *testing.T) {
	f := newFixture(t)
	alice := f.newPassenger()
	seats := f.seatIDs("3A")

	_, err := f.lock(alice, seats...)
	require.NoError(t, err)
	_, err = f.initiate(alice, seats...)
	require.NoError(t, err)

	// alice's lock lapses while she is still paying
	f.clock.Advance(6 * time.Minute)
	_, err = f.lock(f.newPassenger(), seats...)
	requireKind(t, err, KindConflict, CodeSeatsUnavailable)

	view, err := f.inventory.GetSeatView(f.ctx, f.trip.ID, alice)
	require.NoError(t, err)
	for _, v := range view.Seats {
		if v.ID == seats[0] {
			assert.Equal(t, models.SeatLocked, v.Status)
			assert.True(t, v.HeldByYou)
		}
	}

	// once the pending booking is stale the seat is free again
	f.clock.Advance(10 * time.Minute)
	_, err = f.lock(f.newPassenger(), seats...)
	require.NoError(t, err)
}

func TestSeatInventoryService_GetScheduleSeatView(t *testing.T) {
	f := newFixture(t)
	user := f.newPassenger()

	t.Run("Existing trip", func(t *testing.T) {
		view, err := f.inventory.GetScheduleSeatView(f.ctx, f.schedule.ID, "2026-11-05", user)
		require.NoError(t, err)
		assert.Equal(t, f.trip.ID, view.TripID)
		assert.Len(t, view.Seats, 9)
	})

	t.Run("Trip is created on first view", func(t *testing.T) {
		first, err := f.inventory.GetScheduleSeatView(f.ctx, f.schedule.ID, "2026-11-20", user)
		require.NoError(t, err)
		assert.NotEqual(t, f.trip.ID, first.TripID)
		assert.Equal(t, models.TripStatusScheduled, first.TripStatus)

		second, err := f.inventory.GetScheduleSeatView(f.ctx, f.schedule.ID, "2026-11-20", user)
		require.NoError(t, err)
		assert.Equal(t, first.TripID, second.TripID)
	})

	t.Run("Bad dates", func(t *testing.T) {
		_, err := f.inventory.GetScheduleSeatView(f.ctx, f.schedule.ID, "05/11/2026", user)
		requireKind(t, err, KindValidation, CodeInvalidRequest)

		_, err = f.inventory.GetScheduleSeatView(f.ctx, f.schedule.ID, "2026-10-31", user)
		requireKind(t, err, KindValidation, CodeInvalidRequest)
	})

	t.Run("Unknown schedule", func(t *testing.T) {
		_, err := f.inventory.GetScheduleSeatView(f.ctx, uuid.New(), "2026-11-05", user)
		requireKind(t, err, KindNotFound, CodeScheduleNotFound)
	})
}

func TestSeatInventoryService_GetHeldSeats(t *testing.T) {
	f := newFixture(t)
	user := f.newPassenger()

	_, err := f.lock(user, f.seatIDs("1B")...)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	_, err = f.lock(user, f.seatIDs("1C")...)
	require.NoError(t, err)

	held, err := f.inventory.GetHeldSeats(f.ctx, f.trip.ID, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, f.seatIDs("1B", "1C"), held.SeatIDs)
	require.NotNil(t, held.ExpiresAt)
	assert.Equal(t, fixtureStart.Add(5*time.Minute), *held.ExpiresAt)

	other, err := f.inventory.GetHeldSeats(f.ctx, f.trip.ID, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other.SeatIDs)
	assert.Nil(t, other.ExpiresAt)
}
