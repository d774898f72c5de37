package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybusride/booking-backend/internal/models"
)

func TestActiveTripService_UpdateTripStatus(t *testing.T) {
	t.Run("Driver walks the trip to completion", func(t *testing.T) {
		f := newFixture(t)
		driver := Actor{UserID: f.driverID, Roles: []string{RoleDriver}}
		user := f.newPassenger()
		init := f.book(t, user, f.seatIDs("1A")...)

		for _, status := range []models.TripStatus{
			models.TripStatusBoarding,
			models.TripStatusInProgress,
			models.TripStatusCompleted,
		} {
			trip, err := f.trips.UpdateTripStatus(f.ctx, driver, f.trip.ID, status)
			require.NoError(t, err)
			assert.Equal(t, status, trip.Status)
		}

		booking := f.booking(t, init.BookingID)
		assert.Equal(t, models.BookingStatusCompleted, booking.Status)
		assert.NotNil(t, booking.CompletedAt)
	})

	t.Run("Invalid transition", func(t *testing.T) {
		f := newFixture(t)
		driver := Actor{UserID: f.driverID, Roles: []string{RoleDriver}}

		_, err := f.trips.UpdateTripStatus(f.ctx, driver, f.trip.ID, models.TripStatusCompleted)
		requireKind(t, err, KindValidation, CodeInvalidTransition)
	})

	t.Run("Only the assigned driver", func(t *testing.T) {
		f := newFixture(t)
		other := Actor{UserID: uuid.New(), Roles: []string{RoleDriver}}

		_, err := f.trips.UpdateTripStatus(f.ctx, other, f.trip.ID, models.TripStatusBoarding)
		requireKind(t, err, KindForbidden, CodeNotAssigned)
	})

	t.Run("Unknown trip", func(t *testing.T) {
		f := newFixture(t)
		admin := Actor{UserID: uuid.New(), Roles: []string{RoleAdmin}}

		_, err := f.trips.UpdateTripStatus(f.ctx, admin, uuid.New(), models.TripStatusBoarding)
		requireKind(t, err, KindNotFound, CodeTripNotFound)
	})

	t.Run("Cancelling refunds every confirmed booking in full", func(t *testing.T) {
		f := newFixture(t)
		admin := Actor{UserID: uuid.New(), Roles: []string{RoleAdmin}}
		alice := f.newPassenger()
		bob := f.newPassenger()
		first := f.book(t, alice, f.seatIDs("1A", "1B")...)
		second := f.book(t, bob, f.seatIDs("2A")...)

		// cancellation policy does not apply to operator cancellations
		f.clock.Set(fixtureDeparture.Add(-1))
		trip, err := f.trips.UpdateTripStatus(f.ctx, admin, f.trip.ID, models.TripStatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.TripStatusCancelled, trip.Status)

		for _, tc := range []struct {
			bookingID uuid.UUID
			amount    string
		}{
			{first.BookingID, "450.00"},
			{second.BookingID, "240.00"},
		} {
			booking := f.booking(t, tc.bookingID)
			assert.Equal(t, models.BookingStatusCancelledOperator, booking.Status)

			refund := f.store.RefundForBooking(tc.bookingID)
			require.NotNil(t, refund)
			assert.Equal(t, models.RefundStatusRequested, refund.Status)
			assert.Equal(t, tc.amount, refund.Amount.StringFixed(2))

			assert.Len(t, f.store.Earnings(tc.bookingID), 2)
		}
		assert.Empty(t, f.occupied(t))

		_, err = f.lock(f.newPassenger(), f.seatIDs("3A")...)
		requireKind(t, err, KindConflict, CodeTripNotBookable)
	})
}

func TestActiveTripService_UpdateTripLocation(t *testing.T) {
	f := newFixture(t)
	driver := Actor{UserID: f.driverID, Roles: []string{RoleDriver}}

	err := f.trips.UpdateTripLocation(f.ctx, driver, f.trip.ID, &models.UpdateTripLocationRequest{Lat: 12.97, Lng: 77.59})
	require.NoError(t, err)

	err = f.trips.UpdateTripLocation(f.ctx, driver, f.trip.ID, &models.UpdateTripLocationRequest{Lat: 120, Lng: 0})
	requireKind(t, err, KindValidation, CodeInvalidRequest)

	other := Actor{UserID: uuid.New(), Roles: []string{RoleDriver}}
	err = f.trips.UpdateTripLocation(f.ctx, other, f.trip.ID, &models.UpdateTripLocationRequest{Lat: 12.97, Lng: 77.59})
	requireKind(t, err, KindForbidden, CodeNotAssigned)
}

func TestActiveTripService_VerifyTicket(t *testing.T) {
	f := newFixture(t)
	driver := Actor{UserID: f.driverID, Roles: []string{RoleDriver}}
	user := f.newPassenger()
	init := f.book(t, user, f.seatIDs("3B", "3C")...)

	t.Run("Confirmed ticket", func(t *testing.T) {
		res, err := f.trips.VerifyTicket(f.ctx, driver, f.trip.ID, init.PNR)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, models.BookingStatusConfirmed, res.Status)
		assert.ElementsMatch(t, f.seatIDs("3B", "3C"), res.SeatIDs)
		assert.Len(t, res.Passengers, 2)
	})

	t.Run("Hand-typed PNR is normalised", func(t *testing.T) {
		res, err := f.trips.VerifyTicket(f.ctx, driver, f.trip.ID, "  "+strings.ToLower(init.PNR)+"\n")
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, init.PNR, res.PNR)
	})

	t.Run("Blank PNR", func(t *testing.T) {
		_, err := f.trips.VerifyTicket(f.ctx, driver, f.trip.ID, "   ")
		requireKind(t, err, KindValidation, CodeInvalidRequest)
	})

	t.Run("Unknown PNR", func(t *testing.T) {
		res, err := f.trips.VerifyTicket(f.ctx, driver, f.trip.ID, "HBNOTREAL")
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("Cancelled ticket", func(t *testing.T) {
		_, err := f.cancellation.Cancel(f.ctx, user, init.BookingID, "")
		require.NoError(t, err)

		res, err := f.trips.VerifyTicket(f.ctx, driver, f.trip.ID, init.PNR)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, models.BookingStatusCancelledUser, res.Status)
	})

	t.Run("Passenger cannot scan", func(t *testing.T) {
		_, err := f.trips.VerifyTicket(f.ctx, Actor{UserID: user, Roles: []string{RolePassenger}}, f.trip.ID, init.PNR)
		requireKind(t, err, KindForbidden, CodeNotAssigned)
	})
}
