package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
)

func TestBookingAPI_EndToEnd(t *testing.T) {
	ts := newTestServer(t, defaultRateLimit())
	userID, token := ts.passenger(t)
	tripSeats := fmt.Sprintf("/api/v1/trips/%s/seats", ts.tripID)

	w := ts.do(t, http.MethodGet, tripSeats, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var seatMap models.SeatMap
	decode(t, w, &seatMap)
	assert.Equal(t, 6, seatMap.Available)
	assert.Len(t, seatMap.Seats, 6)

	init := ts.book(t, token, "1A", "1B")
	assert.Equal(t, "1080.00", init.Amount)

	w = ts.do(t, http.MethodGet, tripSeats, token, nil)
	decode(t, w, &seatMap)
	assert.Equal(t, 4, seatMap.Available)

	t.Run("booking read stores device info", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/bookings/"+init.BookingID.String(), token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var booking models.Booking
		decode(t, w, &booking)
		assert.Equal(t, userID, booking.UserID)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.Len(t, booking.Passengers, 2)
		assert.Equal(t, "mobile", booking.DeviceInfo["device"])
	})

	t.Run("other passengers cannot see it", func(t *testing.T) {
		_, other := ts.passenger(t)
		w := ts.do(t, http.MethodGet, "/api/v1/bookings/"+init.BookingID.String(), other, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		var body errorBody
		decode(t, w, &body)
		assert.Equal(t, services.CodeBookingNotFound, body.Error)
	})

	t.Run("confirming twice is a conflict", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/payments/confirm", token, gin.H{"booking_id": init.BookingID, "payment_id": init.PaymentID})
		assert.Equal(t, http.StatusConflict, w.Code)

		var body errorBody
		decode(t, w, &body)
		assert.Equal(t, services.CodeBookingAlreadyProcessed, body.Error)
	})

	var cancel models.CancelBookingResponse
	t.Run("cancel five days out refunds in full", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/bookings/"+init.BookingID.String()+"/cancel", token, gin.H{"reason": "plans changed"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &cancel)
		assert.Equal(t, models.BookingStatusCancelledUser, cancel.Status)
		assert.Equal(t, "1080.00", cancel.RefundAmount)
		assert.Equal(t, models.RefundStatusRequested, cancel.RefundStatus)
	})

	t.Run("admin settles the refund once", func(t *testing.T) {
		admin := ts.token(t, ts.adminID, services.RoleAdmin)
		path := fmt.Sprintf("/api/v1/admin/refunds/%s/approve", cancel.RefundID)

		w := ts.do(t, http.MethodPut, path, admin, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = ts.do(t, http.MethodPut, path, admin, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("wallet shows the credit", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/wallet", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var wallet models.Wallet
		decode(t, w, &wallet)
		assert.True(t, decimal.RequireFromString("1080").Equal(wallet.Balance), wallet.Balance.String())
		assert.NotEmpty(t, wallet.Transactions)
	})

	w = ts.do(t, http.MethodGet, tripSeats, token, nil)
	decode(t, w, &seatMap)
	assert.Equal(t, 6, seatMap.Available)
}

func TestBookingAPI_SeatConflicts(t *testing.T) {
	ts := newTestServer(t, defaultRateLimit())
	_, alice := ts.passenger(t)
	_, bob := ts.passenger(t)

	w := ts.do(t, http.MethodPost, "/api/v1/seats/lock", alice, gin.H{"trip_id": ts.tripID, "seat_ids": ts.seatIDs("2A")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("held seat is reported with its id", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/seats/lock", bob, gin.H{"trip_id": ts.tripID, "seat_ids": ts.seatIDs("2A", "2B")})
		assert.Equal(t, http.StatusConflict, w.Code)

		var body errorBody
		decode(t, w, &body)
		assert.Equal(t, services.CodeSeatsUnavailable, body.Error)
		assert.Equal(t, ts.seatIDs("2A"), body.SeatIDs)
	})

	t.Run("held seats lookup", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/trips/%s/seats/held", ts.tripID), alice, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var held models.HeldSeats
		decode(t, w, &held)
		assert.Equal(t, ts.seatIDs("2A"), held.SeatIDs)
		assert.NotNil(t, held.ExpiresAt)
	})

	t.Run("initiate without a hold", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/payments/initiate", bob, ts.initiateBody(ts.seatIDs("2A")))
		assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	})

	t.Run("release frees the seat", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/seats/release", alice, gin.H{"trip_id": ts.tripID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"released": 1}`, w.Body.String())

		w = ts.do(t, http.MethodPost, "/api/v1/seats/lock", bob, gin.H{"trip_id": ts.tripID, "seat_ids": ts.seatIDs("2A")})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("too many seats", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/seats/lock", alice, gin.H{"trip_id": ts.tripID, "seat_ids": ts.seatIDs("1A", "1B", "1C", "2B", "2C")})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body errorBody
		decode(t, w, &body)
		assert.Equal(t, services.CodeInvalidSeatCount, body.Error)
	})

	t.Run("unknown trip", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/seats/lock", alice, gin.H{"trip_id": uuid.New(), "seat_ids": ts.seatIDs("1A")})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBookingAPI_PaymentDeclined(t *testing.T) {
	ts := newTestServer(t, defaultRateLimit())
	_, token := ts.passenger(t)
	seatIDs := ts.seatIDs("1C")

	w := ts.do(t, http.MethodPost, "/api/v1/seats/lock", token, gin.H{"trip_id": ts.tripID, "seat_ids": seatIDs})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = ts.do(t, http.MethodPost, "/api/v1/payments/initiate", token, ts.initiateBody(seatIDs))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var init models.InitiatePaymentResponse
	decode(t, w, &init)
	assert.Equal(t, "555.00", init.Amount)

	ts.gateway.Decline(init.PaymentID, "card declined")
	w = ts.do(t, http.MethodPost, "/api/v1/payments/confirm", token, gin.H{"booking_id": init.BookingID, "payment_id": init.PaymentID})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var body errorBody
	decode(t, w, &body)
	assert.Equal(t, services.CodePaymentFailed, body.Error)
}

func TestBookingAPI_RequestValidation(t *testing.T) {
	ts := newTestServer(t, defaultRateLimit())
	_, token := ts.passenger(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"malformed booking id", http.MethodGet, "/api/v1/bookings/not-a-uuid", nil, http.StatusBadRequest},
		{"lock without trip", http.MethodPost, "/api/v1/seats/lock", gin.H{"seat_ids": ts.seatIDs("1A")}, http.StatusBadRequest},
		{"confirm without payment id", http.MethodPost, "/api/v1/payments/confirm", gin.H{"booking_id": uuid.New()}, http.StatusBadRequest},
		{"passenger count mismatch", http.MethodPost, "/api/v1/payments/initiate", gin.H{
			"trip_id":    ts.tripID,
			"seat_ids":   ts.seatIDs("1A", "1B"),
			"passengers": []gin.H{{"name": "Solo", "age": 30, "gender": "F", "seat_id": ts.seats["1A"]}},
			"method":     "UPI",
		}, http.StatusBadRequest},
		{"schedule view without date", http.MethodGet, fmt.Sprintf("/api/v1/schedules/%s/seats", ts.scheduleID), nil, http.StatusBadRequest},
		{"unknown booking", http.MethodGet, "/api/v1/bookings/" + uuid.NewString(), nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestBookingAPI_ScheduleSeatView(t *testing.T) {
	ts := newTestServer(t, defaultRateLimit())
	_, token := ts.passenger(t)

	date := ts.travelDate.AddDate(0, 0, 1).Format("2006-01-02")
	path := fmt.Sprintf("/api/v1/schedules/%s/seats?date=%s", ts.scheduleID, date)

	w := ts.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first models.SeatMap
	decode(t, w, &first)
	assert.Equal(t, date, first.TravelDate)
	assert.Equal(t, 6, first.Available)

	w = ts.do(t, http.MethodGet, path, token, nil)
	var second models.SeatMap
	decode(t, w, &second)
	assert.Equal(t, first.TripID, second.TripID)
}
