package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database/memstore"
	"github.com/happybusride/booking-backend/internal/middleware"
	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
	"github.com/happybusride/booking-backend/pkg/jwt"
	"github.com/happybusride/booking-backend/pkg/payment"
)

// testServer is the full API over an in-memory store: one operator with a
// 6-seat bus (1A..2C) and a trip five days out driven by driverID
type testServer struct {
	router     *gin.Engine
	store      *memstore.Store
	gateway    *payment.MockGateway
	jwtService *jwt.Service

	operatorUserID uuid.UUID
	driverID       uuid.UUID
	adminID        uuid.UUID
	busID          uuid.UUID
	scheduleID     uuid.UUID
	tripID         uuid.UUID
	travelDate     time.Time
	seats          map[string]uuid.UUID
}

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.BookingConfig{
		LockDuration:       5 * time.Minute,
		MaxSeatsPerBooking: 4,
		PendingTTL:         15 * time.Minute,
		GatewayTimeout:     2 * time.Second,
		TripHorizonDays:    10,
		Timezone:           "UTC",
	}

	ts := &testServer{
		store:          memstore.New(),
		gateway:        payment.NewMockGateway(logger),
		jwtService:     jwt.NewService("handler-test-secret", time.Hour),
		operatorUserID: uuid.New(),
		driverID:       uuid.New(),
		adminID:        uuid.New(),
		busID:          uuid.New(),
		scheduleID:     uuid.New(),
		tripID:         uuid.New(),
		seats:          make(map[string]uuid.UUID),
	}

	operatorID := uuid.New()
	ts.store.AddOperator(memstore.Operator{
		ID:                 operatorID,
		UserID:             ts.operatorUserID,
		CommissionRate:     decimal.NewFromInt(10),
		CancellationPolicy: models.PolicyModerate,
	})

	layout := models.LayoutConfig{Rows: 2, Columns: []string{"A", "B", models.AisleMarker, "C"}}
	bus := models.Bus{ID: ts.busID, OperatorID: operatorID, Name: "City Express", BusType: "AC_SEATER", Layout: &layout}
	seats := services.GenerateSeats(bus.ID, bus.BusType, layout)
	for _, s := range seats {
		ts.seats[s.SeatNumber] = s.ID
	}
	require.NoError(t, ts.store.AddBus(bus, seats))
	require.NoError(t, ts.store.AddSchedule(memstore.Schedule{
		ID:            ts.scheduleID,
		BusID:         ts.busID,
		DepartureTime: "21:30",
		BaseFare:      decimal.NewFromInt(500),
		IsActive:      true,
	}))

	today := time.Now().UTC()
	ts.travelDate = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 5)
	driver := ts.driverID
	require.NoError(t, ts.store.AddTrip(models.Trip{
		ID:           ts.tripID,
		ScheduleID:   ts.scheduleID,
		TravelDate:   ts.travelDate,
		Status:       models.TripStatusScheduled,
		DriverUserID: &driver,
	}))

	fare := services.DefaultFareEngine()
	inventory := services.NewSeatInventoryService(ts.store, cfg, time.Now, logger)
	reservations := services.NewReservationService(ts.store, cfg, time.Now, logger)
	orchestrator := services.NewBookingOrchestratorService(ts.store, ts.gateway, fare, cfg, time.Now, logger)
	cancellation := services.NewCancellationService(ts.store, fare, cfg, time.Now, logger)
	trips := services.NewActiveTripService(ts.store, time.Now, logger)
	layouts := services.NewBusSeatLayoutService(ts.store, logger)
	generator := services.NewTripGeneratorService(ts.store, cfg, time.Now, logger)

	ts.router = gin.New()
	ts.router.GET("/health", HealthCheck(ts.store, "test"))
	RegisterRoutes(ts.router.Group("/api/v1"), Handlers{
		Seat:     NewSeatHandler(inventory, reservations, logger),
		Booking:  NewBookingHandler(orchestrator, cancellation, logger),
		Operator: NewOperatorHandler(layouts, generator, logger),
		Driver:   NewDriverHandler(trips, logger),
		Admin:    NewAdminHandler(cancellation, logger),
	}, ts.jwtService, middleware.NewRateLimiter(rateLimit, logger), logger)

	return ts
}

func defaultRateLimit() config.RateLimitConfig {
	return config.RateLimitConfig{Requests: 100, WindowSeconds: 60}
}

func (ts *testServer) token(t *testing.T, userID uuid.UUID, roles ...string) string {
	t.Helper()
	token, err := ts.jwtService.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	return token
}

// passenger registers a wallet and returns a bearer token for a new passenger
func (ts *testServer) passenger(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	ts.store.AddUser(id, decimal.Zero)
	return id, ts.token(t, id, services.RolePassenger)
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

type errorBody struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	SeatIDs []uuid.UUID `json:"seat_ids"`
}

func (ts *testServer) seatIDs(labels ...string) []uuid.UUID {
	ids := make([]uuid.UUID, len(labels))
	for i, l := range labels {
		ids[i] = ts.seats[l]
	}
	return ids
}

func (ts *testServer) initiateBody(seatIDs []uuid.UUID) gin.H {
	passengers := make([]gin.H, len(seatIDs))
	for i, id := range seatIDs {
		passengers[i] = gin.H{"name": "Traveller", "age": 28 + i, "gender": "M", "seat_id": id}
	}
	return gin.H{
		"trip_id":    ts.tripID,
		"seat_ids":   seatIDs,
		"passengers": passengers,
		"method":     "UPI",
	}
}

// book locks, initiates and confirms seats for token's user
func (ts *testServer) book(t *testing.T, token string, labels ...string) models.InitiatePaymentResponse {
	t.Helper()
	seatIDs := ts.seatIDs(labels...)

	w := ts.do(t, http.MethodPost, "/api/v1/seats/lock", token, gin.H{"trip_id": ts.tripID, "seat_ids": seatIDs})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/v1/payments/initiate", token, ts.initiateBody(seatIDs))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var init models.InitiatePaymentResponse
	decode(t, w, &init)

	w = ts.do(t, http.MethodPost, "/api/v1/payments/confirm", token, gin.H{"booking_id": init.BookingID, "payment_id": init.PaymentID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return init
}
