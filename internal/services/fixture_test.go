package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/database/memstore"
	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/pkg/payment"
)

// testClock is a settable clock shared by every service of a fixture
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixture is one operator with a 9-seat bus, one daily schedule and one trip
// departing 2026-11-05 22:00 UTC. The clock starts on 2026-11-01 08:00 UTC.
type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	gateway  *payment.MockGateway
	clock    *testClock
	cfg      config.BookingConfig
	logger   *logrus.Logger
	operator memstore.Operator
	bus      models.Bus
	seats    []models.Seat
	schedule memstore.Schedule
	trip     models.Trip
	driverID uuid.UUID

	reservations *ReservationService
	inventory    *SeatInventoryService
	orchestrator *BookingOrchestratorService
	cancellation *CancellationService
	trips        *ActiveTripService
	layouts      *BusSeatLayoutService
	generator    *TripGeneratorService
}

var fixtureStart = time.Date(2026, 11, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		store:    memstore.New(),
		clock:    &testClock{now: fixtureStart},
		logger:   quietLogger(),
		driverID: uuid.New(),
		cfg: config.BookingConfig{
			LockDuration:       5 * time.Minute,
			MaxSeatsPerBooking: 6,
			PendingTTL:         15 * time.Minute,
			GatewayTimeout:     2 * time.Second,
			TripHorizonDays:    30,
			Timezone:           "UTC",
		},
	}
	f.gateway = payment.NewMockGateway(f.logger)

	f.operator = memstore.Operator{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		CommissionRate:     decimal.NewFromInt(10),
		CancellationPolicy: models.PolicyModerate,
	}
	f.store.AddOperator(f.operator)

	f.bus = models.Bus{
		ID:         uuid.New(),
		OperatorID: f.operator.ID,
		Name:       "Night Rider",
		BusType:    "AC_SEATER",
	}
	layout := models.LayoutConfig{Rows: 3, Columns: []string{"A", "B", models.AisleMarker, "C"}}
	f.bus.Layout = &layout
	f.seats = GenerateSeats(f.bus.ID, f.bus.BusType, layout)
	require.NoError(t, f.store.AddBus(f.bus, f.seats))

	f.schedule = memstore.Schedule{
		ID:            uuid.New(),
		BusID:         f.bus.ID,
		DepartureTime: "22:00",
		BaseFare:      decimal.NewFromInt(200),
		IsActive:      true,
	}
	require.NoError(t, f.store.AddSchedule(f.schedule))

	driver := f.driverID
	f.trip = models.Trip{
		ID:           uuid.New(),
		ScheduleID:   f.schedule.ID,
		TravelDate:   time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC),
		Status:       models.TripStatusScheduled,
		DriverUserID: &driver,
	}
	require.NoError(t, f.store.AddTrip(f.trip))

	fare := DefaultFareEngine()
	f.reservations = NewReservationService(f.store, f.cfg, f.clock.Now, f.logger)
	f.inventory = NewSeatInventoryService(f.store, f.cfg, f.clock.Now, f.logger)
	f.orchestrator = NewBookingOrchestratorService(f.store, f.gateway, fare, f.cfg, f.clock.Now, f.logger)
	f.cancellation = NewCancellationService(f.store, fare, f.cfg, f.clock.Now, f.logger)
	f.trips = NewActiveTripService(f.store, f.clock.Now, f.logger)
	f.layouts = NewBusSeatLayoutService(f.store, f.logger)
	f.generator = NewTripGeneratorService(f.store, f.cfg, f.clock.Now, f.logger)
	return f
}

// newPassenger registers a user with an empty wallet
func (f *fixture) newPassenger() uuid.UUID {
	id := uuid.New()
	f.store.AddUser(id, decimal.Zero)
	return id
}

func (f *fixture) seatIDs(labels ...string) []uuid.UUID {
	byNumber := make(map[string]uuid.UUID, len(f.seats))
	for _, s := range f.seats {
		byNumber[s.SeatNumber] = s.ID
	}
	ids := make([]uuid.UUID, len(labels))
	for i, l := range labels {
		ids[i] = byNumber[l]
	}
	return ids
}

func (f *fixture) lock(userID uuid.UUID, seatIDs ...uuid.UUID) (*models.LockResult, error) {
	return f.reservations.Lock(f.ctx, userID, &models.SeatSelectionRequest{TripID: f.trip.ID, SeatIDs: seatIDs})
}

func initiateRequest(tripID uuid.UUID, seatIDs []uuid.UUID) *models.InitiatePaymentRequest {
	req := &models.InitiatePaymentRequest{
		TripID:  tripID,
		SeatIDs: seatIDs,
		Method:  models.PaymentMethodUPI,
	}
	for i, id := range seatIDs {
		req.Passengers = append(req.Passengers, models.PassengerInput{
			Name:   "Passenger " + string(rune('A'+i)),
			Age:    30 + i,
			Gender: "F",
			SeatID: id,
		})
	}
	return req
}

func (f *fixture) initiate(userID uuid.UUID, seatIDs ...uuid.UUID) (*models.InitiatePaymentResponse, error) {
	return f.orchestrator.Initiate(f.ctx, userID, initiateRequest(f.trip.ID, seatIDs), nil)
}

func (f *fixture) confirm(userID uuid.UUID, init *models.InitiatePaymentResponse) (*models.ConfirmPaymentResponse, error) {
	return f.orchestrator.Confirm(f.ctx, userID, &models.ConfirmPaymentRequest{
		BookingID: init.BookingID,
		PaymentID: init.PaymentID,
	})
}

// book runs lock, initiate and confirm and fails the test on any error
func (f *fixture) book(t *testing.T, userID uuid.UUID, seatIDs ...uuid.UUID) *models.InitiatePaymentResponse {
	t.Helper()
	_, err := f.lock(userID, seatIDs...)
	require.NoError(t, err)
	init, err := f.initiate(userID, seatIDs...)
	require.NoError(t, err)
	_, err = f.confirm(userID, init)
	require.NoError(t, err)
	return init
}

func (f *fixture) booking(t *testing.T, bookingID uuid.UUID) *models.Booking {
	t.Helper()
	var booking *models.Booking
	require.NoError(t, f.store.InTx(f.ctx, func(tx database.Tx) error {
		var err error
		booking, err = tx.GetBooking(f.ctx, bookingID)
		if err != nil || booking == nil {
			return err
		}
		booking.Payment, err = tx.GetPaymentByBooking(f.ctx, bookingID)
		return err
	}))
	require.NotNil(t, booking)
	return booking
}

func (f *fixture) occupied(t *testing.T) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	require.NoError(t, f.store.InTx(f.ctx, func(tx database.Tx) error {
		var err error
		ids, err = tx.ListOccupiedSeatIDs(f.ctx, f.trip.ID)
		return err
	}))
	return ids
}

// requireKind asserts err is a BookingError of the given kind and code
func requireKind(t *testing.T, err error, kind ErrorKind, code string) *BookingError {
	t.Helper()
	require.Error(t, err)
	be, ok := err.(*BookingError)
	require.Truef(t, ok, "expected *BookingError, got %T: %v", err, err)
	require.Equal(t, kind, be.Kind, be.Error())
	require.Equal(t, code, be.Code, be.Error())
	return be
}
