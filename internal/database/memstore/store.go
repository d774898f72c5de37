// Package memstore is an in-memory implementation of database.Store. Each
// InTx call runs against a private copy of the data under a store-wide mutex
// and publishes it only when fn returns nil, so transactions are atomic and
// serializable. It backs DATABASE_DRIVER=memory and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/models"
)

// Operator is the seed record for an operator account
type Operator struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	CommissionRate     decimal.Decimal
	CancellationPolicy models.CancellationPolicy
}

// Schedule is the seed record for a recurring departure
type Schedule struct {
	ID            uuid.UUID
	BusID         uuid.UUID
	DepartureTime string
	BaseFare      decimal.Decimal
	IsActive      bool
}

type lockKey struct {
	tripID uuid.UUID
	seatID uuid.UUID
}

type tripKey struct {
	scheduleID uuid.UUID
	date       string
}

type state struct {
	wallets    map[uuid.UUID]decimal.Decimal
	operators  map[uuid.UUID]Operator
	buses      map[uuid.UUID]models.Bus
	seats      map[uuid.UUID]models.Seat
	schedules  map[uuid.UUID]Schedule
	trips      map[uuid.UUID]models.Trip
	tripIndex  map[tripKey]uuid.UUID
	locks      map[lockKey]models.SeatLock
	bookings   map[uuid.UUID]models.Booking
	payments   map[uuid.UUID]models.Payment
	earnings   []models.OperatorEarning
	refunds    map[uuid.UUID]models.Refund
	walletTxns []models.WalletTransaction
}

func newState() *state {
	return &state{
		wallets:   make(map[uuid.UUID]decimal.Decimal),
		operators: make(map[uuid.UUID]Operator),
		buses:     make(map[uuid.UUID]models.Bus),
		seats:     make(map[uuid.UUID]models.Seat),
		schedules: make(map[uuid.UUID]Schedule),
		trips:     make(map[uuid.UUID]models.Trip),
		tripIndex: make(map[tripKey]uuid.UUID),
		locks:     make(map[lockKey]models.SeatLock),
		bookings:  make(map[uuid.UUID]models.Booking),
		payments:  make(map[uuid.UUID]models.Payment),
		refunds:   make(map[uuid.UUID]models.Refund),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.operators {
		c.operators[k] = v
	}
	for k, v := range s.buses {
		if v.Layout != nil {
			layout := cloneLayout(*v.Layout)
			v.Layout = &layout
		}
		c.buses[k] = v
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.tripIndex {
		c.tripIndex[k] = v
	}
	for k, v := range s.locks {
		c.locks[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = cloneBooking(v)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.earnings = append([]models.OperatorEarning(nil), s.earnings...)
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	c.walletTxns = append([]models.WalletTransaction(nil), s.walletTxns...)
	return c
}

func cloneLayout(l models.LayoutConfig) models.LayoutConfig {
	l.Columns = append([]string(nil), l.Columns...)
	l.Decks = append([]string(nil), l.Decks...)
	return l
}

func cloneBooking(b models.Booking) models.Booking {
	b.Passengers = append([]models.Passenger(nil), b.Passengers...)
	b.Seats = append([]models.BookingSeat(nil), b.Seats...)
	if b.DeviceInfo != nil {
		info := make(models.DeviceInfo, len(b.DeviceInfo))
		for k, v := range b.DeviceInfo {
			info[k] = v
		}
		b.DeviceInfo = info
	}
	return b
}

// Store is the in-memory database.Store
type Store struct {
	mu     sync.Mutex
	data   *state
	faults map[string][]error
}

var _ database.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{data: newState(), faults: make(map[string][]error)}
}

// InTx runs fn against a copy of the data and keeps the copy only if fn succeeds
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&memTx{st: work, store: s}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// FailOn makes the next call to the named Tx method (e.g. "CreateOperatorEarning")
// return err. Calls queue, so FailOn twice fails the next two calls.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = append(s.faults[method], err)
}

// fault pops a queued failure; callers already hold s.mu through InTx
func (s *Store) fault(method string) error {
	queued := s.faults[method]
	if len(queued) == 0 {
		return nil
	}
	s.faults[method] = queued[1:]
	return queued[0]
}

// ============================================================================
// SEEDING
// ============================================================================

// AddUser creates a wallet for a user with an opening balance
func (s *Store) AddUser(userID uuid.UUID, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.wallets[userID] = balance
}

// AddOperator registers an operator
func (s *Store) AddOperator(op Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.CancellationPolicy == "" {
		op.CancellationPolicy = models.PolicyModerate
	}
	s.data.operators[op.ID] = op
	if _, ok := s.data.wallets[op.UserID]; !ok {
		s.data.wallets[op.UserID] = decimal.Zero
	}
}

// AddBus registers a bus and its seats. Seats without a BusID are attached to the bus.
func (s *Store) AddBus(bus models.Bus, seats []models.Seat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.operators[bus.OperatorID]; !ok {
		return fmt.Errorf("operator %s not found", bus.OperatorID)
	}
	for _, seat := range seats {
		if seat.BusID == uuid.Nil {
			seat.BusID = bus.ID
		}
		s.data.seats[seat.ID] = seat
	}
	bus.TotalSeats = len(seats)
	s.data.buses[bus.ID] = bus
	return nil
}

// AddSchedule registers a schedule on an existing bus
func (s *Store) AddSchedule(schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.buses[schedule.BusID]; !ok {
		return fmt.Errorf("bus %s not found", schedule.BusID)
	}
	s.data.schedules[schedule.ID] = schedule
	return nil
}

// AddTrip registers a trip directly, bypassing trip generation
func (s *Store) AddTrip(trip models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.schedules[trip.ScheduleID]; !ok {
		return fmt.Errorf("schedule %s not found", trip.ScheduleID)
	}
	if trip.Status == "" {
		trip.Status = models.TripStatusScheduled
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now()
		trip.UpdatedAt = trip.CreatedAt
	}
	key := tripKey{scheduleID: trip.ScheduleID, date: trip.TravelDate.Format(dateLayout)}
	s.data.trips[trip.ID] = trip
	s.data.tripIndex[key] = trip.ID
	return nil
}

// ============================================================================
// INSPECTION
// ============================================================================

// Earnings returns every earning entry recorded for a booking
func (s *Store) Earnings(bookingID uuid.UUID) []models.OperatorEarning {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OperatorEarning
	for _, e := range s.data.earnings {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out
}

// RefundForBooking returns the refund created for a booking, or nil
func (s *Store) RefundForBooking(bookingID uuid.UUID) *models.Refund {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.data.refunds {
		if r.BookingID == bookingID {
			refund := r
			return &refund
		}
	}
	return nil
}

// LockCount returns the number of lock rows on a trip, expired or not
func (s *Store) LockCount(tripID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.data.locks {
		if key.tripID == tripID {
			n++
		}
	}
	return n
}
