package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/models"
)

const dateLayout = "2006-01-02"

// memTx applies queries to one transaction's working copy
type memTx struct {
	st    *state
	store *Store
}

var _ database.Tx = (*memTx)(nil)

func (t *memTx) fail(method string) error {
	return t.store.fault(method)
}

func uuidLess(a, b uuid.UUID) bool {
	return strings.Compare(a.String(), b.String()) < 0
}

// ============================================================================
// TRIPS
// ============================================================================

func (t *memTx) GetTripDetails(ctx context.Context, tripID uuid.UUID) (*models.TripDetails, error) {
	if err := t.fail("GetTripDetails"); err != nil {
		return nil, err
	}
	trip, ok := t.st.trips[tripID]
	if !ok {
		return nil, nil
	}
	schedule := t.st.schedules[trip.ScheduleID]
	bus := t.st.buses[schedule.BusID]
	op := t.st.operators[bus.OperatorID]
	return &models.TripDetails{
		Trip:               trip,
		BusID:              schedule.BusID,
		DepartureTime:      schedule.DepartureTime,
		BaseFare:           schedule.BaseFare,
		OperatorID:         op.ID,
		CommissionRate:     op.CommissionRate,
		CancellationPolicy: op.CancellationPolicy,
	}, nil
}

func (t *memTx) GetOrCreateTrip(ctx context.Context, scheduleID uuid.UUID, travelDate time.Time) (*models.Trip, error) {
	if err := t.fail("GetOrCreateTrip"); err != nil {
		return nil, err
	}
	key := tripKey{scheduleID: scheduleID, date: travelDate.Format(dateLayout)}
	if id, ok := t.st.tripIndex[key]; ok {
		trip := t.st.trips[id]
		return &trip, nil
	}
	trip, err := t.insertTrip(scheduleID, travelDate)
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (t *memTx) insertTrip(scheduleID uuid.UUID, travelDate time.Time) (models.Trip, error) {
	if _, ok := t.st.schedules[scheduleID]; !ok {
		return models.Trip{}, fmt.Errorf("failed to create trip: schedule %s not found", scheduleID)
	}
	y, m, d := travelDate.Date()
	now := time.Now()
	trip := models.Trip{
		ID:         uuid.New(),
		ScheduleID: scheduleID,
		TravelDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Status:     models.TripStatusScheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.st.trips[trip.ID] = trip
	t.st.tripIndex[tripKey{scheduleID: scheduleID, date: travelDate.Format(dateLayout)}] = trip.ID
	return trip, nil
}

func (t *memTx) CreateTrips(ctx context.Context, scheduleID uuid.UUID, travelDates []time.Time) (int64, error) {
	if err := t.fail("CreateTrips"); err != nil {
		return 0, err
	}
	var created int64
	for _, d := range travelDates {
		if _, ok := t.st.tripIndex[tripKey{scheduleID: scheduleID, date: d.Format(dateLayout)}]; ok {
			continue
		}
		if _, err := t.insertTrip(scheduleID, d); err != nil {
			return 0, err
		}
		created++
	}
	return created, nil
}

func (t *memTx) GetScheduleOwner(ctx context.Context, scheduleID uuid.UUID) (*uuid.UUID, error) {
	if err := t.fail("GetScheduleOwner"); err != nil {
		return nil, err
	}
	schedule, ok := t.st.schedules[scheduleID]
	if !ok || !schedule.IsActive {
		return nil, nil
	}
	owner := t.st.operators[t.st.buses[schedule.BusID].OperatorID].UserID
	return &owner, nil
}

func (t *memTx) ListActiveScheduleIDs(ctx context.Context) ([]uuid.UUID, error) {
	if err := t.fail("ListActiveScheduleIDs"); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, schedule := range t.st.schedules {
		if schedule.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return uuidLess(ids[i], ids[j]) })
	return ids, nil
}

func (t *memTx) UpdateTripStatus(ctx context.Context, tripID uuid.UUID, from, to models.TripStatus, at time.Time) (bool, error) {
	if err := t.fail("UpdateTripStatus"); err != nil {
		return false, err
	}
	trip, ok := t.st.trips[tripID]
	if !ok || trip.Status != from {
		return false, nil
	}
	trip.Status = to
	trip.UpdatedAt = at
	if to == models.TripStatusInProgress && trip.ActualDeparture == nil {
		departed := at
		trip.ActualDeparture = &departed
	}
	if to == models.TripStatusCompleted {
		arrived := at
		trip.ActualArrival = &arrived
	}
	t.st.trips[tripID] = trip
	return true, nil
}

func (t *memTx) UpdateTripLocation(ctx context.Context, tripID uuid.UUID, lat, lng float64, at time.Time) error {
	if err := t.fail("UpdateTripLocation"); err != nil {
		return err
	}
	trip, ok := t.st.trips[tripID]
	if !ok {
		return nil
	}
	trip.LastLat = &lat
	trip.LastLng = &lng
	trip.LastLocationAt = &at
	trip.UpdatedAt = at
	t.st.trips[tripID] = trip
	return nil
}

func (t *memTx) GetBus(ctx context.Context, busID uuid.UUID) (*models.Bus, error) {
	if err := t.fail("GetBus"); err != nil {
		return nil, err
	}
	bus, ok := t.st.buses[busID]
	if !ok {
		return nil, nil
	}
	bus.OperatorUserID = t.st.operators[bus.OperatorID].UserID
	if bus.Layout != nil {
		layout := cloneLayout(*bus.Layout)
		bus.Layout = &layout
	}
	return &bus, nil
}

func (t *memTx) ListActiveSeats(ctx context.Context, busID uuid.UUID) ([]models.Seat, error) {
	if err := t.fail("ListActiveSeats"); err != nil {
		return nil, err
	}
	var seats []models.Seat
	for _, seat := range t.st.seats {
		if seat.BusID == busID && seat.IsActive {
			seats = append(seats, seat)
		}
	}
	sort.Slice(seats, func(i, j int) bool {
		a, b := seats[i], seats[j]
		if a.Deck != b.Deck {
			return a.Deck < b.Deck
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.SeatNumber < b.SeatNumber
	})
	return seats, nil
}

func (t *memTx) ReplaceBusSeats(ctx context.Context, busID uuid.UUID, layout models.LayoutConfig, seats []models.Seat) error {
	if err := t.fail("ReplaceBusSeats"); err != nil {
		return err
	}
	bus, ok := t.st.buses[busID]
	if !ok {
		return fmt.Errorf("bus %s not found", busID)
	}
	for _, booking := range t.st.bookings {
		for _, bs := range booking.Seats {
			if seat, ok := t.st.seats[bs.SeatID]; ok && seat.BusID == busID {
				return database.ErrReferenced
			}
		}
	}
	for id, seat := range t.st.seats {
		if seat.BusID == busID {
			delete(t.st.seats, id)
		}
	}
	for _, seat := range seats {
		t.st.seats[seat.ID] = seat
	}
	stored := cloneLayout(layout)
	bus.Layout = &stored
	bus.TotalSeats = len(seats)
	t.st.buses[busID] = bus
	return nil
}

// ============================================================================
// SEAT LOCKS
// ============================================================================

func (t *memTx) DeleteExpiredLocks(ctx context.Context, tripID uuid.UUID, now time.Time) (int64, error) {
	if err := t.fail("DeleteExpiredLocks"); err != nil {
		return 0, err
	}
	var purged int64
	for key, lock := range t.st.locks {
		if key.tripID == tripID && !lock.IsActive(now) {
			delete(t.st.locks, key)
			purged++
		}
	}
	return purged, nil
}

func (t *memTx) ListActiveLocks(ctx context.Context, tripID uuid.UUID, now time.Time) ([]models.SeatLock, error) {
	if err := t.fail("ListActiveLocks"); err != nil {
		return nil, err
	}
	var locks []models.SeatLock
	for key, lock := range t.st.locks {
		if key.tripID == tripID && lock.IsActive(now) {
			locks = append(locks, lock)
		}
	}
	sort.Slice(locks, func(i, j int) bool { return uuidLess(locks[i].SeatID, locks[j].SeatID) })
	return locks, nil
}

func (t *memTx) AcquireLocks(ctx context.Context, tripID, userID uuid.UUID, seatIDs []uuid.UUID, expiresAt, now time.Time) ([]uuid.UUID, error) {
	if err := t.fail("AcquireLocks"); err != nil {
		return nil, err
	}
	sorted := append([]uuid.UUID(nil), seatIDs...)
	sort.Slice(sorted, func(i, j int) bool { return uuidLess(sorted[i], sorted[j]) })

	var granted []uuid.UUID
	for _, seatID := range sorted {
		key := lockKey{tripID: tripID, seatID: seatID}
		existing, held := t.st.locks[key]
		switch {
		case !held:
			t.st.locks[key] = models.SeatLock{TripID: tripID, SeatID: seatID, UserID: userID, ExpiresAt: expiresAt, CreatedAt: now}
		case existing.UserID == userID || !existing.IsActive(now):
			existing.UserID = userID
			existing.ExpiresAt = expiresAt
			t.st.locks[key] = existing
		default:
			continue
		}
		granted = append(granted, seatID)
	}
	return granted, nil
}

func (t *memTx) ReleaseLocks(ctx context.Context, tripID, userID uuid.UUID, seatIDs []uuid.UUID) (int64, error) {
	if err := t.fail("ReleaseLocks"); err != nil {
		return 0, err
	}
	wanted := make(map[uuid.UUID]bool, len(seatIDs))
	for _, id := range seatIDs {
		wanted[id] = true
	}
	var released int64
	for key, lock := range t.st.locks {
		if key.tripID != tripID || lock.UserID != userID {
			continue
		}
		if len(seatIDs) > 0 && !wanted[key.seatID] {
			continue
		}
		delete(t.st.locks, key)
		released++
	}
	return released, nil
}

// ============================================================================
// BOOKINGS
// ============================================================================

func (t *memTx) ListOccupiedSeatIDs(ctx context.Context, tripID uuid.UUID) ([]uuid.UUID, error) {
	if err := t.fail("ListOccupiedSeatIDs"); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, booking := range t.st.bookings {
		for _, bs := range booking.Seats {
			if bs.TripID == tripID && bs.Occupied {
				ids = append(ids, bs.SeatID)
			}
		}
	}
	return ids, nil
}

func (t *memTx) ListPendingClaims(ctx context.Context, tripID uuid.UUID, since time.Time) ([]models.SeatClaim, error) {
	if err := t.fail("ListPendingClaims"); err != nil {
		return nil, err
	}
	var claims []models.SeatClaim
	for _, booking := range t.st.bookings {
		if booking.TripID != tripID || booking.Status != models.BookingStatusPending || !booking.CreatedAt.After(since) {
			continue
		}
		if payment := t.paymentFor(booking.ID); payment != nil && payment.Status == models.PaymentStatusFailed {
			continue
		}
		for _, bs := range booking.Seats {
			claims = append(claims, models.SeatClaim{
				SeatID:    bs.SeatID,
				BookingID: booking.ID,
				UserID:    booking.UserID,
				CreatedAt: booking.CreatedAt,
			})
		}
	}
	return claims, nil
}

func (t *memTx) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if err := t.fail("CreateBooking"); err != nil {
		return err
	}
	if _, ok := t.st.bookings[booking.ID]; ok {
		return database.ErrDuplicate
	}
	for _, existing := range t.st.bookings {
		if existing.PNR == booking.PNR {
			return database.ErrDuplicate
		}
	}
	for _, bs := range booking.Seats {
		if bs.Occupied && t.seatOccupied(bs.TripID, bs.SeatID, booking.ID) {
			return database.ErrSeatTaken
		}
	}
	t.st.bookings[booking.ID] = cloneBooking(*booking)
	return nil
}

func (t *memTx) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if err := t.fail("GetBooking"); err != nil {
		return nil, err
	}
	booking, ok := t.st.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	return t.withChildren(booking), nil
}

func (t *memTx) GetBookingByPNR(ctx context.Context, tripID uuid.UUID, pnr string) (*models.Booking, error) {
	if err := t.fail("GetBookingByPNR"); err != nil {
		return nil, err
	}
	for _, booking := range t.st.bookings {
		if booking.TripID == tripID && booking.PNR == pnr {
			return t.withChildren(booking), nil
		}
	}
	return nil, nil
}

// withChildren mirrors the SQL read: seat numbers are joined in, children are sorted
func (t *memTx) withChildren(booking models.Booking) *models.Booking {
	b := cloneBooking(booking)
	for i := range b.Seats {
		b.Seats[i].SeatNumber = t.st.seats[b.Seats[i].SeatID].SeatNumber
	}
	sort.Slice(b.Seats, func(i, j int) bool { return b.Seats[i].SeatNumber < b.Seats[j].SeatNumber })
	sort.Slice(b.Passengers, func(i, j int) bool { return b.Passengers[i].Name < b.Passengers[j].Name })
	return &b
}

func (t *memTx) ListTripBookings(ctx context.Context, tripID uuid.UUID, status models.BookingStatus) ([]models.Booking, error) {
	if err := t.fail("ListTripBookings"); err != nil {
		return nil, err
	}
	var bookings []models.Booking
	for _, booking := range t.st.bookings {
		if booking.TripID == tripID && booking.Status == status {
			b := booking
			b.Passengers = nil
			b.Seats = nil
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.Before(bookings[j].CreatedAt) })
	return bookings, nil
}

func (t *memTx) TransitionBooking(ctx context.Context, bookingID uuid.UUID, from, to models.BookingStatus, at time.Time) (bool, error) {
	if err := t.fail("TransitionBooking"); err != nil {
		return false, err
	}
	booking, ok := t.st.bookings[bookingID]
	if !ok || booking.Status != from {
		return false, nil
	}
	booking.Status = to
	booking.UpdatedAt = at
	switch to {
	case models.BookingStatusConfirmed:
		booking.ConfirmedAt = &at
	case models.BookingStatusCompleted:
		booking.CompletedAt = &at
	}
	t.st.bookings[bookingID] = booking
	return true, nil
}

func (t *memTx) CancelBooking(ctx context.Context, bookingID uuid.UUID, to models.BookingStatus, reason string, at time.Time) (bool, error) {
	if err := t.fail("CancelBooking"); err != nil {
		return false, err
	}
	booking, ok := t.st.bookings[bookingID]
	if !ok || booking.Status != models.BookingStatusConfirmed {
		return false, nil
	}
	booking.Status = to
	booking.CancellationReason = &reason
	booking.CancelledAt = &at
	booking.UpdatedAt = at
	t.st.bookings[bookingID] = booking
	return true, nil
}

func (t *memTx) SetSeatsOccupied(ctx context.Context, bookingID uuid.UUID, occupied bool) error {
	if err := t.fail("SetSeatsOccupied"); err != nil {
		return err
	}
	booking, ok := t.st.bookings[bookingID]
	if !ok {
		return nil
	}
	if occupied {
		for _, bs := range booking.Seats {
			if t.seatOccupied(bs.TripID, bs.SeatID, bookingID) {
				return database.ErrSeatTaken
			}
		}
	}
	for i := range booking.Seats {
		booking.Seats[i].Occupied = occupied
	}
	t.st.bookings[bookingID] = booking
	return nil
}

// seatOccupied reports whether a booking other than exclude occupies the seat
func (t *memTx) seatOccupied(tripID, seatID, exclude uuid.UUID) bool {
	for id, booking := range t.st.bookings {
		if id == exclude {
			continue
		}
		for _, bs := range booking.Seats {
			if bs.TripID == tripID && bs.SeatID == seatID && bs.Occupied {
				return true
			}
		}
	}
	return false
}

func (t *memTx) ExpireUserPendingBookings(ctx context.Context, tripID, userID uuid.UUID, at time.Time) (int64, error) {
	if err := t.fail("ExpireUserPendingBookings"); err != nil {
		return 0, err
	}
	return t.updateBookings(func(b models.Booking) bool {
		return b.TripID == tripID && b.UserID == userID && b.Status == models.BookingStatusPending
	}, models.BookingStatusExpired, at), nil
}

func (t *memTx) ExpireStalePendingBookings(ctx context.Context, createdBefore, at time.Time) (int64, error) {
	if err := t.fail("ExpireStalePendingBookings"); err != nil {
		return 0, err
	}
	return t.updateBookings(func(b models.Booking) bool {
		return b.Status == models.BookingStatusPending && b.CreatedAt.Before(createdBefore)
	}, models.BookingStatusExpired, at), nil
}

func (t *memTx) CompleteTripBookings(ctx context.Context, tripID uuid.UUID, at time.Time) (int64, error) {
	if err := t.fail("CompleteTripBookings"); err != nil {
		return 0, err
	}
	return t.updateBookings(func(b models.Booking) bool {
		return b.TripID == tripID && b.Status == models.BookingStatusConfirmed
	}, models.BookingStatusCompleted, at), nil
}

func (t *memTx) updateBookings(match func(models.Booking) bool, to models.BookingStatus, at time.Time) int64 {
	var n int64
	for id, booking := range t.st.bookings {
		if !match(booking) {
			continue
		}
		booking.Status = to
		booking.UpdatedAt = at
		if to == models.BookingStatusCompleted {
			completed := at
			booking.CompletedAt = &completed
		}
		t.st.bookings[id] = booking
		n++
	}
	return n
}

// ============================================================================
// PAYMENTS
// ============================================================================

func (t *memTx) paymentFor(bookingID uuid.UUID) *models.Payment {
	for _, p := range t.st.payments {
		if p.BookingID == bookingID {
			payment := p
			return &payment
		}
	}
	return nil
}

func (t *memTx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if err := t.fail("CreatePayment"); err != nil {
		return err
	}
	if t.paymentFor(payment.BookingID) != nil {
		return database.ErrDuplicate
	}
	t.st.payments[payment.ID] = *payment
	return nil
}

func (t *memTx) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	if err := t.fail("GetPaymentByBooking"); err != nil {
		return nil, err
	}
	return t.paymentFor(bookingID), nil
}

func (t *memTx) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status models.PaymentStatus, gatewayTxnID, failureReason *string, at time.Time) error {
	if err := t.fail("UpdatePaymentStatus"); err != nil {
		return err
	}
	payment, ok := t.st.payments[paymentID]
	if !ok {
		return fmt.Errorf("payment %s not found", paymentID)
	}
	payment.Status = status
	if gatewayTxnID != nil {
		txn := *gatewayTxnID
		payment.GatewayTxnID = &txn
	}
	payment.FailureReason = failureReason
	payment.UpdatedAt = at
	t.st.payments[paymentID] = payment
	return nil
}

// ============================================================================
// EARNINGS, REFUNDS, WALLETS
// ============================================================================

func (t *memTx) CreateOperatorEarning(ctx context.Context, earning *models.OperatorEarning) error {
	if err := t.fail("CreateOperatorEarning"); err != nil {
		return err
	}
	for _, e := range t.st.earnings {
		if e.BookingID == earning.BookingID && e.EntryType == earning.EntryType {
			return database.ErrDuplicate
		}
	}
	t.st.earnings = append(t.st.earnings, *earning)
	return nil
}

func (t *memTx) GetOperatorEarning(ctx context.Context, bookingID uuid.UUID, entryType models.EarningEntryType) (*models.OperatorEarning, error) {
	if err := t.fail("GetOperatorEarning"); err != nil {
		return nil, err
	}
	for _, e := range t.st.earnings {
		if e.BookingID == bookingID && e.EntryType == entryType {
			earning := e
			return &earning, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateRefund(ctx context.Context, refund *models.Refund) error {
	if err := t.fail("CreateRefund"); err != nil {
		return err
	}
	for _, r := range t.st.refunds {
		if r.BookingID == refund.BookingID {
			return database.ErrDuplicate
		}
	}
	t.st.refunds[refund.ID] = *refund
	return nil
}

func (t *memTx) GetRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	if err := t.fail("GetRefund"); err != nil {
		return nil, err
	}
	refund, ok := t.st.refunds[refundID]
	if !ok {
		return nil, nil
	}
	return &refund, nil
}

func (t *memTx) ReviewRefund(ctx context.Context, refundID uuid.UUID, to models.RefundStatus, reviewer uuid.UUID, txnID, rejectionReason *string, at time.Time) (bool, error) {
	if err := t.fail("ReviewRefund"); err != nil {
		return false, err
	}
	refund, ok := t.st.refunds[refundID]
	if !ok || refund.Status != models.RefundStatusRequested {
		return false, nil
	}
	refund.Status = to
	refund.ReviewedBy = &reviewer
	refund.RefundTxnID = txnID
	refund.RejectionReason = rejectionReason
	refund.ReviewedAt = &at
	t.st.refunds[refundID] = refund
	return true, nil
}

func (t *memTx) CreditWallet(ctx context.Context, txn *models.WalletTransaction) (decimal.Decimal, error) {
	if err := t.fail("CreditWallet"); err != nil {
		return decimal.Zero, err
	}
	balance, ok := t.st.wallets[txn.UserID]
	if !ok {
		return decimal.Zero, fmt.Errorf("user %s not found", txn.UserID)
	}
	balance = balance.Add(txn.Amount)
	t.st.wallets[txn.UserID] = balance
	t.st.walletTxns = append(t.st.walletTxns, *txn)
	return balance, nil
}

func (t *memTx) GetWallet(ctx context.Context, userID uuid.UUID, limit int) (*models.Wallet, error) {
	if err := t.fail("GetWallet"); err != nil {
		return nil, err
	}
	balance, ok := t.st.wallets[userID]
	if !ok {
		return nil, nil
	}
	wallet := &models.Wallet{UserID: userID, Balance: balance, Transactions: []models.WalletTransaction{}}
	for i := len(t.st.walletTxns) - 1; i >= 0 && len(wallet.Transactions) < limit; i-- {
		if t.st.walletTxns[i].UserID == userID {
			wallet.Transactions = append(wallet.Transactions, t.st.walletTxns[i])
		}
	}
	return wallet, nil
}
