package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/models"
)

// Store runs units of work against the shared persistent store. Every
// mutation of seat locks, bookings, payments and earnings goes through InTx
// so that mutual exclusion lives in the database, not in process memory.
type Store interface {
	// InTx runs fn in one transaction. fn's error aborts and rolls back; a nil
	// return commits. fn may be re-run when the store reports a retryable
	// serialization failure, so it must not have side effects outside tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of queries available inside a transaction
type Tx interface {
	TripQueries
	SeatLockQueries
	BookingQueries
	PaymentQueries
	EarningQueries
	RefundQueries
	WalletQueries
}

// TripQueries reads trips, schedules, buses and seats
type TripQueries interface {
	GetTripDetails(ctx context.Context, tripID uuid.UUID) (*models.TripDetails, error)
	GetOrCreateTrip(ctx context.Context, scheduleID uuid.UUID, travelDate time.Time) (*models.Trip, error)
	CreateTrips(ctx context.Context, scheduleID uuid.UUID, travelDates []time.Time) (int64, error)
	GetScheduleOwner(ctx context.Context, scheduleID uuid.UUID) (*uuid.UUID, error)
	ListActiveScheduleIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateTripStatus(ctx context.Context, tripID uuid.UUID, from, to models.TripStatus, at time.Time) (bool, error)
	UpdateTripLocation(ctx context.Context, tripID uuid.UUID, lat, lng float64, at time.Time) error
	GetBus(ctx context.Context, busID uuid.UUID) (*models.Bus, error)
	ListActiveSeats(ctx context.Context, busID uuid.UUID) ([]models.Seat, error)
	ReplaceBusSeats(ctx context.Context, busID uuid.UUID, layout models.LayoutConfig, seats []models.Seat) error
}

// SeatLockQueries manages ephemeral seat holds
type SeatLockQueries interface {
	DeleteExpiredLocks(ctx context.Context, tripID uuid.UUID, now time.Time) (int64, error)
	ListActiveLocks(ctx context.Context, tripID uuid.UUID, now time.Time) ([]models.SeatLock, error)
	// AcquireLocks upserts a lock per seat and returns the seats actually
	// granted. A seat whose unexpired lock belongs to someone else is skipped.
	AcquireLocks(ctx context.Context, tripID, userID uuid.UUID, seatIDs []uuid.UUID, expiresAt, now time.Time) ([]uuid.UUID, error)
	// ReleaseLocks deletes the user's locks on seatIDs, or all of the user's
	// locks on the trip when seatIDs is empty
	ReleaseLocks(ctx context.Context, tripID, userID uuid.UUID, seatIDs []uuid.UUID) (int64, error)
}

// BookingQueries manages bookings and their seat claims
type BookingQueries interface {
	ListOccupiedSeatIDs(ctx context.Context, tripID uuid.UUID) ([]uuid.UUID, error)
	ListPendingClaims(ctx context.Context, tripID uuid.UUID, since time.Time) ([]models.SeatClaim, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	GetBookingByPNR(ctx context.Context, tripID uuid.UUID, pnr string) (*models.Booking, error)
	ListTripBookings(ctx context.Context, tripID uuid.UUID, status models.BookingStatus) ([]models.Booking, error)
	TransitionBooking(ctx context.Context, bookingID uuid.UUID, from, to models.BookingStatus, at time.Time) (bool, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, to models.BookingStatus, reason string, at time.Time) (bool, error)
	// SetSeatsOccupied returns ErrSeatTaken if any seat is occupied by another booking
	SetSeatsOccupied(ctx context.Context, bookingID uuid.UUID, occupied bool) error
	ExpireUserPendingBookings(ctx context.Context, tripID, userID uuid.UUID, at time.Time) (int64, error)
	ExpireStalePendingBookings(ctx context.Context, createdBefore, at time.Time) (int64, error)
	CompleteTripBookings(ctx context.Context, tripID uuid.UUID, at time.Time) (int64, error)
}

// PaymentQueries tracks gateway payments
type PaymentQueries interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status models.PaymentStatus, gatewayTxnID, failureReason *string, at time.Time) error
}

// EarningQueries records operator commission snapshots
type EarningQueries interface {
	// CreateOperatorEarning returns ErrDuplicate if the booking already has an entry of that type
	CreateOperatorEarning(ctx context.Context, earning *models.OperatorEarning) error
	GetOperatorEarning(ctx context.Context, bookingID uuid.UUID, entryType models.EarningEntryType) (*models.OperatorEarning, error)
}

// RefundQueries manages refund requests
type RefundQueries interface {
	CreateRefund(ctx context.Context, refund *models.Refund) error
	GetRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
	// ReviewRefund moves a REQUESTED refund to a final status; false if it was not REQUESTED
	ReviewRefund(ctx context.Context, refundID uuid.UUID, to models.RefundStatus, reviewer uuid.UUID, txnID, rejectionReason *string, at time.Time) (bool, error)
}

// WalletQueries manages passenger wallet balances
type WalletQueries interface {
	// CreditWallet applies txn and returns the new balance
	CreditWallet(ctx context.Context, txn *models.WalletTransaction) (decimal.Decimal, error)
	GetWallet(ctx context.Context, userID uuid.UUID, limit int) (*models.Wallet, error)
}

// ============================================================================
// POSTGRES STORE
// ============================================================================

const defaultTxAttempts = 3

// Queries binds every repository to one sqlx handle (a pool or a transaction)
type Queries struct {
	*TripRepository
	*SeatLockRepository
	*BookingRepository
	*PaymentRepository
	*EarningRepository
	*RefundRepository
	*WalletRepository
}

var _ Tx = (*Queries)(nil)

// NewQueries creates the repository set over db
func NewQueries(db sqlx.ExtContext) *Queries {
	return &Queries{
		TripRepository:     NewTripRepository(db),
		SeatLockRepository: NewSeatLockRepository(db),
		BookingRepository:  NewBookingRepository(db),
		PaymentRepository:  NewPaymentRepository(db),
		EarningRepository:  NewEarningRepository(db),
		RefundRepository:   NewRefundRepository(db),
		WalletRepository:   NewWalletRepository(db),
	}
}

// PostgresStore implements Store on a sqlx pool
type PostgresStore struct {
	db          *sqlx.DB
	maxAttempts int
	logger      *logrus.Logger
}

// NewPostgresStore wraps an open pool
func NewPostgresStore(db *sqlx.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, maxAttempts: defaultTxAttempts, logger: logger}
}

// InTx runs fn at READ COMMITTED, retrying on serialization failures and deadlocks
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Retrying transaction after serialization failure")
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(NewQueries(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
