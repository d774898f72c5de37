package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/pkg/payment"
)

// BookingOrchestratorService drives the Initiate → gateway → Confirm flow.
// Gateway calls never run inside a store transaction: the store may re-run a
// transaction closure, and a payment must not be captured twice.
type BookingOrchestratorService struct {
	store   database.Store
	gateway payment.Gateway
	fare    *FareEngine
	cfg     config.BookingConfig
	now     Clock
	newPNR  func() string
	logger  *logrus.Logger
}

// pnrAttempts bounds how often Initiate redraws a PNR that collided
const pnrAttempts = 3

// errCaptureOrphaned marks a captured payment whose booking can no longer be
// confirmed; the capture is refunded
var errCaptureOrphaned = errors.New("captured payment has no bookable booking")

// NewBookingOrchestratorService creates a new orchestrator service
func NewBookingOrchestratorService(
	store database.Store,
	gateway payment.Gateway,
	fare *FareEngine,
	cfg config.BookingConfig,
	clock Clock,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	return &BookingOrchestratorService{
		store:   store,
		gateway: gateway,
		fare:    fare,
		cfg:     cfg,
		now:     clockOrNow(clock),
		newPNR:  models.GeneratePNR,
		logger:  logger,
	}
}

// ============================================================================
// INITIATE
// ============================================================================

// Initiate turns the caller's seat locks into a PENDING booking and opens a
// payment intent for it
func (s *BookingOrchestratorService) Initiate(
	ctx context.Context,
	userID uuid.UUID,
	req *models.InitiatePaymentRequest,
	device models.DeviceInfo,
) (*models.InitiatePaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(CodeInvalidRequest, err.Error())
	}
	if len(req.SeatIDs) > s.cfg.MaxSeatsPerBooking {
		return nil, validationError(CodeInvalidSeatCount, "Too many seats selected")
	}

	now := s.now()
	bookingID := uuid.New()

	// 1. Re-validate the hold and create the PENDING booking. A PNR collision
	// rolls the transaction back and is retried with a fresh PNR.
	var (
		checkout *pendingCheckout
		err      error
	)
	for attempt := 1; attempt <= pnrAttempts; attempt++ {
		checkout, err = s.createPendingBooking(ctx, bookingID, userID, req, device, now)
		if !errors.Is(err, database.ErrDuplicate) {
			break
		}
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"attempt":    attempt,
		}).Warn("PNR collision, generating a new one")
	}
	if err != nil {
		return nil, asBookingError("failed to create booking", err)
	}
	booking, fare, holdUntil := checkout.booking, checkout.fare, checkout.holdUntil

	// 2. Open the payment intent
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	intent, err := s.gateway.CreateIntent(gctx, payment.IntentRequest{
		BookingID: bookingID,
		Amount:    fare.TotalAmount,
		Method:    string(req.Method),
	})
	cancel()
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to create payment intent")
		s.expireBooking(ctx, bookingID)
		return nil, paymentError("Could not start payment. Please try again", err)
	}

	// 3. Record the payment
	pay := &models.Payment{
		ID:        uuid.New(),
		BookingID: bookingID,
		IntentID:  intent.ID,
		Amount:    fare.TotalAmount,
		Method:    req.Method,
		Status:    models.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		return tx.CreatePayment(ctx, pay)
	})
	if err != nil {
		s.expireBooking(ctx, bookingID)
		return nil, asBookingError("failed to record payment", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"pnr":        booking.PNR,
		"trip_id":    req.TripID,
		"user_id":    userID,
		"amount":     fare.TotalAmount.StringFixed(2),
		"gateway":    s.gateway.Name(),
	}).Info("Booking initiated")

	return &models.InitiatePaymentResponse{
		BookingID:    bookingID,
		PaymentID:    intent.ID,
		PNR:          booking.PNR,
		Amount:       fare.TotalAmount.StringFixed(2),
		Fare:         fare.View(),
		ExpiresAt:    holdUntil,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// pendingCheckout is what Initiate needs from the booking transaction
type pendingCheckout struct {
	booking   *models.Booking
	fare      FareBreakdown
	holdUntil time.Time
}

// createPendingBooking re-checks the caller's locks and the seat state and
// inserts the PENDING booking in one transaction
func (s *BookingOrchestratorService) createPendingBooking(
	ctx context.Context,
	bookingID, userID uuid.UUID,
	req *models.InitiatePaymentRequest,
	device models.DeviceInfo,
	now time.Time,
) (*pendingCheckout, error) {
	var out pendingCheckout
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		details, err := tx.GetTripDetails(ctx, req.TripID)
		if err != nil {
			return err
		}
		if details == nil {
			return notFoundError(CodeTripNotFound, "Trip not found")
		}
		if !details.Status.IsBookable() {
			return conflictError(CodeTripNotBookable, "This trip is no longer open for booking")
		}

		locks, err := tx.ListActiveLocks(ctx, req.TripID, now)
		if err != nil {
			return err
		}
		mine := make(map[uuid.UUID]time.Time, len(locks))
		for _, lock := range locks {
			if lock.UserID == userID {
				mine[lock.SeatID] = lock.ExpiresAt
			}
		}
		var expired []uuid.UUID
		out.holdUntil = time.Time{}
		for _, id := range req.SeatIDs {
			expiresAt, ok := mine[id]
			if !ok {
				expired = append(expired, id)
				continue
			}
			if out.holdUntil.IsZero() || expiresAt.Before(out.holdUntil) {
				out.holdUntil = expiresAt
			}
		}
		if len(expired) > 0 {
			return conflictError(CodeReservationExpired,
				"Your seat reservation has expired. Please select your seats again", expired...)
		}

		occupied, err := tx.ListOccupiedSeatIDs(ctx, req.TripID)
		if err != nil {
			return err
		}
		if booked := intersect(req.SeatIDs, occupied); len(booked) > 0 {
			return conflictError(CodeSeatsAlreadyBooked, "One or more seats are already booked", booked...)
		}

		out.fare = s.fare.Price(details.BaseFare, len(req.SeatIDs), decimal.Zero)
		if !req.Amount.IsZero() && !req.Amount.Equal(out.fare.TotalAmount) {
			return conflictError(CodeFareChanged,
				fmt.Sprintf("The fare has changed. The new total is %s", out.fare.TotalAmount.StringFixed(2)))
		}

		// An earlier checkout by the same user on this trip is abandoned
		if _, err := tx.ExpireUserPendingBookings(ctx, req.TripID, userID, now); err != nil {
			return err
		}

		out.booking = newPendingBooking(bookingID, userID, req, out.fare, s.newPNR(), device, now)
		return tx.CreateBooking(ctx, out.booking)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func newPendingBooking(
	bookingID, userID uuid.UUID,
	req *models.InitiatePaymentRequest,
	fare FareBreakdown,
	pnr string,
	device models.DeviceInfo,
	now time.Time,
) *models.Booking {
	booking := &models.Booking{
		ID:             bookingID,
		PNR:            pnr,
		QRToken:        models.GenerateQRToken(),
		UserID:         userID,
		TripID:         req.TripID,
		Status:         models.BookingStatusPending,
		BaseFare:       fare.BaseFare,
		GSTAmount:      fare.GSTAmount,
		ConvenienceFee: fare.ConvenienceFee,
		Discount:       fare.Discount,
		TotalAmount:    fare.TotalAmount,
		DeviceInfo:     device,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, p := range req.Passengers {
		booking.Passengers = append(booking.Passengers, models.Passenger{
			ID:        uuid.New(),
			BookingID: bookingID,
			Name:      p.Name,
			Age:       p.Age,
			Gender:    p.Gender,
			SeatID:    p.SeatID,
		})
	}
	for _, seatID := range req.SeatIDs {
		booking.Seats = append(booking.Seats, models.BookingSeat{
			ID:        uuid.New(),
			BookingID: bookingID,
			TripID:    req.TripID,
			SeatID:    seatID,
		})
	}
	return booking
}

// ============================================================================
// CONFIRM
// ============================================================================

// Confirm verifies the payment with the gateway and, on success, commits the
// booking, its seats, the payment, the lock cleanup and the operator earning
// in one transaction.
//
// A booking that expired while its payment was still open (the sweeper, or a
// newer checkout by the same user) is still asked about at the gateway: a
// capture is either honoured by reviving the booking or refunded.
func (s *BookingOrchestratorService) Confirm(ctx context.Context, userID uuid.UUID, req *models.ConfirmPaymentRequest) (*models.ConfirmPaymentResponse, error) {
	if req.BookingID == uuid.Nil || req.PaymentID == "" {
		return nil, validationError(CodeInvalidRequest, "booking_id and payment_id are required")
	}

	var (
		booking *models.Booking
		pay     *models.Payment
		details *models.TripDetails
	)

	// 1. Load and check ownership and state
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		booking, err = tx.GetBooking(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if booking == nil || booking.UserID != userID {
			return notFoundError(CodeBookingNotFound, "Booking not found")
		}
		if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusExpired {
			return conflictError(CodeBookingAlreadyProcessed, "This booking has already been processed")
		}

		pay, err = tx.GetPaymentByBooking(ctx, booking.ID)
		if err != nil {
			return err
		}
		if pay == nil || pay.IntentID != req.PaymentID {
			return notFoundError(CodePaymentNotFound, "Payment not found for this booking")
		}
		lapsed := booking.Status == models.BookingStatusExpired
		if lapsed && !pay.Status.IsOpen() {
			return conflictError(CodeBookingAlreadyProcessed, "This booking has already been processed")
		}

		details, err = tx.GetTripDetails(ctx, booking.TripID)
		if err != nil {
			return err
		}
		if details == nil {
			return notFoundError(CodeTripNotFound, "Trip not found")
		}

		// A lapsed booking may already be paid for, so the gateway is asked
		// before its seats are judged
		if lapsed {
			return nil
		}
		occupied, err := tx.ListOccupiedSeatIDs(ctx, booking.TripID)
		if err != nil {
			return err
		}
		if booked := intersect(booking.SeatIDs(), occupied); len(booked) > 0 {
			return conflictError(CodeSeatsAlreadyBooked, "One or more seats were booked by someone else", booked...)
		}
		return nil
	})
	if err != nil {
		return nil, asBookingError("failed to load booking", err)
	}

	// 2. Ask the gateway, bounded by the gateway timeout
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	conf, err := s.gateway.Confirm(gctx, pay.IntentID)
	cancel()
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "payment gateway timed out"
		}
		s.markPaymentFailed(ctx, pay.ID, reason)
		return nil, paymentError("Payment could not be confirmed. Please try again", err)
	}
	if !conf.Success {
		s.markPaymentFailed(ctx, pay.ID, conf.FailureReason)
		return nil, paymentError("Payment was declined: "+conf.FailureReason, nil)
	}

	// 3. Commit every effect of the confirmation together
	now := s.now()
	split := s.fare.Commission(booking.BaseFare, details.CommissionRate)
	err = s.store.InTx(ctx, func(tx database.Tx) error {
		ok, err := tx.TransitionBooking(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusConfirmed, now)
		if err != nil {
			return err
		}
		if !ok {
			ok, err = reviveExpiredBooking(ctx, tx, booking.ID, now)
			if err != nil {
				return err
			}
		}
		if !ok {
			return conflictError(CodeBookingAlreadyProcessed, "This booking has already been processed")
		}

		if err := tx.SetSeatsOccupied(ctx, booking.ID, true); err != nil {
			return err
		}

		txnID := conf.GatewayTxnID
		if err := tx.UpdatePaymentStatus(ctx, pay.ID, models.PaymentStatusSuccess, &txnID, nil, now); err != nil {
			return err
		}

		if _, err := tx.ReleaseLocks(ctx, booking.TripID, userID, booking.SeatIDs()); err != nil {
			return err
		}

		earning := &models.OperatorEarning{
			ID:              uuid.New(),
			OperatorID:      details.OperatorID,
			BookingID:       booking.ID,
			EntryType:       models.EarningEntry,
			TripDate:        details.TravelDate,
			GrossAmount:     booking.BaseFare,
			CommissionRate:  details.CommissionRate,
			CommissionAmt:   split.CommissionAmt,
			GSTOnCommission: split.GSTOnCommission,
			NetPayout:       split.NetPayout,
			CreatedAt:       now,
		}
		if err := tx.CreateOperatorEarning(ctx, earning); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return conflictError(CodeBookingAlreadyProcessed, "This booking has already been processed")
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrSeatTaken) {
			s.refundCapture(ctx, booking, pay, conf.GatewayTxnID, "seat taken by another booking")
			return nil, conflictError(CodeSeatsAlreadyBooked,
				"One or more seats were booked by someone else. Your payment has been refunded", booking.SeatIDs()...)
		}
		if errors.Is(err, errCaptureOrphaned) {
			s.refundCapture(ctx, booking, pay, conf.GatewayTxnID, "booking expired and its trip is closed")
			return nil, conflictError(CodeTripNotBookable,
				"This trip is no longer open for booking. Your payment has been refunded")
		}
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to commit booking confirmation")
		return nil, asBookingError("failed to confirm booking", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"pnr":            booking.PNR,
		"operator_id":    details.OperatorID,
		"gross":          booking.BaseFare.StringFixed(2),
		"net_payout":     split.NetPayout.StringFixed(2),
		"gateway_txn_id": conf.GatewayTxnID,
	}).Info("Booking confirmed")

	return &models.ConfirmPaymentResponse{
		BookingID: booking.ID,
		PNR:       booking.PNR,
		Status:    models.BookingStatusConfirmed,
	}, nil
}

// reviveExpiredBooking confirms a booking that expired while its payment was
// open. It reports false when the booking is in any other state or its
// payment was already settled, and returns errCaptureOrphaned when the trip
// no longer takes bookings.
func reviveExpiredBooking(ctx context.Context, tx database.Tx, bookingID uuid.UUID, now time.Time) (bool, error) {
	current, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if current == nil || current.Status != models.BookingStatusExpired {
		return false, nil
	}
	pay, err := tx.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if pay == nil || !pay.Status.IsOpen() {
		return false, nil
	}
	details, err := tx.GetTripDetails(ctx, current.TripID)
	if err != nil {
		return false, err
	}
	if details == nil || !details.Status.IsBookable() {
		return false, errCaptureOrphaned
	}
	return tx.TransitionBooking(ctx, bookingID, models.BookingStatusExpired, models.BookingStatusConfirmed, now)
}

// refundCapture returns a captured payment that could not be turned into a
// confirmed booking and leaves the booking EXPIRED
func (s *BookingOrchestratorService) refundCapture(ctx context.Context, booking *models.Booking, pay *models.Payment, gatewayTxnID, reason string) {
	log := s.logger.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"gateway_txn_id": gatewayTxnID,
	})

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	_, refundErr := s.gateway.Refund(gctx, gatewayTxnID, pay.Amount)
	cancel()

	status := models.PaymentStatusRefunded
	if refundErr != nil {
		log.WithError(refundErr).Error("Gateway refund failed for unconfirmable booking; manual refund required")
		status = models.PaymentStatusSuccess
		reason = reason + "; gateway refund failed: " + refundErr.Error()
	}

	now := s.now()
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		if err := tx.UpdatePaymentStatus(ctx, pay.ID, status, &gatewayTxnID, &reason, now); err != nil {
			return err
		}
		_, err := tx.TransitionBooking(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusExpired, now)
		return err
	})
	if err != nil {
		log.WithError(err).Error("Failed to record refund for unconfirmable booking")
		return
	}
	log.WithFields(logrus.Fields{
		"reason": reason,
		"status": status,
	}).Warn("Captured payment could not be confirmed")
}

func (s *BookingOrchestratorService) markPaymentFailed(ctx context.Context, paymentID uuid.UUID, reason string) {
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		return tx.UpdatePaymentStatus(ctx, paymentID, models.PaymentStatusFailed, nil, &reason, s.now())
	})
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", paymentID).Error("Failed to mark payment failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"reason":     reason,
	}).Warn("Payment failed")
}

func (s *BookingOrchestratorService) expireBooking(ctx context.Context, bookingID uuid.UUID) {
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		_, err := tx.TransitionBooking(ctx, bookingID, models.BookingStatusPending, models.BookingStatusExpired, s.now())
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to expire booking")
	}
}

// ============================================================================
// READS & HOUSEKEEPING
// ============================================================================

// GetBooking returns one of the caller's bookings with its payment
func (s *BookingOrchestratorService) GetBooking(ctx context.Context, bookingID, userID uuid.UUID) (*models.Booking, error) {
	var booking *models.Booking
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		booking, err = tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil || booking.UserID != userID {
			return notFoundError(CodeBookingNotFound, "Booking not found")
		}
		booking.Payment, err = tx.GetPaymentByBooking(ctx, bookingID)
		return err
	})
	if err != nil {
		return nil, asBookingError("failed to get booking", err)
	}
	return booking, nil
}

// ExpireStalePending marks PENDING bookings older than the pending TTL as EXPIRED
func (s *BookingOrchestratorService) ExpireStalePending(ctx context.Context) (int64, error) {
	now := s.now()
	var expired int64
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		expired, err = tx.ExpireStalePendingBookings(ctx, now.Add(-s.cfg.PendingTTL), now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale bookings: %w", err)
	}
	return expired, nil
}
