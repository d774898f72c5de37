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
)

const walletHistoryLimit = 20

// CancellationService reverses confirmed bookings and settles their refunds
type CancellationService struct {
	store  database.Store
	fare   *FareEngine
	loc    *time.Location
	now    Clock
	logger *logrus.Logger
}

// NewCancellationService creates a new CancellationService
func NewCancellationService(store database.Store, fare *FareEngine, cfg config.BookingConfig, clock Clock, logger *logrus.Logger) *CancellationService {
	return &CancellationService{
		store:  store,
		fare:   fare,
		loc:    loadLocation(cfg.Timezone),
		now:    clockOrNow(clock),
		logger: logger,
	}
}

// Cancel cancels one of the caller's confirmed bookings. The refund is priced
// by the operator's cancellation policy; a zero refund is rejected on the spot.
func (s *CancellationService) Cancel(ctx context.Context, userID, bookingID uuid.UUID, reason string) (*models.CancelBookingResponse, error) {
	if reason == "" {
		reason = "Cancelled by passenger"
	}
	now := s.now()

	var refund *models.Refund
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil || booking.UserID != userID {
			return notFoundError(CodeBookingNotFound, "Booking not found")
		}
		if booking.Status != models.BookingStatusConfirmed {
			return validationError(CodeNotCancellable, "Only confirmed bookings can be cancelled")
		}

		details, err := tx.GetTripDetails(ctx, booking.TripID)
		if err != nil {
			return err
		}
		if details == nil {
			return notFoundError(CodeTripNotFound, "Trip not found")
		}
		departure, err := details.DepartureAt(s.loc)
		if err != nil {
			return fmt.Errorf("invalid departure time %q: %w", details.DepartureTime, err)
		}

		amount := s.fare.RefundAmount(booking.TotalAmount, departure, details.CancellationPolicy, now)
		refund, err = reverseBooking(ctx, tx, booking, reversal{
			status:       models.BookingStatusCancelledUser,
			reason:       reason,
			refundAmount: amount,
			policy:       details.CancellationPolicy,
			at:           now,
		})
		return err
	})
	if err != nil {
		return nil, asBookingError("failed to cancel booking", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":    bookingID,
		"user_id":       userID,
		"refund_amount": refund.Amount.StringFixed(2),
		"refund_status": refund.Status,
	}).Info("Booking cancelled")

	message := "Booking cancelled. Your refund is being reviewed"
	if refund.Status == models.RefundStatusRejected {
		message = "Booking cancelled. This booking is not eligible for a refund"
	}
	return &models.CancelBookingResponse{
		BookingID:    bookingID,
		Status:       models.BookingStatusCancelledUser,
		RefundID:     refund.ID,
		RefundAmount: refund.Amount.StringFixed(2),
		RefundStatus: refund.Status,
		Message:      message,
	}, nil
}

// reversal describes how a confirmed booking is being unwound
type reversal struct {
	status       models.BookingStatus
	reason       string
	refundAmount decimal.Decimal
	policy       models.CancellationPolicy
	at           time.Time
}

// reverseBooking cancels a CONFIRMED booking inside tx: the seats are freed,
// the earning snapshot is negated and a refund is recorded
func reverseBooking(ctx context.Context, tx database.Tx, booking *models.Booking, r reversal) (*models.Refund, error) {
	ok, err := tx.CancelBooking(ctx, booking.ID, r.status, r.reason, r.at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictError(CodeBookingAlreadyProcessed, "This booking has already been processed")
	}

	if err := tx.SetSeatsOccupied(ctx, booking.ID, false); err != nil {
		return nil, err
	}

	earning, err := tx.GetOperatorEarning(ctx, booking.ID, models.EarningEntry)
	if err != nil {
		return nil, err
	}
	if earning != nil {
		if err := tx.CreateOperatorEarning(ctx, earning.Reverse(r.at)); err != nil && !errors.Is(err, database.ErrDuplicate) {
			return nil, err
		}
	}

	refund := &models.Refund{
		ID:        uuid.New(),
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Amount:    r.refundAmount,
		Reason:    r.reason,
		Status:    models.RefundStatusRequested,
		CreatedAt: r.at,
	}
	if !r.refundAmount.IsPositive() {
		rejection := fmt.Sprintf("Not eligible for a refund under the %s cancellation policy", r.policy)
		at := r.at
		refund.Amount = decimal.Zero
		refund.Status = models.RefundStatusRejected
		refund.RejectionReason = &rejection
		refund.ReviewedAt = &at
	}
	if err := tx.CreateRefund(ctx, refund); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, conflictError(CodeBookingAlreadyProcessed, "A refund already exists for this booking")
		}
		return nil, err
	}
	return refund, nil
}

// ============================================================================
// REFUND REVIEW
// ============================================================================

// Settle approves a requested refund: the passenger wallet is credited and the
// booking becomes REFUNDED
func (s *CancellationService) Settle(ctx context.Context, adminID, refundID uuid.UUID) (*models.Refund, error) {
	now := s.now()

	var settled *models.Refund
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		refund, err := s.requestedRefund(ctx, tx, refundID)
		if err != nil {
			return err
		}
		booking, err := tx.GetBooking(ctx, refund.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return notFoundError(CodeBookingNotFound, "Booking not found")
		}

		bookingID := booking.ID
		txn := &models.WalletTransaction{
			ID:          uuid.New(),
			UserID:      refund.UserID,
			Type:        models.WalletCredit,
			Amount:      refund.Amount,
			Description: "Refund for booking " + booking.PNR,
			BookingID:   &bookingID,
			CreatedAt:   now,
		}
		if _, err := tx.CreditWallet(ctx, txn); err != nil {
			return err
		}

		txnID := txn.ID.String()
		ok, err := tx.ReviewRefund(ctx, refundID, models.RefundStatusProcessed, adminID, &txnID, nil, now)
		if err != nil {
			return err
		}
		if !ok {
			return conflictError(CodeRefundAlreadyReviewed, "This refund has already been reviewed")
		}

		if _, err := tx.TransitionBooking(ctx, booking.ID, booking.Status, models.BookingStatusRefunded, now); err != nil {
			return err
		}

		pay, err := tx.GetPaymentByBooking(ctx, booking.ID)
		if err != nil {
			return err
		}
		if pay != nil {
			if err := tx.UpdatePaymentStatus(ctx, pay.ID, models.PaymentStatusRefunded, nil, nil, now); err != nil {
				return err
			}
		}

		settled, err = tx.GetRefund(ctx, refundID)
		return err
	})
	if err != nil {
		return nil, asBookingError("failed to settle refund", err)
	}

	s.logger.WithFields(logrus.Fields{
		"refund_id": refundID,
		"admin_id":  adminID,
		"amount":    settled.Amount.StringFixed(2),
	}).Info("Refund settled to wallet")
	return settled, nil
}

// Reject declines a requested refund
func (s *CancellationService) Reject(ctx context.Context, adminID, refundID uuid.UUID, reason string) (*models.Refund, error) {
	if reason == "" {
		return nil, validationError(CodeInvalidRequest, "reason is required")
	}
	now := s.now()

	var rejected *models.Refund
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		if _, err := s.requestedRefund(ctx, tx, refundID); err != nil {
			return err
		}
		ok, err := tx.ReviewRefund(ctx, refundID, models.RefundStatusRejected, adminID, nil, &reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return conflictError(CodeRefundAlreadyReviewed, "This refund has already been reviewed")
		}
		rejected, err = tx.GetRefund(ctx, refundID)
		return err
	})
	if err != nil {
		return nil, asBookingError("failed to reject refund", err)
	}

	s.logger.WithFields(logrus.Fields{
		"refund_id": refundID,
		"admin_id":  adminID,
	}).Info("Refund rejected")
	return rejected, nil
}

func (s *CancellationService) requestedRefund(ctx context.Context, tx database.Tx, refundID uuid.UUID) (*models.Refund, error) {
	refund, err := tx.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, notFoundError(CodeRefundNotFound, "Refund not found")
	}
	if refund.Status != models.RefundStatusRequested {
		return nil, conflictError(CodeRefundAlreadyReviewed, "This refund has already been reviewed")
	}
	return refund, nil
}

// GetWallet returns the caller's wallet balance and recent movements
func (s *CancellationService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		wallet, err = tx.GetWallet(ctx, userID, walletHistoryLimit)
		return err
	})
	if err != nil {
		return nil, asBookingError("failed to get wallet", err)
	}
	if wallet == nil {
		wallet = &models.Wallet{UserID: userID, Balance: decimal.Zero, Transactions: []models.WalletTransaction{}}
	}
	return wallet, nil
}
