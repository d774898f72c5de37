package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/happybusride/booking-backend/internal/models"
)

// PaymentRepository handles gateway payment records
type PaymentRepository struct {
	db sqlx.ExtContext
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePayment inserts the payment row for a booking
func (r *PaymentRepository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_id, intent_id, amount, method, status,
			gateway_txn_id, failure_reason, created_at, updated_at
		) VALUES (
			:id, :booking_id, :intent_id, :amount, :method, :status,
			:gateway_txn_id, :failure_reason, :created_at, :updated_at
		)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, payment); err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByBooking returns the payment of a booking, or nil
func (r *PaymentRepository) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, intent_id, amount, method, status,
		       gateway_txn_id, failure_reason, created_at, updated_at
		FROM payments
		WHERE booking_id = $1`

	var payment models.Payment
	err := sqlx.GetContext(ctx, r.db, &payment, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// UpdatePaymentStatus records a gateway outcome. A nil gatewayTxnID keeps the stored one.
func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status models.PaymentStatus, gatewayTxnID, failureReason *string, at time.Time) error {
	query := `
		UPDATE payments
		SET status = $2,
		    gateway_txn_id = COALESCE($3, gateway_txn_id),
		    failure_reason = $4,
		    updated_at = $5
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, paymentID, status, gatewayTxnID, failureReason, at)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("payment %s not found", paymentID)
	}
	return nil
}
