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

// RefundRepository handles refund requests
type RefundRepository struct {
	db sqlx.ExtContext
}

// NewRefundRepository creates a new RefundRepository
func NewRefundRepository(db sqlx.ExtContext) *RefundRepository {
	return &RefundRepository{db: db}
}

// CreateRefund inserts a refund; a booking can have only one
func (r *RefundRepository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	query := `
		INSERT INTO refunds (
			id, booking_id, user_id, amount, reason, status,
			rejection_reason, reviewed_by, reviewed_at, refund_txn_id, created_at
		) VALUES (
			:id, :booking_id, :user_id, :amount, :reason, :status,
			:rejection_reason, :reviewed_by, :reviewed_at, :refund_txn_id, :created_at
		)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, refund); err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

// GetRefund returns a refund by id, or nil
func (r *RefundRepository) GetRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	query := `
		SELECT id, booking_id, user_id, amount, reason, status,
		       rejection_reason, reviewed_by, reviewed_at, refund_txn_id, created_at
		FROM refunds
		WHERE id = $1`

	var refund models.Refund
	err := sqlx.GetContext(ctx, r.db, &refund, query, refundID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return &refund, nil
}

// ReviewRefund finalizes a REQUESTED refund
func (r *RefundRepository) ReviewRefund(ctx context.Context, refundID uuid.UUID, to models.RefundStatus, reviewer uuid.UUID, txnID, rejectionReason *string, at time.Time) (bool, error) {
	query := `
		UPDATE refunds
		SET status = $2, reviewed_by = $3, refund_txn_id = $4, rejection_reason = $5, reviewed_at = $6
		WHERE id = $1 AND status = 'REQUESTED'`

	result, err := r.db.ExecContext(ctx, query, refundID, to, reviewer, txnID, rejectionReason, at)
	if err != nil {
		return false, fmt.Errorf("failed to review refund: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}
