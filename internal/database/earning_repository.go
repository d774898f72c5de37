package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/happybusride/booking-backend/internal/models"
)

// EarningRepository handles operator commission snapshots
type EarningRepository struct {
	db sqlx.ExtContext
}

// NewEarningRepository creates a new EarningRepository
func NewEarningRepository(db sqlx.ExtContext) *EarningRepository {
	return &EarningRepository{db: db}
}

// CreateOperatorEarning inserts an earning entry. The (booking_id, entry_type)
// unique constraint turns a repeated confirm into ErrDuplicate.
func (r *EarningRepository) CreateOperatorEarning(ctx context.Context, earning *models.OperatorEarning) error {
	query := `
		INSERT INTO operator_earnings (
			id, operator_id, booking_id, entry_type, trip_date, gross_amount,
			commission_rate, commission_amt, gst_on_commission, net_payout, created_at
		) VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		earning.ID, earning.OperatorID, earning.BookingID, earning.EntryType,
		earning.TripDate.Format(dateLayout), earning.GrossAmount, earning.CommissionRate,
		earning.CommissionAmt, earning.GSTOnCommission, earning.NetPayout, earning.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create operator earning: %w", err)
	}
	return nil
}

// GetOperatorEarning returns the entry of the given type for a booking, or nil
func (r *EarningRepository) GetOperatorEarning(ctx context.Context, bookingID uuid.UUID, entryType models.EarningEntryType) (*models.OperatorEarning, error) {
	query := `
		SELECT id, operator_id, booking_id, entry_type, trip_date, gross_amount,
		       commission_rate, commission_amt, gst_on_commission, net_payout, created_at
		FROM operator_earnings
		WHERE booking_id = $1 AND entry_type = $2`

	var earning models.OperatorEarning
	err := sqlx.GetContext(ctx, r.db, &earning, query, bookingID, entryType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator earning: %w", err)
	}
	return &earning, nil
}
