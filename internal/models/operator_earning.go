package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EarningEntryType distinguishes the confirmation snapshot from its reversal
type EarningEntryType string

const (
	EarningEntry    EarningEntryType = "EARNING"
	EarningReversal EarningEntryType = "REVERSAL"
)

// OperatorEarning is an immutable snapshot of the commission split taken when
// a booking was confirmed. A cancelled booking gets a REVERSAL entry with
// every amount negated; the original row is never updated.
type OperatorEarning struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	OperatorID      uuid.UUID        `json:"operator_id" db:"operator_id"`
	BookingID       uuid.UUID        `json:"booking_id" db:"booking_id"`
	EntryType       EarningEntryType `json:"entry_type" db:"entry_type"`
	TripDate        time.Time        `json:"trip_date" db:"trip_date"`
	GrossAmount     decimal.Decimal  `json:"gross_amount" db:"gross_amount"`
	CommissionRate  decimal.Decimal  `json:"commission_rate" db:"commission_rate"`
	CommissionAmt   decimal.Decimal  `json:"commission_amt" db:"commission_amt"`
	GSTOnCommission decimal.Decimal  `json:"gst_on_commission" db:"gst_on_commission"`
	NetPayout       decimal.Decimal  `json:"net_payout" db:"net_payout"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}

// Reverse returns the negating entry for e
func (e *OperatorEarning) Reverse(at time.Time) *OperatorEarning {
	return &OperatorEarning{
		ID:              uuid.New(),
		OperatorID:      e.OperatorID,
		BookingID:       e.BookingID,
		EntryType:       EarningReversal,
		TripDate:        e.TripDate,
		GrossAmount:     e.GrossAmount.Neg(),
		CommissionRate:  e.CommissionRate,
		CommissionAmt:   e.CommissionAmt.Neg(),
		GSTOnCommission: e.GSTOnCommission.Neg(),
		NetPayout:       e.NetPayout.Neg(),
		CreatedAt:       at,
	}
}
