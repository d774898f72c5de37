package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks the gateway outcome for a booking
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// IsOpen reports whether the gateway outcome has not been settled yet. A
// FAILED payment stays open because the passenger may retry it.
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusFailed
}

// PaymentMethod is how the passenger pays
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodUPI    PaymentMethod = "UPI"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodCash   PaymentMethod = "CASH"
)

// IsValid reports whether m is a supported method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodWallet, PaymentMethodUPI, PaymentMethodCard, PaymentMethodCash:
		return true
	}
	return false
}

// Payment is one-to-one with a booking
type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	BookingID     uuid.UUID       `json:"booking_id" db:"booking_id"`
	IntentID      string          `json:"intent_id" db:"intent_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Method        PaymentMethod   `json:"method" db:"method"`
	Status        PaymentStatus   `json:"status" db:"status"`
	GatewayTxnID  *string         `json:"gateway_txn_id,omitempty" db:"gateway_txn_id"`
	FailureReason *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
