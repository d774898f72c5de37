package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrIntentNotFound is returned when the gateway has no record of an intent
	ErrIntentNotFound = errors.New("payment intent not found")

	// ErrInvalidAmount is returned for non-positive charge amounts
	ErrInvalidAmount = errors.New("amount must be greater than 0")
)

// IntentRequest asks the gateway to prepare a charge for a booking
type IntentRequest struct {
	BookingID uuid.UUID
	Amount    decimal.Decimal
	Method    string
}

// Intent is a prepared, not yet captured, charge
type Intent struct {
	ID           string
	ClientSecret string
}

// Confirmation is the gateway's verdict on an intent. A decline is a normal
// outcome reported with Success=false; errors are reserved for transport and
// lookup failures.
type Confirmation struct {
	Success       bool
	GatewayTxnID  string
	FailureReason string
}

// RefundResult identifies a refund issued by the gateway
type RefundResult struct {
	RefundTxnID string
}

// Gateway is the external payment provider
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Confirm(ctx context.Context, intentID string) (*Confirmation, error)
	Refund(ctx context.Context, gatewayTxnID string, amount decimal.Decimal) (*RefundResult, error)
}

// ToMinorUnits converts a rupee amount to paise
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
