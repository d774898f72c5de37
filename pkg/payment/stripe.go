package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway charges through Stripe PaymentIntents. The passenger app
// completes the intent with the client secret; Confirm only verifies it.
type StripeGateway struct {
	api      *client.API
	currency string
	logger   *logrus.Logger
}

// NewStripeGateway creates a gateway bound to one secret key
func NewStripeGateway(secretKey, currency string, logger *logrus.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, currency: currency, logger: logger}
}

// Name returns the provider name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// CreateIntent creates a PaymentIntent keyed on the booking so a retried
// initiation does not create a second charge
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(req.Amount)),
		Currency: stripe.String(g.currency),
	}
	params.Context = ctx
	params.SetIdempotencyKey("booking-" + req.BookingID.String())
	params.AddMetadata("booking_id", req.BookingID.String())
	params.AddMetadata("method", req.Method)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"intent_id":  pi.ID,
		"booking_id": req.BookingID,
	}).Info("Payment intent created")

	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// Confirm reports whether the intent has succeeded
func (g *StripeGateway) Confirm(ctx context.Context, intentID string) (*Confirmation, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.HTTPStatusCode == 404 {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		reason := fmt.Sprintf("payment intent status is %s", pi.Status)
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return &Confirmation{Success: false, FailureReason: reason}, nil
	}

	return &Confirmation{Success: true, GatewayTxnID: pi.ID}, nil
}

// Refund refunds part or all of a succeeded intent
func (g *StripeGateway) Refund(ctx context.Context, gatewayTxnID string, amount decimal.Decimal) (*RefundResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(gatewayTxnID),
		Amount:        stripe.Int64(ToMinorUnits(amount)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + gatewayTxnID)

	re, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"gateway_txn_id": gatewayTxnID,
		"refund_id":      re.ID,
	}).Info("Refund issued")

	return &RefundResult{RefundTxnID: re.ID}, nil
}
