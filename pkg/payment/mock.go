package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type mockIntent struct {
	amount    decimal.Decimal
	bookingID uuid.UUID
	txnID     string
	captured  bool
}

// MockGateway is an in-process gateway for development and tests. Every
// intent succeeds unless declined with Decline.
type MockGateway struct {
	mu       sync.Mutex
	intents  map[string]*mockIntent
	declined map[string]string
	refunds  map[string]decimal.Decimal
	delay    time.Duration
	logger   *logrus.Logger
}

// NewMockGateway creates a new MockGateway
func NewMockGateway(logger *logrus.Logger) *MockGateway {
	return &MockGateway{
		intents:  make(map[string]*mockIntent),
		declined: make(map[string]string),
		refunds:  make(map[string]decimal.Decimal),
		logger:   logger,
	}
}

// Name returns the provider name
func (g *MockGateway) Name() string {
	return "mock"
}

// Decline makes the next confirmation of intentID fail with reason
func (g *MockGateway) Decline(intentID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declined[intentID] = reason
}

// SetDelay makes Confirm wait d before answering, or until ctx is done
func (g *MockGateway) SetDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

// CreateIntent registers a new intent
func (g *MockGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	id := "mock_pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	g.mu.Lock()
	g.intents[id] = &mockIntent{amount: req.Amount, bookingID: req.BookingID}
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"intent_id":  id,
		"booking_id": req.BookingID,
		"amount":     req.Amount.StringFixed(2),
	}).Info("Mock payment intent created")

	return &Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

// Confirm captures an intent. Confirming a captured intent again returns the
// original transaction id.
func (g *MockGateway) Confirm(ctx context.Context, intentID string) (*Confirmation, error) {
	g.mu.Lock()
	delay := g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("gateway confirm: %w", ctx.Err())
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if intent.captured {
		return &Confirmation{Success: true, GatewayTxnID: intent.txnID}, nil
	}
	if reason, declined := g.declined[intentID]; declined {
		delete(g.declined, intentID)
		g.logger.WithFields(logrus.Fields{
			"intent_id": intentID,
			"reason":    reason,
		}).Warn("Mock payment declined")
		return &Confirmation{Success: false, FailureReason: reason}, nil
	}

	intent.captured = true
	intent.txnID = "mock_txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return &Confirmation{Success: true, GatewayTxnID: intent.txnID}, nil
}

// Refund returns money for a captured transaction
func (g *MockGateway) Refund(ctx context.Context, gatewayTxnID string, amount decimal.Decimal) (*RefundResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var found *mockIntent
	for _, intent := range g.intents {
		if intent.captured && intent.txnID == gatewayTxnID {
			found = intent
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no captured transaction %s", gatewayTxnID)
	}
	refunded := g.refunds[gatewayTxnID].Add(amount)
	if refunded.GreaterThan(found.amount) {
		return nil, fmt.Errorf("refund of %s exceeds captured amount %s", refunded.StringFixed(2), found.amount.StringFixed(2))
	}
	g.refunds[gatewayTxnID] = refunded

	g.logger.WithFields(logrus.Fields{
		"gateway_txn_id": gatewayTxnID,
		"amount":         amount.StringFixed(2),
	}).Info("Mock refund issued")

	return &RefundResult{RefundTxnID: "mock_re_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]}, nil
}

// Refunded returns the total refunded against a transaction
func (g *MockGateway) Refunded(gatewayTxnID string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[gatewayTxnID]
}
