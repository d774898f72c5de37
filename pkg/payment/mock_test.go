package payment

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway() *MockGateway {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewMockGateway(logger)
}

func TestMockGatewayConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("Success is idempotent", func(t *testing.T) {
		gw := newTestGateway()
		intent, err := gw.CreateIntent(ctx, IntentRequest{BookingID: uuid.New(), Amount: decimal.NewFromInt(555)})
		require.NoError(t, err)
		assert.NotEmpty(t, intent.ClientSecret)

		first, err := gw.Confirm(ctx, intent.ID)
		require.NoError(t, err)
		assert.True(t, first.Success)

		second, err := gw.Confirm(ctx, intent.ID)
		require.NoError(t, err)
		assert.Equal(t, first.GatewayTxnID, second.GatewayTxnID)
	})

	t.Run("Decline then retry", func(t *testing.T) {
		gw := newTestGateway()
		intent, err := gw.CreateIntent(ctx, IntentRequest{BookingID: uuid.New(), Amount: decimal.NewFromInt(100)})
		require.NoError(t, err)

		gw.Decline(intent.ID, "insufficient funds")
		declined, err := gw.Confirm(ctx, intent.ID)
		require.NoError(t, err)
		assert.False(t, declined.Success)
		assert.Equal(t, "insufficient funds", declined.FailureReason)

		retried, err := gw.Confirm(ctx, intent.ID)
		require.NoError(t, err)
		assert.True(t, retried.Success)
	})

	t.Run("Unknown intent", func(t *testing.T) {
		gw := newTestGateway()
		_, err := gw.Confirm(ctx, "mock_pi_missing")
		assert.ErrorIs(t, err, ErrIntentNotFound)
	})

	t.Run("Timeout", func(t *testing.T) {
		gw := newTestGateway()
		intent, err := gw.CreateIntent(ctx, IntentRequest{BookingID: uuid.New(), Amount: decimal.NewFromInt(100)})
		require.NoError(t, err)
		gw.SetDelay(time.Second)

		timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err = gw.Confirm(timeoutCtx, intent.ID)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMockGatewayRefund(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway()

	intent, err := gw.CreateIntent(ctx, IntentRequest{BookingID: uuid.New(), Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	conf, err := gw.Confirm(ctx, intent.ID)
	require.NoError(t, err)

	_, err = gw.Refund(ctx, conf.GatewayTxnID, decimal.NewFromInt(300))
	require.NoError(t, err)
	assert.True(t, gw.Refunded(conf.GatewayTxnID).Equal(decimal.NewFromInt(300)))

	_, err = gw.Refund(ctx, conf.GatewayTxnID, decimal.NewFromInt(300))
	assert.Error(t, err)

	_, err = gw.Refund(ctx, "mock_txn_unknown", decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(55500), ToMinorUnits(decimal.RequireFromString("555.00")))
	assert.Equal(t, int64(1999), ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.005")))
}
