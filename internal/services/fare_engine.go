package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// round2 rounds half away from zero to paise
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FareBreakdown is the price of a booking
type FareBreakdown struct {
	BaseFare       decimal.Decimal
	GSTAmount      decimal.Decimal
	ConvenienceFee decimal.Decimal
	Discount       decimal.Decimal
	TotalAmount    decimal.Decimal
}

// View renders the breakdown with two decimal places
func (f FareBreakdown) View() models.FareView {
	return models.FareView{
		BaseFare:       f.BaseFare.StringFixed(2),
		GSTAmount:      f.GSTAmount.StringFixed(2),
		ConvenienceFee: f.ConvenienceFee.StringFixed(2),
		Discount:       f.Discount.StringFixed(2),
		TotalAmount:    f.TotalAmount.StringFixed(2),
	}
}

// CommissionSplit divides a gross fare between platform and operator
type CommissionSplit struct {
	CommissionAmt   decimal.Decimal
	GSTOnCommission decimal.Decimal
	NetPayout       decimal.Decimal
}

// FareEngine prices bookings and splits commission. It holds no state beyond
// its rates; every method is a pure function of its arguments.
type FareEngine struct {
	gstRate             decimal.Decimal // fraction, 0.05
	convenienceFee      decimal.Decimal
	gstOnCommissionRate decimal.Decimal // fraction, 0.18
}

// NewFareEngine builds an engine from percentage rates
func NewFareEngine(cfg config.FareConfig) *FareEngine {
	return &FareEngine{
		gstRate:             cfg.GSTPercent.Div(hundred),
		convenienceFee:      round2(cfg.ConvenienceFee),
		gstOnCommissionRate: cfg.GSTOnCommissionPercent.Div(hundred),
	}
}

// DefaultFareEngine uses 5% GST, a flat 30 convenience fee and 18% GST on commission
func DefaultFareEngine() *FareEngine {
	return NewFareEngine(config.FareConfig{
		GSTPercent:             decimal.NewFromInt(5),
		ConvenienceFee:         decimal.NewFromInt(30),
		GSTOnCommissionPercent: decimal.NewFromInt(18),
	})
}

// Price computes the breakdown for seatCount seats at perSeat each. The
// discount is clamped to [0, subtotal] so the total never goes negative.
func (e *FareEngine) Price(perSeat decimal.Decimal, seatCount int, discount decimal.Decimal) FareBreakdown {
	base := round2(perSeat.Mul(decimal.NewFromInt(int64(seatCount))))
	gst := round2(base.Mul(e.gstRate))
	subtotal := base.Add(gst).Add(e.convenienceFee)

	discount = round2(discount)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	return FareBreakdown{
		BaseFare:       base,
		GSTAmount:      gst,
		ConvenienceFee: e.convenienceFee,
		Discount:       discount,
		TotalAmount:    subtotal.Sub(discount),
	}
}

// Commission splits gross at ratePercent. The three parts always sum to gross.
func (e *FareEngine) Commission(gross, ratePercent decimal.Decimal) CommissionSplit {
	commission := round2(gross.Mul(ratePercent).Div(hundred))
	gstOnCommission := round2(commission.Mul(e.gstOnCommissionRate))

	return CommissionSplit{
		CommissionAmt:   commission,
		GSTOnCommission: gstOnCommission,
		NetPayout:       gross.Sub(commission).Sub(gstOnCommission),
	}
}

// RefundAmount applies the cancellation policy. Cutoffs are strict: a
// MODERATE cancellation exactly 24h before departure gets the 50% tier.
// Unrecognised policies fall back to MODERATE.
func (e *FareEngine) RefundAmount(totalPaid decimal.Decimal, departure time.Time, policy models.CancellationPolicy, now time.Time) decimal.Decimal {
	untilDeparture := departure.Sub(now)

	switch policy {
	case models.PolicyStrict:
		return decimal.Zero
	case models.PolicyFlexible:
		if untilDeparture > 2*time.Hour {
			return totalPaid
		}
		return decimal.Zero
	}

	if untilDeparture > 24*time.Hour {
		return totalPaid
	}
	if untilDeparture > 6*time.Hour {
		return round2(totalPaid.Div(decimal.NewFromInt(2)))
	}
	return decimal.Zero
}
