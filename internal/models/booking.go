package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// BOOKING STATUS
// ============================================================================

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending           BookingStatus = "PENDING"
	BookingStatusConfirmed         BookingStatus = "CONFIRMED"
	BookingStatusCompleted         BookingStatus = "COMPLETED"
	BookingStatusCancelledUser     BookingStatus = "CANCELLED_USER"
	BookingStatusCancelledOperator BookingStatus = "CANCELLED_OPERATOR"
	BookingStatusRefunded          BookingStatus = "REFUNDED"
	BookingStatusExpired           BookingStatus = "EXPIRED" // abandoned before payment completed
)

// OccupiesSeats reports whether bookings in this status hold their seats
func (s BookingStatus) OccupiesSeats() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCompleted
}

// ============================================================================
// BOOKING (bookings table)
// ============================================================================

// DeviceInfo stores device metadata
type DeviceInfo map[string]interface{}

func (d DeviceInfo) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (d *DeviceInfo) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, d)
}

// Booking is a passenger's purchase of seats on one trip
type Booking struct {
	ID      uuid.UUID     `json:"id" db:"id"`
	PNR     string        `json:"pnr" db:"pnr"`
	QRToken string        `json:"-" db:"qr_token"`
	UserID  uuid.UUID     `json:"user_id" db:"user_id"`
	TripID  uuid.UUID     `json:"trip_id" db:"trip_id"`
	Status  BookingStatus `json:"status" db:"status"`

	// Fare breakdown, frozen at initiation
	BaseFare       decimal.Decimal `json:"base_fare" db:"base_fare"`
	GSTAmount      decimal.Decimal `json:"gst_amount" db:"gst_amount"`
	ConvenienceFee decimal.Decimal `json:"convenience_fee" db:"convenience_fee"`
	Discount       decimal.Decimal `json:"discount" db:"discount"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`

	DeviceInfo         DeviceInfo `json:"device_info,omitempty" db:"device_info"`
	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`

	Passengers []Passenger   `json:"passengers,omitempty" db:"-"`
	Seats      []BookingSeat `json:"seats,omitempty" db:"-"`
	Payment    *Payment      `json:"payment,omitempty" db:"-"`
}

// SeatIDs returns the ids of the seats on the booking
func (b *Booking) SeatIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b.Seats))
	for i, s := range b.Seats {
		ids[i] = s.SeatID
	}
	return ids
}

// Passenger is one traveller on a booking
type Passenger struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BookingID uuid.UUID `json:"booking_id" db:"booking_id"`
	Name      string    `json:"name" db:"name"`
	Age       int       `json:"age" db:"age"`
	Gender    string    `json:"gender" db:"gender"`
	SeatID    uuid.UUID `json:"seat_id" db:"seat_id"`
}

// BookingSeat links a booking to a seat. Occupied is set only while the
// booking is confirmed or completed; a partial unique index on
// (trip_id, seat_id) WHERE occupied makes double-sale impossible.
type BookingSeat struct {
	ID         uuid.UUID `json:"id" db:"id"`
	BookingID  uuid.UUID `json:"booking_id" db:"booking_id"`
	TripID     uuid.UUID `json:"trip_id" db:"trip_id"`
	SeatID     uuid.UUID `json:"seat_id" db:"seat_id"`
	SeatNumber string    `json:"seat_number,omitempty" db:"seat_number"`
	Occupied   bool      `json:"-" db:"occupied"`
}

// GeneratePNR returns a passenger-facing booking reference such as
// HB3F9A1C07E2: the HB prefix and 10 hex digits of a random UUID
func GeneratePNR() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "HB" + strings.ToUpper(raw[:10])
}

// GenerateQRToken returns the opaque token embedded in the ticket QR code
func GenerateQRToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ============================================================================
// REQUESTS
// ============================================================================

// PassengerInput is a traveller submitted with a payment initiation
type PassengerInput struct {
	Name   string    `json:"name"`
	Age    int       `json:"age"`
	Gender string    `json:"gender"`
	SeatID uuid.UUID `json:"seat_id"`
}

// InitiatePaymentRequest starts checkout for held seats
type InitiatePaymentRequest struct {
	TripID     uuid.UUID        `json:"trip_id" binding:"required"`
	SeatIDs    []uuid.UUID      `json:"seat_ids" binding:"required"`
	Passengers []PassengerInput `json:"passengers" binding:"required"`
	Amount     decimal.Decimal  `json:"amount"` // total the client displayed; zero skips the check
	Method     PaymentMethod    `json:"method" binding:"required"`
}

// Validate checks the request shape. Each seat needs exactly one passenger.
func (r *InitiatePaymentRequest) Validate() error {
	if r.TripID == uuid.Nil {
		return errors.New("trip_id is required")
	}
	if len(r.SeatIDs) == 0 {
		return errors.New("at least one seat is required")
	}
	seats := make(map[uuid.UUID]bool, len(r.SeatIDs))
	for _, id := range r.SeatIDs {
		if seats[id] {
			return fmt.Errorf("seat %s is listed more than once", id)
		}
		seats[id] = true
	}
	if len(r.Passengers) != len(r.SeatIDs) {
		return errors.New("one passenger is required per seat")
	}
	assigned := make(map[uuid.UUID]bool, len(r.Passengers))
	for i, p := range r.Passengers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("passengers[%d].name is required", i)
		}
		if p.Age < 1 || p.Age > 120 {
			return fmt.Errorf("passengers[%d].age must be between 1 and 120", i)
		}
		if strings.TrimSpace(p.Gender) == "" {
			return fmt.Errorf("passengers[%d].gender is required", i)
		}
		if !seats[p.SeatID] {
			return fmt.Errorf("passengers[%d].seat_id is not one of the selected seats", i)
		}
		if assigned[p.SeatID] {
			return fmt.Errorf("seat %s has more than one passenger", p.SeatID)
		}
		assigned[p.SeatID] = true
	}
	if r.Amount.IsNegative() {
		return errors.New("amount cannot be negative")
	}
	if !r.Method.IsValid() {
		return errors.New("method must be one of WALLET, UPI, CARD, CASH")
	}
	return nil
}

// ConfirmPaymentRequest completes checkout after the gateway step
type ConfirmPaymentRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	PaymentID string    `json:"payment_id" binding:"required"`
}

// CancelBookingRequest is the optional body of a cancellation
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// VerifyTicketRequest is sent by the driver's scanner
type VerifyTicketRequest struct {
	PNR string `json:"pnr" binding:"required"`
}

// ============================================================================
// RESPONSES
// ============================================================================

// InitiatePaymentResponse is returned after a pending booking is created
type InitiatePaymentResponse struct {
	BookingID uuid.UUID `json:"booking_id"`
	PaymentID string    `json:"payment_id"`
	PNR       string    `json:"pnr"`
	Amount    string    `json:"amount"`
	Fare      FareView  `json:"fare"`
	ExpiresAt time.Time `json:"expires_at"`

	// ClientSecret is set by gateways that complete payment on the client
	ClientSecret string `json:"client_secret,omitempty"`
}

// FareView renders a fare breakdown with two decimal places
type FareView struct {
	BaseFare       string `json:"base_fare"`
	GSTAmount      string `json:"gst_amount"`
	ConvenienceFee string `json:"convenience_fee"`
	Discount       string `json:"discount"`
	TotalAmount    string `json:"total_amount"`
}

// ConfirmPaymentResponse is returned once a booking is confirmed
type ConfirmPaymentResponse struct {
	BookingID uuid.UUID     `json:"booking_id"`
	PNR       string        `json:"pnr"`
	Status    BookingStatus `json:"status"`
}

// CancelBookingResponse reports the refund decided at cancellation
type CancelBookingResponse struct {
	BookingID    uuid.UUID     `json:"booking_id"`
	Status       BookingStatus `json:"status"`
	RefundID     uuid.UUID     `json:"refund_id"`
	RefundAmount string        `json:"refund_amount"`
	RefundStatus RefundStatus  `json:"refund_status"`
	Message      string        `json:"message"`
}

// TicketVerification is returned to the driver's scanner
type TicketVerification struct {
	Valid      bool          `json:"valid"`
	PNR        string        `json:"pnr,omitempty"`
	Status     BookingStatus `json:"status,omitempty"`
	SeatIDs    []uuid.UUID   `json:"seat_ids,omitempty"`
	Passengers []Passenger   `json:"passengers,omitempty"`
	Message    string        `json:"message,omitempty"`
}
