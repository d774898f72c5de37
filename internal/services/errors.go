package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies a failed booking operation for the caller
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"     // bad input, nothing was changed
	KindConflict      ErrorKind = "conflict"       // lost a race or stale state; retry with fresh data
	KindNotFound      ErrorKind = "not_found"      // unknown or not visible to the caller
	KindForbidden     ErrorKind = "forbidden"      // authenticated but not allowed
	KindPaymentFailed ErrorKind = "payment_failed" // gateway declined or was unreachable
	KindInternal      ErrorKind = "internal"
)

// Error codes rendered to clients
const (
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeInvalidSeatCount        = "INVALID_SEAT_COUNT"
	CodeUnknownSeat             = "UNKNOWN_SEAT"
	CodeSeatsUnavailable        = "SEATS_UNAVAILABLE"
	CodeSeatsAlreadyBooked      = "SEATS_ALREADY_BOOKED"
	CodeReservationExpired      = "RESERVATION_EXPIRED"
	CodeFareChanged             = "FARE_CHANGED"
	CodeTripNotFound            = "TRIP_NOT_FOUND"
	CodeTripNotBookable         = "TRIP_NOT_BOOKABLE"
	CodeBookingNotFound         = "BOOKING_NOT_FOUND"
	CodeBookingAlreadyProcessed = "BOOKING_ALREADY_PROCESSED"
	CodeNotCancellable          = "NOT_CANCELLABLE"
	CodePaymentNotFound         = "PAYMENT_NOT_FOUND"
	CodePaymentFailed           = "PAYMENT_FAILED"
	CodeRefundNotFound          = "REFUND_NOT_FOUND"
	CodeRefundAlreadyReviewed   = "REFUND_ALREADY_REVIEWED"
	CodeInvalidTransition       = "INVALID_STATUS_TRANSITION"
	CodeBusNotFound             = "BUS_NOT_FOUND"
	CodeLayoutInUse             = "LAYOUT_IN_USE"
	CodeScheduleNotFound        = "SCHEDULE_NOT_FOUND"
	CodeNotAssigned             = "NOT_ASSIGNED"
	CodeInternal                = "INTERNAL_ERROR"
)

// BookingError is the tagged result of a failed booking operation. Expected
// business outcomes (seat taken, booking already confirmed) are reported this
// way; only KindInternal wraps an unexpected failure.
type BookingError struct {
	Kind    ErrorKind
	Code    string
	Message string
	SeatIDs []uuid.UUID
	Err     error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

func validationError(code, message string) *BookingError {
	return &BookingError{Kind: KindValidation, Code: code, Message: message}
}

func conflictError(code, message string, seatIDs ...uuid.UUID) *BookingError {
	return &BookingError{Kind: KindConflict, Code: code, Message: message, SeatIDs: seatIDs}
}

func notFoundError(code, message string) *BookingError {
	return &BookingError{Kind: KindNotFound, Code: code, Message: message}
}

func forbiddenError(code, message string) *BookingError {
	return &BookingError{Kind: KindForbidden, Code: code, Message: message}
}

func paymentError(message string, err error) *BookingError {
	return &BookingError{Kind: KindPaymentFailed, Code: CodePaymentFailed, Message: message, Err: err}
}

func internalError(message string, err error) *BookingError {
	return &BookingError{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, treating unknown errors as internal
func KindOf(err error) ErrorKind {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// asBookingError passes BookingErrors through and wraps anything else as internal
func asBookingError(message string, err error) error {
	var be *BookingError
	if errors.As(err, &be) {
		return be
	}
	return internalError(message, err)
}
