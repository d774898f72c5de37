package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SeatType is the physical kind of a seat
type SeatType string

const (
	SeatTypeSeater SeatType = "SEATER"
	SeatTypeLower  SeatType = "LOWER"
	SeatTypeUpper  SeatType = "UPPER"
)

// Seat belongs to a bus. Rows are regenerated whenever the bus layout changes.
type Seat struct {
	ID         uuid.UUID `json:"id" db:"id"`
	BusID      uuid.UUID `json:"bus_id" db:"bus_id"`
	SeatNumber string    `json:"seat_number" db:"seat_number"`
	SeatType   SeatType  `json:"seat_type" db:"seat_type"`
	Row        int       `json:"row" db:"row_number"`
	Column     string    `json:"column" db:"column_label"`
	Deck       string    `json:"deck" db:"deck"`
	IsActive   bool      `json:"is_active" db:"is_active"`
}

// SeatStatus is the read-time availability of a seat on a trip
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatLocked    SeatStatus = "LOCKED"
	SeatBooked    SeatStatus = "BOOKED"
)

// SeatView is one entry of a trip's seat map
type SeatView struct {
	Seat
	Status    SeatStatus `json:"status"`
	HeldByYou bool       `json:"held_by_you"`
}

// SeatMap is the seat view of one trip
type SeatMap struct {
	TripID     uuid.UUID  `json:"trip_id"`
	TravelDate string     `json:"travel_date"`
	TripStatus TripStatus `json:"trip_status"`
	Available  int        `json:"available"`
	Seats      []SeatView `json:"seats"`
}

// ============================================================================
// BUS & LAYOUT
// ============================================================================

// Bus is the subset of bus data the booking core needs
type Bus struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	OperatorID     uuid.UUID     `json:"operator_id" db:"operator_id"`
	OperatorUserID uuid.UUID     `json:"-" db:"operator_user_id"`
	Name           string        `json:"name" db:"name"`
	BusType        string        `json:"bus_type" db:"bus_type"`
	TotalSeats     int           `json:"total_seats" db:"total_seats"`
	Layout         *LayoutConfig `json:"layout_config,omitempty" db:"layout_config"`
}

// AisleMarker marks a column position with no seat
const AisleMarker = "_"

const (
	DeckLower = "lower"
	DeckUpper = "upper"
)

// LayoutConfig describes a bus floor plan. Columns are labels in left-to-right
// order, with AisleMarker for gaps.
type LayoutConfig struct {
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Decks   []string `json:"decks,omitempty"`
}

// Validate checks the layout
func (l *LayoutConfig) Validate() error {
	if l.Rows < 1 || l.Rows > 20 {
		return errors.New("rows must be between 1 and 20")
	}
	seen := make(map[string]bool)
	seatCols := 0
	for _, col := range l.Columns {
		if col == AisleMarker {
			continue
		}
		if col == "" {
			return errors.New("column labels cannot be empty")
		}
		if seen[col] {
			return fmt.Errorf("duplicate column label %q", col)
		}
		seen[col] = true
		seatCols++
	}
	if seatCols == 0 {
		return errors.New("at least one seat column is required")
	}
	for _, d := range l.Decks {
		if d != DeckLower && d != DeckUpper {
			return fmt.Errorf("invalid deck %q: must be lower or upper", d)
		}
	}
	return nil
}

// DeckList returns the configured decks, defaulting to the lower deck
func (l *LayoutConfig) DeckList() []string {
	if len(l.Decks) == 0 {
		return []string{DeckLower}
	}
	return l.Decks
}

func (l LayoutConfig) Value() (driver.Value, error) {
	bytes, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (l *LayoutConfig) Scan(value interface{}) error {
	if value == nil {
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
	return json.Unmarshal(bytes, l)
}
