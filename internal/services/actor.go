package services

import (
	"time"

	"github.com/google/uuid"
)

// Role names carried in access tokens
const (
	RolePassenger = "PASSENGER"
	RoleOperator  = "OPERATOR"
	RoleDriver    = "DRIVER"
	RoleAdmin     = "ADMIN"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole reports whether the actor carries role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor is a platform administrator
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// Clock returns the current time. Services take one so expiry can be tested.
type Clock func() time.Time

func clockOrNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// loadLocation falls back to UTC; config validation has already checked the name
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
