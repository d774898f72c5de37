package main

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/database/memstore"
	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
	"github.com/happybusride/booking-backend/pkg/jwt"
)

// seedDemoData gives DATABASE_DRIVER=memory runs one operator with a sleeper
// bus and a nightly schedule, plus tokens for each role. Trips are created by
// the horizon job on startup.
func seedDemoData(store *memstore.Store, jwtService *jwt.Service, logger *logrus.Logger) {
	operatorUserID := uuid.New()
	passengerID := uuid.New()
	driverID := uuid.New()
	adminID := uuid.New()

	operator := memstore.Operator{
		ID:                 uuid.New(),
		UserID:             operatorUserID,
		CommissionRate:     decimal.NewFromInt(10),
		CancellationPolicy: models.PolicyModerate,
	}
	store.AddOperator(operator)
	store.AddUser(passengerID, decimal.Zero)

	layout := models.LayoutConfig{
		Rows:    5,
		Columns: []string{"A", models.AisleMarker, "B", "C"},
		Decks:   []string{models.DeckLower, models.DeckUpper},
	}
	bus := models.Bus{
		ID:         uuid.New(),
		OperatorID: operator.ID,
		Name:       "Demo Sleeper",
		BusType:    "AC_SLEEPER",
		Layout:     &layout,
	}
	if err := store.AddBus(bus, services.GenerateSeats(bus.ID, bus.BusType, layout)); err != nil {
		logger.WithError(err).Error("Failed to seed demo bus")
		return
	}

	schedule := memstore.Schedule{
		ID:            uuid.New(),
		BusID:         bus.ID,
		DepartureTime: "21:30",
		BaseFare:      decimal.NewFromInt(850),
		IsActive:      true,
	}
	if err := store.AddSchedule(schedule); err != nil {
		logger.WithError(err).Error("Failed to seed demo schedule")
		return
	}

	fields := logrus.Fields{
		"bus_id":      bus.ID,
		"schedule_id": schedule.ID,
	}
	for name, user := range map[string]struct {
		id   uuid.UUID
		role string
	}{
		"passenger_token": {passengerID, services.RolePassenger},
		"operator_token":  {operatorUserID, services.RoleOperator},
		"driver_token":    {driverID, services.RoleDriver},
		"admin_token":     {adminID, services.RoleAdmin},
	} {
		token, err := jwtService.GenerateAccessToken(user.id, []string{user.role})
		if err != nil {
			logger.WithError(err).Error("Failed to mint demo token")
			return
		}
		fields[name] = token
	}
	logger.WithFields(fields).Info("Seeded demo data")
}
