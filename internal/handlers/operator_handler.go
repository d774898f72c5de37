package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
)

// OperatorHandler serves bus layout and trip generation for operators
type OperatorHandler struct {
	layoutService        *services.BusSeatLayoutService
	tripGeneratorService *services.TripGeneratorService
	logger               *logrus.Logger
}

// NewOperatorHandler creates a new OperatorHandler
func NewOperatorHandler(
	layoutService *services.BusSeatLayoutService,
	tripGeneratorService *services.TripGeneratorService,
	logger *logrus.Logger,
) *OperatorHandler {
	return &OperatorHandler{
		layoutService:        layoutService,
		tripGeneratorService: tripGeneratorService,
		logger:               logger,
	}
}

// ApplyLayout handles PUT /api/v1/operator/buses/:bus_id/layout
// Regenerates every seat of the bus from the submitted layout.
func (h *OperatorHandler) ApplyLayout(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	busID, ok := pathUUID(c, "bus_id")
	if !ok {
		return
	}

	var layout models.LayoutConfig
	if err := c.ShouldBindJSON(&layout); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	seats, err := h.layoutService.ApplyLayout(c.Request.Context(), actor, busID, layout)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bus_id":      busID,
		"total_seats": len(seats),
		"seats":       seats,
	})
}

type generateTripsRequest struct {
	Days int `json:"days"`
}

// GenerateTrips handles POST /api/v1/operator/schedules/:schedule_id/trips
// An empty body generates the configured horizon.
func (h *OperatorHandler) GenerateTrips(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "schedule_id")
	if !ok {
		return
	}

	var req generateTripsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	created, err := h.tripGeneratorService.GenerateTrips(c.Request.Context(), actor, scheduleID, req.Days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schedule_id":   scheduleID,
		"trips_created": created,
	})
}
