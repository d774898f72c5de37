package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
)

// DriverHandler handles the driver app's trip endpoints
type DriverHandler struct {
	activeTripService *services.ActiveTripService
	logger            *logrus.Logger
}

// NewDriverHandler creates a new DriverHandler
func NewDriverHandler(activeTripService *services.ActiveTripService, logger *logrus.Logger) *DriverHandler {
	return &DriverHandler{
		activeTripService: activeTripService,
		logger:            logger,
	}
}

// UpdateTripStatus handles PUT /api/v1/driver/trips/:trip_id/status
func (h *DriverHandler) UpdateTripStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tripID, ok := pathUUID(c, "trip_id")
	if !ok {
		return
	}

	var req models.UpdateTripStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	trip, err := h.activeTripService.UpdateTripStatus(c.Request.Context(), actor, tripID, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// UpdateTripLocation handles PUT /api/v1/driver/trips/:trip_id/location
func (h *DriverHandler) UpdateTripLocation(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tripID, ok := pathUUID(c, "trip_id")
	if !ok {
		return
	}

	var req models.UpdateTripLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.activeTripService.UpdateTripLocation(c.Request.Context(), actor, tripID, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location updated"})
}

// VerifyTicket handles POST /api/v1/driver/trips/:trip_id/scan
func (h *DriverHandler) VerifyTicket(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tripID, ok := pathUUID(c, "trip_id")
	if !ok {
		return
	}

	var req models.VerifyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.activeTripService.VerifyTicket(c.Request.Context(), actor, tripID, req.PNR)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
