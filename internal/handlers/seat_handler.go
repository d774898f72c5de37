package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
)

// SeatHandler serves seat maps and seat holds
type SeatHandler struct {
	inventoryService   *services.SeatInventoryService
	reservationService *services.ReservationService
	logger             *logrus.Logger
}

// NewSeatHandler creates a new SeatHandler
func NewSeatHandler(
	inventoryService *services.SeatInventoryService,
	reservationService *services.ReservationService,
	logger *logrus.Logger,
) *SeatHandler {
	return &SeatHandler{
		inventoryService:   inventoryService,
		reservationService: reservationService,
		logger:             logger,
	}
}

// ============================================================================
// SEAT MAPS
// ============================================================================

// GetScheduleSeats handles GET /api/v1/schedules/:schedule_id/seats?date=YYYY-MM-DD
// The trip for the date is created on first access.
func (h *SeatHandler) GetScheduleSeats(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	scheduleID, ok := pathUUID(c, "schedule_id")
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		badRequest(c, "date query parameter is required (YYYY-MM-DD)")
		return
	}

	seatMap, err := h.inventoryService.GetScheduleSeatView(c.Request.Context(), scheduleID, date, actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, seatMap)
}

// GetTripSeats handles GET /api/v1/trips/:trip_id/seats
func (h *SeatHandler) GetTripSeats(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tripID, ok := pathUUID(c, "trip_id")
	if !ok {
		return
	}

	seatMap, err := h.inventoryService.GetSeatView(c.Request.Context(), tripID, actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, seatMap)
}

// GetHeldSeats handles GET /api/v1/trips/:trip_id/seats/held
func (h *SeatHandler) GetHeldSeats(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tripID, ok := pathUUID(c, "trip_id")
	if !ok {
		return
	}

	held, err := h.inventoryService.GetHeldSeats(c.Request.Context(), tripID, actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, held)
}

// ============================================================================
// HOLDS
// ============================================================================

// LockSeats handles POST /api/v1/seats/lock
func (h *SeatHandler) LockSeats(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.SeatSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.reservationService.Lock(c.Request.Context(), actor.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// releaseSeatsRequest omits seat_ids to release every hold on the trip
type releaseSeatsRequest struct {
	TripID  uuid.UUID   `json:"trip_id" binding:"required"`
	SeatIDs []uuid.UUID `json:"seat_ids"`
}

// ReleaseSeats handles POST /api/v1/seats/release
func (h *SeatHandler) ReleaseSeats(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req releaseSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	released, err := h.reservationService.Release(c.Request.Context(), actor.UserID, req.TripID, req.SeatIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}
