package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
	"github.com/happybusride/booking-backend/internal/utils"
)

// BookingHandler handles checkout, booking reads, cancellation and the wallet
type BookingHandler struct {
	orchestratorService *services.BookingOrchestratorService
	cancellationService *services.CancellationService
	logger              *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	orchestratorService *services.BookingOrchestratorService,
	cancellationService *services.CancellationService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		orchestratorService: orchestratorService,
		cancellationService: cancellationService,
		logger:              logger,
	}
}

// ============================================================================
// CHECKOUT
// ============================================================================

// InitiatePayment handles POST /api/v1/payments/initiate
// Turns the caller's held seats into a PENDING booking with an open payment.
func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	device := utils.ParseDeviceInfo(c.Request.UserAgent())
	response, err := h.orchestratorService.Initiate(c.Request.Context(), actor.UserID, &req, device)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

// ConfirmPayment handles POST /api/v1/payments/confirm
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	response, err := h.orchestratorService.Confirm(c.Request.Context(), actor.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ============================================================================
// BOOKINGS
// ============================================================================

// GetBooking handles GET /api/v1/bookings/:booking_id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "booking_id")
	if !ok {
		return
	}

	booking, err := h.orchestratorService.GetBooking(c.Request.Context(), bookingID, actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking handles POST /api/v1/bookings/:booking_id/cancel
// The body is optional and only carries a reason.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "booking_id")
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	response, err := h.cancellationService.Cancel(c.Request.Context(), actor.UserID, bookingID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetWallet handles GET /api/v1/wallet
func (h *BookingHandler) GetWallet(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	wallet, err := h.cancellationService.GetWallet(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}
