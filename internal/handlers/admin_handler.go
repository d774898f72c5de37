package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/models"
	"github.com/happybusride/booking-backend/internal/services"
)

// AdminHandler handles refund review
type AdminHandler struct {
	cancellationService *services.CancellationService
	logger              *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(cancellationService *services.CancellationService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		cancellationService: cancellationService,
		logger:              logger,
	}
}

// ApproveRefund handles PUT /api/v1/admin/refunds/:refund_id/approve
// Credits the passenger's wallet and marks the booking REFUNDED.
func (h *AdminHandler) ApproveRefund(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	refundID, ok := pathUUID(c, "refund_id")
	if !ok {
		return
	}

	refund, err := h.cancellationService.Settle(c.Request.Context(), actor.UserID, refundID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

// RejectRefund handles PUT /api/v1/admin/refunds/:refund_id/reject
func (h *AdminHandler) RejectRefund(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	refundID, ok := pathUUID(c, "refund_id")
	if !ok {
		return
	}

	var req models.RejectRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	refund, err := h.cancellationService.Reject(c.Request.Context(), actor.UserID, refundID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}
