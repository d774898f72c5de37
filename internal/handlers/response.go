package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/middleware"
	"github.com/happybusride/booking-backend/internal/services"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindValidation:    http.StatusBadRequest,
	services.KindForbidden:     http.StatusForbidden,
	services.KindNotFound:      http.StatusNotFound,
	services.KindConflict:      http.StatusConflict,
	services.KindPaymentFailed: http.StatusPaymentRequired,
	services.KindInternal:      http.StatusInternalServerError,
}

// respondError renders a service error as {"error": code, "message": text, "seat_ids": [...]}
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var be *services.BookingError
	if !errors.As(err, &be) {
		be = &services.BookingError{Kind: services.KindInternal, Code: services.CodeInternal, Message: "internal error", Err: err}
	}

	status, ok := statusByKind[be.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	entry := logger.WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"code":   be.Code,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
		_ = c.Error(err)
		// internal details stay in the log
		c.JSON(status, gin.H{"error": be.Code, "message": "internal error"})
		return
	}
	entry.Debug(be.Message)

	body := gin.H{"error": be.Code, "message": be.Message}
	if len(be.SeatIDs) > 0 {
		body["seat_ids"] = be.SeatIDs
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": services.CodeInvalidRequest, "message": message})
}

// pathUUID parses a uuid path parameter, writing a 400 when it is malformed
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// actorFrom builds the service actor from the authenticated user
func actorFrom(c *gin.Context) (services.Actor, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "user not authenticated"})
		return services.Actor{}, false
	}
	return services.Actor{UserID: userCtx.UserID, Roles: userCtx.Roles}, true
}
