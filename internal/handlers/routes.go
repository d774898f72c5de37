package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/middleware"
	"github.com/happybusride/booking-backend/internal/services"
	"github.com/happybusride/booking-backend/pkg/jwt"
)

// Handlers groups everything mounted under /api/v1
type Handlers struct {
	Seat     *SeatHandler
	Booking  *BookingHandler
	Operator *OperatorHandler
	Driver   *DriverHandler
	Admin    *AdminHandler
}

// RegisterRoutes mounts the authenticated API on v1
func RegisterRoutes(v1 *gin.RouterGroup, h Handlers, jwtService *jwt.Service, limiter *middleware.RateLimiter, logger *logrus.Logger) {
	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(jwtService, logger))
	{
		authed.GET("/schedules/:schedule_id/seats", h.Seat.GetScheduleSeats)
		authed.GET("/trips/:trip_id/seats", h.Seat.GetTripSeats)
		authed.GET("/trips/:trip_id/seats/held", h.Seat.GetHeldSeats)
		authed.POST("/seats/lock", limiter.Middleware(), h.Seat.LockSeats)
		authed.POST("/seats/release", h.Seat.ReleaseSeats)
	}

	passenger := authed.Group("")
	passenger.Use(middleware.RequireRole(services.RolePassenger))
	{
		passenger.POST("/payments/initiate", h.Booking.InitiatePayment)
		passenger.POST("/payments/confirm", h.Booking.ConfirmPayment)
		passenger.GET("/bookings/:booking_id", h.Booking.GetBooking)
		passenger.POST("/bookings/:booking_id/cancel", h.Booking.CancelBooking)
		passenger.GET("/wallet", h.Booking.GetWallet)
	}

	operator := authed.Group("/operator")
	operator.Use(middleware.RequireRole(services.RoleOperator, services.RoleAdmin))
	{
		operator.PUT("/buses/:bus_id/layout", h.Operator.ApplyLayout)
		operator.POST("/schedules/:schedule_id/trips", h.Operator.GenerateTrips)
	}

	driver := authed.Group("/driver/trips")
	{
		driver.PUT("/:trip_id/status", middleware.RequireRole(services.RoleDriver, services.RoleAdmin), h.Driver.UpdateTripStatus)
		driver.PUT("/:trip_id/location", middleware.RequireRole(services.RoleDriver), h.Driver.UpdateTripLocation)
		driver.POST("/:trip_id/scan", middleware.RequireRole(services.RoleDriver), h.Driver.VerifyTicket)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole(services.RoleAdmin))
	{
		admin.PUT("/refunds/:refund_id/approve", h.Admin.ApproveRefund)
		admin.PUT("/refunds/:refund_id/reject", h.Admin.RejectRefund)
	}
}
