package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/database/memstore"
	"github.com/happybusride/booking-backend/internal/handlers"
	"github.com/happybusride/booking-backend/internal/middleware"
	"github.com/happybusride/booking-backend/internal/services"
	"github.com/happybusride/booking-backend/pkg/jwt"
	"github.com/happybusride/booking-backend/pkg/payment"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
	}).Info("Starting booking backend")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	gateway := newGateway(cfg.Payment, logger)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Services
	fare := services.NewFareEngine(cfg.Fare)
	inventoryService := services.NewSeatInventoryService(store, cfg.Booking, time.Now, logger)
	reservationService := services.NewReservationService(store, cfg.Booking, time.Now, logger)
	orchestratorService := services.NewBookingOrchestratorService(store, gateway, fare, cfg.Booking, time.Now, logger)
	cancellationService := services.NewCancellationService(store, fare, cfg.Booking, time.Now, logger)
	activeTripService := services.NewActiveTripService(store, time.Now, logger)
	layoutService := services.NewBusSeatLayoutService(store, logger)
	tripGeneratorService := services.NewTripGeneratorService(store, cfg.Booking, time.Now, logger)
	logger.Info("Services initialized")

	if mem, ok := store.(*memstore.Store); ok {
		seedDemoData(mem, jwtService, logger)
	}

	var cronService *services.CronService
	if cfg.Cron.Enabled {
		cronService = services.NewCronService(orchestratorService, tripGeneratorService, logger)
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		// catch up on anything missed while the process was down
		go cronService.RunNow()
	}

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: !containsWildcard(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck(store, version))

	handlers.RegisterRoutes(router.Group("/api/v1"), handlers.Handlers{
		Seat:     handlers.NewSeatHandler(inventoryService, reservationService, logger),
		Booking:  handlers.NewBookingHandler(orchestratorService, cancellationService, logger),
		Operator: handlers.NewOperatorHandler(layoutService, tripGeneratorService, logger),
		Driver:   handlers.NewDriverHandler(activeTripService, logger),
		Admin:    handlers.NewAdminHandler(cancellationService, logger),
	}, jwtService, middleware.NewRateLimiter(cfg.RateLimit, logger), logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Booking.GatewayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	if cronService != nil {
		cronService.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// openStore returns the in-memory store or a Postgres pool depending on DATABASE_DRIVER
func openStore(cfg *config.Config, logger *logrus.Logger) (database.Store, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return memstore.New(), nil
	}

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connection established")
	return database.NewPostgresStore(db, logger), nil
}

func newGateway(cfg config.PaymentConfig, logger *logrus.Logger) payment.Gateway {
	if cfg.Provider == "stripe" {
		logger.Info("Payment gateway: stripe")
		return payment.NewStripeGateway(cfg.StripeSecretKey, cfg.Currency, logger)
	}
	logger.Warn("Payment gateway: mock (payments always succeed)")
	return payment.NewMockGateway(logger)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
