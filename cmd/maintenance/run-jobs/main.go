package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
	"github.com/happybusride/booking-backend/internal/services"
	"github.com/happybusride/booking-backend/pkg/payment"
)

// run-jobs runs the background jobs once, for deployments with CRON_ENABLED=false
func main() {
	var job string
	flag.StringVar(&job, "job", "all", "job to run: expire-pending, extend-horizon or all")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver == "memory" {
		logger.Fatal("run-jobs needs a database; DATABASE_DRIVER=memory has nothing to maintain")
	}

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	store := database.NewPostgresStore(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if job == "all" || job == "expire-pending" {
		var gateway payment.Gateway = payment.NewMockGateway(logger)
		if cfg.Payment.Provider == "stripe" {
			gateway = payment.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.Currency, logger)
		}
		orchestrator := services.NewBookingOrchestratorService(store, gateway, services.NewFareEngine(cfg.Fare), cfg.Booking, time.Now, logger)
		expired, err := orchestrator.ExpireStalePending(ctx)
		if err != nil {
			logger.Fatalf("Failed to expire pending bookings: %v", err)
		}
		logger.WithField("expired", expired).Info("Expired stale pending bookings")
	}

	if job == "all" || job == "extend-horizon" {
		generator := services.NewTripGeneratorService(store, cfg.Booking, time.Now, logger)
		created, err := generator.ExtendHorizon(ctx)
		if err != nil {
			logger.Fatalf("Failed to extend trip horizon: %v", err)
		}
		logger.WithField("trips_created", created).Info("Extended trip horizon")
	}
}
