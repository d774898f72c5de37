package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron             *cron.Cron
	orchestrator     *BookingOrchestratorService
	tripGeneratorSvc *TripGeneratorService
	logger           *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(orchestrator *BookingOrchestratorService, tripGeneratorSvc *TripGeneratorService, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:             cron.New(cron.WithSeconds()),
		orchestrator:     orchestrator,
		tripGeneratorSvc: tripGeneratorSvc,
		logger:           logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	// "0 * * * * *" = at second 0 of every minute
	if _, err := s.cron.AddFunc("0 * * * * *", s.expirePendingBookingsJob); err != nil {
		return fmt.Errorf("failed to schedule pending booking sweeper: %w", err)
	}

	// "0 0 2 * * *" = at 2:00 AM every day
	if _, err := s.cron.AddFunc("0 0 2 * * *", s.extendTripHorizonJob); err != nil {
		return fmt.Errorf("failed to schedule trip horizon job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Cron service started: pending sweeper (every minute), trip horizon (daily 02:00)")
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) expirePendingBookingsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.orchestrator.ExpireStalePending(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to expire stale pending bookings")
		return
	}
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("[CRON] Expired stale pending bookings")
	}
}

func (s *CronService) extendTripHorizonJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	created, err := s.tripGeneratorSvc.ExtendHorizon(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to extend trip horizon")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"created":  created,
		"duration": time.Since(start).String(),
	}).Info("[CRON] Trip horizon extended")
}

// RunNow runs both jobs once, used at startup so a fresh deployment has trips
func (s *CronService) RunNow() {
	s.expirePendingBookingsJob()
	s.extendTripHorizonJob()
}
