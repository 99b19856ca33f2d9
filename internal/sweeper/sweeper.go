package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediconnect/appointment-management/internal/core/events"
	"github.com/mediconnect/appointment-management/internal/observability/metrics"
	"github.com/robfig/cron/v3"
)

// RepositoryAPI marks overdue pending reservations as expired and returns
// their ids.
type RepositoryAPI interface {
	ExpirePending(olderThan time.Time) ([]int64, error)
}

// Sweeper reclaims reservations whose payment window lapsed without a
// gateway verdict. Expired rows stay in the table but stop blocking the
// slot.
type Sweeper struct {
	repo          RepositoryAPI
	eventBus      *events.EventBus
	paymentWindow time.Duration
	sweepInterval time.Duration
	metrics       *metrics.BookingMetrics
	logger        *slog.Logger
	cron          *cron.Cron
}

func New(repo RepositoryAPI, eventBus *events.EventBus, paymentWindow, sweepInterval time.Duration, m *metrics.BookingMetrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:          repo,
		eventBus:      eventBus,
		paymentWindow: paymentWindow,
		sweepInterval: sweepInterval,
		metrics:       m,
		logger:        logger,
	}
}

// Start schedules the sweep on its own cron runner. Call Stop to drain it.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.sweepInterval)
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.Sweep(); err != nil {
			s.logger.Error("sweep run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("reservation sweeper started",
		"sweep_interval", s.sweepInterval,
		"payment_window", s.paymentWindow)
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("reservation sweeper stopped")
}

// Sweep expires every pending reservation older than the payment window and
// returns the ids it reclaimed.
func (s *Sweeper) Sweep() ([]int64, error) {
	cutoff := time.Now().Add(-s.paymentWindow)
	ids, err := s.repo.ExpirePending(cutoff)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	s.logger.Info("expired overdue reservations", "count", len(ids), "appointment_ids", ids)
	s.metrics.ObserveExpired(len(ids))

	event := events.NewReservationExpiredEvent(ids)
	s.eventBus.Publish(context.Background(), event)
	return ids, nil
}
