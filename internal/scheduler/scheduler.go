// Package scheduler runs the ingest job on a cron schedule when the service runs outside Lambda.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
)

// Runner runs one ingest invocation. Implemented by service.IngestService.
type Runner interface {
	Run(ctx context.Context, cities []string) models.Response
}

// Scheduler triggers Runner for a fixed city list on a cron expression.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	cron      string
	cities    []string
	timeout   time.Duration
	logger    *zap.Logger
}

// New returns a Scheduler. timeout bounds each run; <= 0 disables it.
func New(runner Runner, cron string, cities []string, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		cron:      cron,
		cities:    cities,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start registers the job and starts the scheduler in the background. Overlapping runs are
// skipped. Start is a no-op when no cron expression or cities are configured.
func (s *Scheduler) Start() error {
	if s.cron == "" || len(s.cities) == 0 {
		s.logger.Info("scheduler disabled: no schedule or cities configured")
		return nil
	}
	if s.runner == nil {
		return errors.New("scheduler: runner is required")
	}
	if _, err := s.scheduler.Cron(s.cron).SingletonMode().Do(s.RunOnce); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.String("cron", s.cron), zap.Strings("cities", s.cities))
	return nil
}

// RunOnce runs the job immediately with its own invocation id.
func (s *Scheduler) RunOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	logger := s.logger.With(zap.String("invocation_id", uuid.NewString()))
	ctx = observability.ContextWithLogger(ctx, logger)

	logger.Info("scheduled ingest started")
	resp := s.runner.Run(ctx, s.cities)
	logger.Info("scheduled ingest completed", zap.Int("status_code", resp.StatusCode))
}

// Stop stops the scheduler. Runs already in progress are not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
