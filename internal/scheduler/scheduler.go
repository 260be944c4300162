// Package scheduler runs the periodic maintenance jobs of the management
// plane on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apimplane/apim/internal/metrics"
)

// SubscriptionExpirer closes subscriptions whose end date has passed.
type SubscriptionExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// Scheduler wraps a cron runner. Jobs never overlap with themselves.
type Scheduler struct {
	cron    *cron.Cron
	metrics metrics.Recorder
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// New creates a Scheduler. timeout bounds every job run.
func New(recorder metrics.Recorder, logger *slog.Logger, timeout time.Duration) *Scheduler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		metrics: recorder,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// ScheduleSubscriptionExpiry registers the expiry job. An empty spec
// leaves it disabled.
func (s *Scheduler) ScheduleSubscriptionExpiry(spec string, expirer SubscriptionExpirer) error {
	if spec == "" {
		s.logger.Info("subscription expiry disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.ExpireSubscriptions(expirer) }); err != nil {
		return fmt.Errorf("schedule subscription expiry %q: %w", spec, err)
	}
	s.logger.Info("subscription expiry scheduled", "schedule", spec)
	return nil
}

// ExpireSubscriptions runs the expiry job once.
func (s *Scheduler) ExpireSubscriptions(expirer SubscriptionExpirer) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := s.now()
	closed, err := expirer.ExpireDue(ctx, start.UTC())
	if err != nil {
		s.logger.Error("subscription expiry failed", "error", err)
		return
	}
	s.metrics.IncSubscriptionsExpired(closed)
	if closed > 0 {
		s.logger.Info("subscriptions expired", "closed", closed, "duration", time.Since(start))
	}
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Run starts the jobs and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.Entries())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
