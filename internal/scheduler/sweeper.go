package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/metrics"
	"github.com/ErlanBelekov/otpauth/internal/repository"
	"github.com/robfig/cron/v3"
)

// Sweeper deletes challenges that expired more than grace ago. Verification
// already ignores expired challenges, so sweeping only keeps the table small.
type Sweeper struct {
	repo      repository.ChallengeRepository
	logger    *slog.Logger
	schedule  cron.Schedule
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(repo repository.ChallengeRepository, logger *slog.Logger, cronExpr string, grace time.Duration, batchSize int) (*Sweeper, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", cronExpr, err)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{
		repo:      repo,
		logger:    logger.With("component", "sweeper"),
		schedule:  sched,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// Start runs a sweep at every scheduled time until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper started", "grace", s.grace, "batch_size", s.batchSize)

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("sweeper shut down")
			return
		case <-timer.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep", "error", err)
			}
		}
	}
}

// Sweep deletes expired challenges in batches until none are left and
// returns how many it removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.SweeperCycleDuration.Observe(time.Since(start).Seconds()) }()

	cutoff := s.now().Add(-s.grace)
	total := 0
	for {
		n, err := s.repo.DeleteExpired(ctx, cutoff, s.batchSize)
		total += n
		metrics.SweeperDeletedTotal.Add(float64(n))
		if err != nil {
			return total, fmt.Errorf("delete expired challenges: %w", err)
		}
		if n < s.batchSize || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		s.logger.Info("swept expired challenges", "count", total)
	}
	return total, nil
}
