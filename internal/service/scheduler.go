package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"github.com/kursadbilgin/report-dispatch/internal/quota"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DispatchRunner is the slice of the worker the scheduler drives.
type DispatchRunner interface {
	RunOnce(ctx context.Context, batchSize int) (RunResult, error)
	SweepCompletions(ctx context.Context) error
}

// cronParser accepts the standard 5-field cron syntax plus descriptors like
// "@every 30s".
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler owns the periodic and manual triggers of the dispatch worker.
// A single-flight guard ensures at most one run executes process-wide; a
// trigger firing during a run is skipped, not queued. The guard is released
// on every path so a failing run can never wedge the scheduler.
type Scheduler struct {
	worker    DispatchRunner
	quota     quota.DailyQuota
	logger    *zap.Logger
	cronExpr  string
	location  *time.Location
	batchSize int

	runMu sync.Mutex
}

func NewScheduler(
	worker DispatchRunner,
	dailyQuota quota.DailyQuota,
	cronExpr, timezone string,
	batchSize int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if worker == nil {
		return nil, fmt.Errorf("dispatch worker is required")
	}
	if dailyQuota == nil {
		return nil, fmt.Errorf("daily quota is required")
	}
	if strings.TrimSpace(cronExpr) == "" {
		return nil, fmt.Errorf("cron expression is required")
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	location := time.UTC
	if strings.TrimSpace(timezone) != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		location = loc
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		worker:    worker,
		quota:     dailyQuota,
		logger:    logger,
		cronExpr:  cronExpr,
		location:  location,
		batchSize: batchSize,
	}, nil
}

// Start runs the cron trigger until context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c := cron.New(cron.WithLocation(s.location), cron.WithParser(cronParser))
	_, err := c.AddFunc(s.cronExpr, func() {
		result, err := s.RunScheduled(ctx)
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			s.logger.Info("dispatch tick skipped, run already in progress")
		case err != nil:
			s.logger.Error("scheduled dispatch run failed", zap.Error(err))
		default:
			s.logger.Info("scheduled dispatch run finished",
				zap.Int("processed", result.Processed),
				zap.Int("sent", result.Sent),
				zap.Int("failed", result.Failed),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register cron trigger: %w", err)
	}

	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

// RunScheduled loops bounded batches until the daily ceiling or an empty
// queue stops it, then sweeps job completions.
func (s *Scheduler) RunScheduled(ctx context.Context) (RunResult, error) {
	if !s.runMu.TryLock() {
		return RunResult{}, domain.ErrAlreadyRunning
	}
	defer s.runMu.Unlock()

	var total RunResult
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		granted, err := s.quota.Reserve(ctx, s.batchSize)
		if err != nil {
			return total, err
		}
		if granted == 0 {
			s.logger.Info("daily dispatch ceiling reached")
			break
		}

		result, err := s.worker.RunOnce(ctx, granted)
		total.Processed += result.Processed
		total.Sent += result.Sent
		total.Failed += result.Failed

		if unused := granted - result.Processed; unused > 0 {
			if relErr := s.quota.Release(ctx, unused); relErr != nil {
				s.logger.Warn("failed to release unused dispatch quota", zap.Error(relErr))
			}
		}
		if err != nil {
			return total, err
		}
		if result.Processed < granted {
			break
		}
	}

	if err := s.worker.SweepCompletions(ctx); err != nil {
		return total, err
	}

	return total, nil
}

// TriggerNow is the manual trigger: one bounded run under the same guard.
// Returns ErrAlreadyRunning when a run holds the guard.
func (s *Scheduler) TriggerNow(ctx context.Context, batchSize int) (RunResult, error) {
	if !s.runMu.TryLock() {
		return RunResult{}, domain.ErrAlreadyRunning
	}
	defer s.runMu.Unlock()

	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	granted, err := s.quota.Reserve(ctx, batchSize)
	if err != nil {
		return RunResult{}, err
	}
	if granted == 0 {
		s.logger.Info("daily dispatch ceiling reached")
		return RunResult{}, nil
	}

	result, runErr := s.worker.RunOnce(ctx, granted)

	if unused := granted - result.Processed; unused > 0 {
		if relErr := s.quota.Release(ctx, unused); relErr != nil {
			s.logger.Warn("failed to release unused dispatch quota", zap.Error(relErr))
		}
	}
	if runErr != nil {
		return result, runErr
	}

	if err := s.worker.SweepCompletions(ctx); err != nil {
		return result, err
	}

	return result, nil
}
