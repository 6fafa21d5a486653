// Package cron runs periodic maintenance for the cron-worker. Each job holds
// a Redis claim for its whole period, so across every cron-worker instance a
// job runs at most once per period.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/farmachelo/pharmacy-backend/internal/locks"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

const defaultTick = 30 * time.Second

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

type runObserver interface {
	Executed(job string, took time.Duration, finished time.Time, err error)
	Skipped(job string)
}

type nopObserver struct{}

func (nopObserver) Executed(string, time.Duration, time.Time, error) {}
func (nopObserver) Skipped(string)                                   {}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger    *logger.Logger
	Schedule  *Schedule
	Claims    claimStore
	KeyPrefix string
	Metrics   runObserver
	Tick      time.Duration
	Now       func() time.Time
}

type claimedJob struct {
	job    Job
	period time.Duration
	claim  *locks.RedisLock
}

// Service checks every job on each tick and runs the ones whose claim it wins.
type Service struct {
	logg    *logger.Logger
	jobs    []claimedJob
	metrics runObserver
	tick    time.Duration
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Claims == nil {
		return nil, errors.New("claim store required")
	}
	if params.Schedule == nil || len(params.Schedule.entries) == 0 {
		return nil, errors.New("at least one scheduled job required")
	}
	prefix := params.KeyPrefix
	if prefix == "" {
		prefix = "fm:cron"
	}

	seen := make(map[string]struct{}, len(params.Schedule.entries))
	jobs := make([]claimedJob, 0, len(params.Schedule.entries))
	for _, entry := range params.Schedule.entries {
		name := entry.job.Name()
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("job %q scheduled twice", name)
		}
		seen[name] = struct{}{}
		claim, err := locks.NewRedisLock(params.Claims, prefix+":"+name, entry.period)
		if err != nil {
			return nil, fmt.Errorf("claim for %s: %w", name, err)
		}
		jobs = append(jobs, claimedJob{job: entry.job, period: entry.period, claim: claim})
	}

	observer := params.Metrics
	if observer == nil {
		observer = nopObserver{}
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:    params.Logger,
		jobs:    jobs,
		metrics: observer,
		tick:    tick,
		now:     now,
	}, nil
}

// Run ticks until ctx is canceled. Job failures are logged, never fatal.
func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runDue(ctx); err != nil {
			s.logg.Error(ctx, "cron tick finished with failures", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.tick):
		}
	}
}

// runDue tries every job once and combines their failures.
func (s *Service) runDue(ctx context.Context) error {
	var errs error
	for _, cj := range s.jobs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := s.runClaimed(ctx, cj); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", cj.job.Name(), err))
		}
	}
	return errs
}

func (s *Service) runClaimed(ctx context.Context, cj claimedJob) error {
	name := cj.job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	won, err := cj.claim.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !won {
		s.metrics.Skipped(name)
		s.logg.Debug(jobCtx, "job claimed elsewhere this period")
		return nil
	}

	runCtx, cancel := context.WithTimeout(jobCtx, cj.period)
	defer cancel()
	start := s.now()
	runErr := cj.job.Run(runCtx)
	finished := s.now()
	s.metrics.Executed(name, finished.Sub(start), finished, runErr)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", finished.Sub(start).Milliseconds())
	if runErr != nil {
		// Give the period back so the next tick can retry.
		if relErr := cj.claim.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Warn(jobCtx, "could not release failed job claim")
		}
		return runErr
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
