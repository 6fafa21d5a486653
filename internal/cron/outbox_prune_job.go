package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultOutboxMaxAttempts   = 10
	// Dead letters outlive relayed rows so operators can still inspect them.
	deadLetterRetentionFactor = 4
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxPruneParams configure the outbox prune job.
type OutboxPruneParams struct {
	Logger        *logger.Logger
	Events        outboxPruner
	DeadLetters   deadLetterPruner
	RetentionDays int
	MaxAttempts   int
	Now           func() time.Time
}

// NewOutboxPruneJob drops relayed or exhausted outbox rows older than the
// retention window, and dead letters older than a multiple of it.
func NewOutboxPruneJob(params OutboxPruneParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Events == nil {
		return nil, errors.New("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultOutboxMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &outboxPruneJob{
		logg:        params.Logger,
		events:      params.Events,
		deadLetters: params.DeadLetters,
		retention:   time.Duration(days) * 24 * time.Hour,
		maxAttempts: attempts,
		now:         now,
	}, nil
}

type outboxPruneJob struct {
	logg        *logger.Logger
	events      outboxPruner
	deadLetters deadLetterPruner
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

func (j *outboxPruneJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	events, err := j.events.DeletePublishedBefore(ctx, cutoff, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("prune outbox events: %w", err)
	}

	var parked int64
	if j.deadLetters != nil {
		parked, err = j.deadLetters.DeleteFailedBefore(ctx, now.Add(-deadLetterRetentionFactor*j.retention))
		if err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":              cutoff,
		"events_deleted":      events,
		"dead_letters_pruned": parked,
	}), "outbox pruned")
	return nil
}
