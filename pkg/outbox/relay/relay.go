// Package relay moves committed outbox rows to the message broker. Each batch
// is claimed, delivered and stamped inside one transaction; rows that cannot
// be delivered are parked in outbox_dlq.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/registry"
)

const (
	sendTimeout   = 15 * time.Second
	maxIdleWait   = 10 * time.Second
	jitterCeiling = 250 * time.Millisecond
)

// Sink delivers one message to a topic.
type Sink interface {
	Send(ctx context.Context, topic string, data []byte, attrs map[string]string) error
}

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rowStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	Published(tx *gorm.DB, id uuid.UUID, at time.Time) error
	Failed(tx *gorm.DB, id uuid.UUID, cause error) error
	Retired(tx *gorm.DB, id uuid.UUID, cause error, at time.Time) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type checker interface {
	Check(row models.OutboxEvent) (registry.Message, error)
}

type Params struct {
	Logger          *logger.Logger
	DB              transactor
	Rows            rowStore
	DeadLetters     deadLetters
	Registry        checker
	Sink            Sink
	Metrics         *metrics.OutboxMetrics
	DeadLetterTopic string
	BatchSize       int
	MaxAttempts     int
	PollInterval    time.Duration
	Now             func() time.Time
}

type Relay struct {
	logg        *logger.Logger
	db          transactor
	rows        rowStore
	dead        deadLetters
	registry    checker
	sink        Sink
	metrics     *metrics.OutboxMetrics
	dlqTopic    string
	batchSize   int
	maxAttempts int
	pace        pacer
	now         func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Rows == nil || p.DeadLetters == nil:
		return nil, errors.New("outbox repositories are required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sink == nil:
		return nil, errors.New("sink is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		rows:        p.Rows,
		dead:        p.DeadLetters,
		registry:    p.Registry,
		sink:        p.Sink,
		metrics:     p.Metrics,
		dlqTopic:    p.DeadLetterTopic,
		batchSize:   p.BatchSize,
		maxAttempts: p.MaxAttempts,
		pace:        pacer{base: p.PollInterval, ceiling: maxIdleWait},
		now:         p.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = 50
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 10
	}
	if r.pace.base <= 0 {
		r.pace.base = 500 * time.Millisecond
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Run relays batches until ctx is done. A full batch is followed immediately
// by the next one; an empty batch waits one poll interval; a failed batch
// backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for {
		n, err := r.Drain(ctx)
		if err != nil && ctx.Err() == nil {
			r.logg.Error(ctx, "outbox batch failed", err)
		}
		wait := r.pace.next(n, err)
		if wait > 0 {
			wait += rand.N(jitterCeiling)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Drain handles one claimed batch and reports how many rows it touched.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	var handled int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		for _, row := range rows {
			if err := r.settle(ctx, tx, row, r.deliver(ctx, row)); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

type verdict int

const (
	delivered verdict = iota
	retry
	park
)

type outcome struct {
	verdict verdict
	topic   string
	reason  enums.OutboxDLQErrorReason
	err     error
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) outcome {
	msg, err := r.registry.Check(row)
	if err != nil {
		return outcome{verdict: park, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	err = r.sink.Send(sendCtx, msg.Topic, row.Payload, attributes(row, msg.Envelope.EventID))
	switch {
	case err == nil:
		return outcome{verdict: delivered, topic: msg.Topic}
	case row.AttemptCount+1 >= r.maxAttempts:
		return outcome{
			verdict: park,
			topic:   msg.Topic,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err),
		}
	default:
		return outcome{verdict: retry, topic: msg.Topic, err: err}
	}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, out outcome) error {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID,
		"attempt_count": row.AttemptCount,
	}
	if out.topic != "" {
		fields["topic"] = out.topic
	}
	logCtx := r.logg.WithFields(ctx, fields)
	eventType := string(row.EventType)

	switch out.verdict {
	case delivered:
		if err := r.rows.Published(tx, row.ID, r.now()); err != nil {
			return fmt.Errorf("stamp published %s: %w", row.ID, err)
		}
		r.metrics.Observe(eventType, metrics.PublishPublished)
		r.logg.Info(logCtx, "outbox event published")
	case retry:
		if err := r.rows.Failed(tx, row.ID, out.err); err != nil {
			return fmt.Errorf("record failure %s: %w", row.ID, err)
		}
		r.metrics.Observe(eventType, metrics.PublishFailed)
		r.logg.Warn(r.logg.WithField(logCtx, "error", out.err.Error()), "outbox publish failed, will retry")
	case park:
		message := out.err.Error()
		if err := r.dead.InsertTx(tx, models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   out.reason,
			ErrorMessage:  &message,
			AttemptCount:  row.AttemptCount,
			FailedAt:      r.now().UTC(),
		}); err != nil {
			return fmt.Errorf("park %s: %w", row.ID, err)
		}
		if err := r.rows.Retired(tx, row.ID, out.err, r.now()); err != nil {
			return fmt.Errorf("retire %s: %w", row.ID, err)
		}
		r.metrics.Observe(eventType, metrics.PublishDeadLettered)
		logCtx = r.logg.WithFields(logCtx, map[string]any{"error": message, "error_reason": out.reason})
		r.logg.Warn(logCtx, "outbox event dead-lettered")
		r.forward(logCtx, row, out.reason)
	}
	return nil
}

// forward copies a parked row to the dead-letter topic. The outbox_dlq row
// stays authoritative, so failures are only logged.
func (r *Relay) forward(ctx context.Context, row models.OutboxEvent, reason enums.OutboxDLQErrorReason) {
	if r.dlqTopic == "" {
		return
	}
	attrs := attributes(row, row.ID.String())
	attrs["dlq_reason"] = string(reason)
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := r.sink.Send(sendCtx, r.dlqTopic, row.Payload, attrs); err != nil {
		r.logg.Error(ctx, "dead-letter forward failed", err)
	}
}

func attributes(row models.OutboxEvent, eventID string) map[string]string {
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID,
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// pacer picks the wait before the next batch.
type pacer struct {
	base, ceiling time.Duration
	backoff       time.Duration
}

func (p *pacer) next(handled int, err error) time.Duration {
	if err != nil {
		if p.backoff == 0 {
			p.backoff = p.base
		}
		p.backoff = min(p.backoff*2, p.ceiling)
		return p.backoff
	}
	p.backoff = 0
	if handled > 0 {
		return 0
	}
	return p.base
}
