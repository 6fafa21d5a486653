package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

var errNoTx = errors.New("outbox: transaction required")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// Pending lists unpublished rows, oldest first.
func (r *Repository) Pending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := pendingQuery(r.db.WithContext(ctx), 0).Limit(limit).Find(&rows).Error
	return rows, err
}

// ForAggregate lists every row recorded for one aggregate.
func (r *Repository) ForAggregate(ctx context.Context, aggregateType enums.OutboxAggregateType, aggregateID string) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where(&models.OutboxEvent{AggregateType: aggregateType, AggregateID: aggregateID}).
		Order("created_at").
		Find(&rows).Error
	return rows, err
}

// Claim locks up to limit publishable rows for the life of tx. On Postgres
// SKIP LOCKED lets parallel relays split the backlog.
func (r *Repository) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	query := pendingQuery(tx, maxAttempts)
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := query.Limit(limit).Find(&rows).Error
	return rows, err
}

// Published stamps a claimed row as delivered.
func (r *Repository) Published(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return stamp(tx, id, map[string]any{"published_at": at.UTC()})
}

// Failed counts one more failed attempt on a claimed row.
func (r *Repository) Failed(tx *gorm.DB, id uuid.UUID, cause error) error {
	return stamp(tx, id, map[string]any{
		"last_error":    cause.Error(),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Retired closes a row that was moved to the dead-letter table.
func (r *Repository) Retired(tx *gorm.DB, id uuid.UUID, cause error, at time.Time) error {
	return stamp(tx, id, map[string]any{
		"published_at":  at.UTC(),
		"last_error":    cause.Error(),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// DeletePublishedBefore prunes rows created before cutoff that were either
// published or exhausted maxAttempts.
func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("published_at IS NOT NULL OR attempt_count >= ?", maxAttempts).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func pendingQuery(db *gorm.DB, maxAttempts int) *gorm.DB {
	q := db.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	return q.Order("created_at").Order("id")
}

func stamp(tx *gorm.DB, id uuid.UUID, columns map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(columns).Error
}
