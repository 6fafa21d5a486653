package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

// SequenceScope is the numbering scope shared by every invoice.
const SequenceScope = "invoice"

// Sequence hands out monotonically increasing values per scope. Each call
// consumes exactly one value; values are never reused.
type Sequence interface {
	Next(ctx context.Context, tx *gorm.DB, scope string) (int64, error)
}

// DBSequence increments a row of invoice_sequences inside the caller's
// transaction. The row lock held until commit serializes concurrent callers.
type DBSequence struct {
	now func() time.Time
}

func NewDBSequence() *DBSequence {
	return &DBSequence{now: time.Now}
}

func (s *DBSequence) Next(ctx context.Context, tx *gorm.DB, scope string) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("transaction required")
	}
	db := tx.WithContext(ctx)
	for attempt := 0; attempt < 2; attempt++ {
		var value int64
		res := db.Raw(
			"UPDATE invoice_sequences SET value = value + 1, updated_at = ? WHERE scope = ? RETURNING value",
			s.now().UTC(), scope,
		).Scan(&value)
		if res.Error != nil {
			return 0, pkgerrors.FromStore(res.Error, "increment invoice sequence")
		}
		if res.RowsAffected == 1 {
			return value, nil
		}
		seed := models.InvoiceSequence{Scope: scope, Value: 0}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return 0, pkgerrors.FromStore(err, "seed invoice sequence")
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeInternal, "invoice sequence unavailable")
}

type counterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	CounterKey(name string) string
}

// RedisSequence increments a Redis counter. The value is consumed even when
// the surrounding transaction rolls back, so numbers may skip.
type RedisSequence struct {
	store counterStore
}

func NewRedisSequence(store counterStore) *RedisSequence {
	return &RedisSequence{store: store}
}

func (s *RedisSequence) Next(ctx context.Context, _ *gorm.DB, scope string) (int64, error) {
	value, err := s.store.Incr(ctx, s.store.CounterKey(scope))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment invoice counter")
	}
	return value, nil
}

// NewSequence picks the backend named in cfg.
func NewSequence(cfg config.InvoiceConfig, store counterStore) (Sequence, error) {
	switch strings.ToLower(cfg.SequenceBackend) {
	case "", config.SequenceBackendDB:
		return NewDBSequence(), nil
	case config.SequenceBackendRedis:
		if store == nil {
			return nil, fmt.Errorf("redis client required for redis invoice sequence")
		}
		return NewRedisSequence(store), nil
	default:
		return nil, fmt.Errorf("unknown invoice sequence backend %q", cfg.SequenceBackend)
	}
}

// FormatNumber zero-pads value to width digits.
func FormatNumber(value int64, width int) string {
	if width <= 0 {
		width = 5
	}
	return fmt.Sprintf("%0*d", width, value)
}
