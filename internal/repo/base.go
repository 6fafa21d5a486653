package repo

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"gorm.io/gorm"
)

// DefaultTimeout bounds a single store call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Base provides a shared foundation for domain repositories.
type Base struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB, timeout time.Duration) Base {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Base{db: db, timeout: timeout}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx returns a copy of the base bound to tx, keeping the timeout.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx, timeout: b.timeout}
}

// Bounded runs fn with a context capped by the store timeout. Record-not-found
// is returned as is; timeouts surface as retryable dependency failures.
func (b Base) Bounded(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := fn(b.db.WithContext(ctx))
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return pkgerrors.FromStore(err, op)
}
