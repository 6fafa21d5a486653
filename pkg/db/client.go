// Package db owns the GORM connection shared by every repository.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

var ErrNoDSN = errors.New("database DSN is required")

type Client struct {
	conn         *gorm.DB
	queryTimeout time.Duration
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the pool for cfg.Driver and verifies it answers a ping.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}
	conn, err := gorm.Open(dialect(cfg), &gorm.Config{
		Logger:                 newGormLog(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}

	// sqlite serializes writers on one connection.
	maxOpen := cfg.MaxOpenConns
	if cfg.IsSQLite() {
		maxOpen = 1
	}
	pool.SetMaxOpenConns(maxOpen)
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	c := NewFromGorm(conn, cfg.QueryTimeout)
	pingCtx, cancel := c.Bounded(ctx)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", cfg.Driver), "database connection established")
	}
	return c, nil
}

func NewFromGorm(conn *gorm.DB, queryTimeout time.Duration) *Client {
	return &Client{conn: conn, queryTimeout: queryTimeout}
}

func dialect(cfg config.DBConfig) gorm.Dialector {
	if cfg.IsSQLite() {
		return sqlite.Open(cfg.DSN)
	}
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
}

func (c *Client) DB() *gorm.DB { return c.conn }

// Bounded applies the per-query timeout when one is configured.
func (c *Client) Bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout > 0 {
		return context.WithTimeout(ctx, c.queryTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in one transaction under the query timeout. Errors and
// panics roll back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := c.Bounded(ctx)
	defer cancel()
	return c.conn.WithContext(ctx).Transaction(fn)
}
