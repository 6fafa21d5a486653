package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

const (
	flushInterval = 5 * time.Second
	readyTimeout  = 10 * time.Second
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Name() string
	Run(ctx context.Context) error
}

type flusher interface {
	Flush(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies map[string]pinger
	Consumers    []consumer
	Flusher      flusher
}

// Service supervises the subscription consumers. The first consumer to fail
// stops the rest; buffered analytics rows are flushed on a timer and once more
// on the way out.
type Service struct {
	logg      *logger.Logger
	deps      map[string]pinger
	consumers []consumer
	flusher   flusher
	interval  time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(p.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for i, c := range p.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %d is nil", i)
		}
	}
	return &Service{
		logg:      p.Logger,
		deps:      p.Dependencies,
		consumers: p.Consumers,
		flusher:   p.Flusher,
		interval:  flushInterval,
	}, nil
}

// ready pings every dependency and reports all that are down.
func (s *Service) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	var errs error
	for name, dep := range s.deps {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", name), "dependency not ready", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return fmt.Errorf("worker dependencies: %w", err)
	}
	s.logg.Info(ctx, "worker dependencies ready")

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		g.Go(func() error {
			err := c.Run(gctx)
			if err == nil || gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consumer %s: %w", c.Name(), err)
		})
	}
	g.Go(func() error {
		tick := time.NewTicker(s.interval)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
				s.flush(gctx)
			}
		}
	})

	err := g.Wait()
	s.flush(context.WithoutCancel(ctx))
	switch {
	case err != nil:
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		return err
	case ctx.Err() != nil:
		s.logg.Info(ctx, "worker stopping")
		return ctx.Err()
	}
	return nil
}

func (s *Service) flush(ctx context.Context) {
	if s.flusher == nil {
		return
	}
	if err := s.flusher.Flush(ctx); err != nil {
		s.logg.Error(ctx, "analytics flush failed", err)
	}
}
