// Package locks provides Redis backed mutual exclusion: a single named lock
// for singleton workers and a keyed locker that serializes work per entity.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

const (
	defaultLockTTL      = 25 * time.Hour
	defaultKeyedTTL     = 15 * time.Second
	defaultWaitTimeout  = 5 * time.Second
	defaultPollInterval = 25 * time.Millisecond
)

// Keyed lock scopes shared by the cart and settlement paths.
const (
	ScopeUser  = "user"
	ScopeOrder = "order"
)

// Lock coordinates exclusive runs of a singleton job.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore defines the operations the locks need from Redis.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock implements Lock using Redis SETNX + TTL.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	if _, err := l.client.DelIfValue(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.owner = ""
	return nil
}

// Unlock releases a keyed lock.
type Unlock func(ctx context.Context) error

// KeyedLocker serializes callers that share a (scope, id) key.
type KeyedLocker interface {
	Lock(ctx context.Context, scope, id string) (Unlock, error)
}

type keyBuilder interface {
	LockKey(scope, id string) string
}

// KeyedOptions tunes a RedisKeyedLocker.
type KeyedOptions struct {
	TTL          time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// RedisKeyedLocker polls SETNX until it owns the key or the wait times out.
type RedisKeyedLocker struct {
	client redisStore
	keys   keyBuilder
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisKeyedLocker builds a keyed locker over the Redis client.
func NewRedisKeyedLocker(client redisStore, keys keyBuilder, opts KeyedOptions) (*RedisKeyedLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for keyed locker")
	}
	if keys == nil {
		return nil, errors.New("key builder required for keyed locker")
	}
	locker := &RedisKeyedLocker{
		client: client,
		keys:   keys,
		ttl:    opts.TTL,
		wait:   opts.WaitTimeout,
		poll:   opts.PollInterval,
	}
	if locker.ttl <= 0 {
		locker.ttl = defaultKeyedTTL
	}
	if locker.wait <= 0 {
		locker.wait = defaultWaitTimeout
	}
	if locker.poll <= 0 {
		locker.poll = defaultPollInterval
	}
	return locker, nil
}

// Lock blocks until the key is owned. Exhausting the wait budget is reported
// as a retryable dependency failure.
func (l *RedisKeyedLocker) Lock(ctx context.Context, scope, id string) (Unlock, error) {
	key := l.keys.LockKey(scope, id)
	owner := uuid.NewString()
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			return func(releaseCtx context.Context) error {
				if _, err := l.client.DelIfValue(releaseCtx, key, owner); err != nil {
					return fmt.Errorf("release %s: %w", key, err)
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, pkgerrors.FromStore(ctx.Err(), "wait for lock")
		case <-deadline.C:
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "timed out waiting for lock").
				WithDetails(map[string]any{"scope": scope})
		case <-time.After(l.poll):
		}
	}
}
