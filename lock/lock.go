package lock

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/logger"
	"github.com/kbukum/coordkit/observability"
	"github.com/kbukum/coordkit/redis"
)

// ErrNotAcquired is matched by the error WithLock returns when the key is held.
var ErrNotAcquired = stderrors.New("lock: not acquired")

// Locker is a named mutual-exclusion lock with expiry.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Option configures a RedisLock.
type Option func(*RedisLock)

// WithMetrics records acquisition attempts.
func WithMetrics(m *observability.CoordMetrics) Option {
	return func(l *RedisLock) { l.metrics = m }
}

// RedisLock implements Locker with SET NX.
type RedisLock struct {
	client  *redis.Client
	metrics *observability.CoordMetrics
	log     *logger.Logger
}

var _ Locker = (*RedisLock)(nil)

// New creates a lock whose keys live under {prefix}:lock.
func New(client *redis.Client, opts ...Option) *RedisLock {
	l := &RedisLock{
		client: client,
		log:    client.Logger().WithComponent("lock"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLock) key(resource string) string {
	return redis.LockKey(l.client.Prefix(), resource)
}

// Acquire takes the lock for ttl. It reports false, without error, when the
// lock is already held.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.Configuration("ttl", "locks require a positive ttl")
	}
	ok, err := l.client.SetNX(ctx, l.key(key), uuid.NewString(), ttl)
	if err != nil {
		return false, err
	}
	l.metrics.RecordLockAcquisition(ctx, ok)
	l.log.Debug("lock acquire", logger.Fields(logger.FieldKey, key, "acquired", ok))
	return ok, nil
}

// Release deletes the lock unconditionally and reports whether it existed.
func (l *RedisLock) Release(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Del(ctx, l.key(key))
	if err != nil {
		return false, err
	}
	l.log.Debug("lock released", logger.Fields(logger.FieldKey, key, "existed", n > 0))
	return n > 0, nil
}

func (l *RedisLock) Exists(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(key))
	return n > 0, err
}

// WithLock runs fn while holding key. It returns an error matching both
// ErrNotAcquired and errors.ErrCodeLockHeld when the lock is taken. The lock
// is released after fn returns, even if fn panics.
func (l *RedisLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (err error) {
	ctx, op := observability.StartOperation(ctx, "lock", "with_lock", l.metrics)
	defer func() { op.End(ctx, err) }()

	ok, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return errors.LockHeld(key).WithCause(ErrNotAcquired)
	}

	defer func() {
		// A cancelled caller must still free the key.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, rerr := l.Release(rctx, key); rerr != nil {
			l.log.Error("failed to release lock", logger.Fields(
				logger.FieldKey, key,
				logger.FieldError, rerr.Error(),
			))
			if err == nil {
				err = rerr
			}
		}
	}()

	return fn(ctx)
}

const releaseTimeout = 5 * time.Second
