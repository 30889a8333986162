package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"
)

// RedisLocker holds leases in Redis so that every instance of the service
// sees them.
type RedisLocker struct {
	client  *redislock.Client
	wait    time.Duration
	backoff time.Duration
	logger  *zap.Logger
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithWait bounds how long Obtain retries a held key.
func WithWait(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		l.wait = d
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger *zap.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		l.logger = logger
	}
}

// NewRedisLocker creates a locker on top of a go-redis client.
func NewRedisLocker(client redislock.RedisClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:  redislock.New(client),
		wait:    5 * time.Second,
		backoff: 100 * time.Millisecond,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Obtain implements Locker.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lk, err := l.client.Obtain(waitCtx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			l.logger.Warn("Could not obtain redis lock", zap.String("key", key), zap.Duration("wait", l.wait))
			return nil, ErrNotObtained
		}
		return nil, err
	}
	return &redisLease{lock: lk, logger: l.logger}, nil
}

type redisLease struct {
	lock   *redislock.Lock
	logger *zap.Logger
}

func (r *redisLease) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// expired before release; nothing left to free
		r.logger.Warn("Redis lock expired before release", zap.String("key", r.lock.Key()))
		return nil
	}
	return err
}
