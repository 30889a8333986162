package lock

import (
	"context"
	"time"

	"github.com/cfdi/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewLocker returns a Redis-backed locker when Redis is enabled and reachable.
// Otherwise it falls back to a process-local locker, which does not protect
// against a second instance of the service.
// The returned close function releases the Redis connection, if any.
func NewLocker(cfg config.RedisConfig, logger *zap.Logger) (Locker, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-process document locks")
		return NewLocalLocker(cfg.LockWait), noop, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("Redis unavailable, falling back to in-process document locks. "+
			"Concurrent instances may process the same document twice.",
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		return NewLocalLocker(cfg.LockWait), noop, nil
	}

	logger.Info("Using Redis document locks", zap.String("addr", cfg.Addr()))
	return NewRedisLocker(client, WithWait(cfg.LockWait), WithRedisLogger(logger)), client.Close, nil
}
