package main

import (
	"context"
	"time"

	"admission-gateway/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// waitForRedis repete o PING com backoff exponencial até retries tentativas extras.
func waitForRedis(ctx context.Context, rdb redis.UniversalClient, retries int, logger zerolog.Logger) error {
	if retries < 0 {
		retries = 0
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	op := func() error {
		pctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rdb.Ping(pctx).Err()
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).Msg("redis ping failed")
	}
	return backoff.RetryNotify(op, b, notify)
}
