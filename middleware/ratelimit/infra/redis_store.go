package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// expireIfNoTTL aplica PEXPIRE apenas quando a chave existe sem TTL (PTTL == -1).
// A checagem e a escrita acontecem no servidor, numa única operação atômica.
var expireIfNoTTL = redis.NewScript(`
if redis.call('PTTL', KEYS[1]) == -1 then
	return redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 0
`)

// RedisCounterStore implementa domain.CounterStore sobre o Redis.
//
// O cliente é um recurso de longa duração criado e fechado por quem monta a aplicação;
// o store apenas o usa.
type RedisCounterStore struct {
	rdb redis.UniversalClient
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)

func NewRedisCounterStore(rdb redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", domain.ErrStoreUnavailable, op, key, err)
}

func millis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}

func (s *RedisCounterStore) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return n, nil
}

func (s *RedisCounterStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.PExpire(ctx, key, time.Duration(millis(ttl))*time.Millisecond)
		return nil
	})
	if err != nil {
		return 0, unavailable("incr+pexpire", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisCounterStore) ExpireIfNoTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	n, err := expireIfNoTTL.Run(ctx, s.rdb, []string{key}, millis(ttl)).Int64()
	if err != nil {
		return false, unavailable("expire-if-no-ttl", key, err)
	}
	return n == 1, nil
}

func (s *RedisCounterStore) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.PExpire(ctx, key, time.Duration(millis(ttl))*time.Millisecond).Err(); err != nil {
		return unavailable("pexpire", key, err)
	}
	return nil
}

func (s *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, unavailable("pttl", key, err)
	}
	// go-redis devolve -2/-1 "crus" (sem multiplicar pela precisão)
	switch d {
	case -2:
		return 0, false, nil
	case -1:
		return 0, true, nil
	}
	return d, true, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("get", key, err)
	}
	return n, true, nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", keys[0], err)
	}
	return nil
}

// Ping verifica a conexão (health check).
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}
