package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/sony/gobreaker"
)

type BreakerSettings struct {
	Name string
	// ConsecutiveFailures abre o circuito ao atingir esse número de falhas seguidas.
	ConsecutiveFailures uint32
	// OpenTimeout é quanto tempo o circuito fica aberto antes de ir para half-open.
	OpenTimeout time.Duration
	// HalfOpenRequests é quantas chamadas de teste passam em half-open.
	HalfOpenRequests uint32
	OnStateChange    func(name string, from, to gobreaker.State)
}

// BreakerStore coloca um circuit breaker na frente de um CounterStore.
//
// Com o circuito aberto as chamadas falham na hora com ErrStoreUnavailable,
// sem pagar o timeout de rede em cada requisição.
type BreakerStore struct {
	inner domain.CounterStore
	cb    *gobreaker.CircuitBreaker
}

var _ domain.CounterStore = (*BreakerStore)(nil)

func NewBreakerStore(inner domain.CounterStore, st BreakerSettings) *BreakerStore {
	if st.Name == "" {
		st.Name = "counter-store"
	}
	if st.ConsecutiveFailures == 0 {
		st.ConsecutiveFailures = 5
	}
	if st.OpenTimeout <= 0 {
		st.OpenTimeout = 10 * time.Second
	}
	if st.HalfOpenRequests == 0 {
		st.HalfOpenRequests = 1
	}
	threshold := st.ConsecutiveFailures
	return &BreakerStore{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        st.Name,
			MaxRequests: st.HalfOpenRequests,
			Timeout:     st.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			// cancelamento pelo cliente não diz nada sobre a saúde do store
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: st.OnStateChange,
		}),
	}
}

func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) exec(fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return v, err
}

func (b *BreakerStore) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	v, err := b.exec(func() (interface{}, error) { return b.inner.IncrementAndGet(ctx, key) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *BreakerStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	v, err := b.exec(func() (interface{}, error) { return b.inner.IncrementWithTTL(ctx, key, ttl) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *BreakerStore) ExpireIfNoTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	v, err := b.exec(func() (interface{}, error) { return b.inner.ExpireIfNoTTL(ctx, key, ttl) })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (b *BreakerStore) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	_, err := b.exec(func() (interface{}, error) { return nil, b.inner.SetTTL(ctx, key, ttl) })
	return err
}

type ttlResult struct {
	ttl time.Duration
	ok  bool
}

func (b *BreakerStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	v, err := b.exec(func() (interface{}, error) {
		ttl, ok, err := b.inner.TTL(ctx, key)
		return ttlResult{ttl: ttl, ok: ok}, err
	})
	if err != nil {
		return 0, false, err
	}
	r := v.(ttlResult)
	return r.ttl, r.ok, nil
}

type getResult struct {
	value int64
	ok    bool
}

func (b *BreakerStore) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := b.exec(func() (interface{}, error) {
		n, ok, err := b.inner.Get(ctx, key)
		return getResult{value: n, ok: ok}, err
	})
	if err != nil {
		return 0, false, err
	}
	r := v.(getResult)
	return r.value, r.ok, nil
}

func (b *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	_, err := b.exec(func() (interface{}, error) { return nil, b.inner.Delete(ctx, keys...) })
	return err
}
