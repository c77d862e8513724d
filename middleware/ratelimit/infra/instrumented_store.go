package infra

import (
	"context"
	"errors"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentedStore mede a latência de cada operação do CounterStore.
type InstrumentedStore struct {
	inner    domain.CounterStore
	duration *prometheus.HistogramVec
}

var _ domain.CounterStore = (*InstrumentedStore)(nil)

func NewInstrumentedStore(inner domain.CounterStore, reg prometheus.Registerer, namespace string) (*InstrumentedStore, error) {
	if namespace == "" {
		namespace = "gateway"
	}
	h := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "store_duration_seconds",
			Help:      "Counter store operation latency",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op", "result"},
	)
	if err := reg.Register(h); err != nil {
		return nil, err
	}
	return &InstrumentedStore{inner: inner, duration: h}, nil
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "error"
	}
	s.duration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStore) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.inner.IncrementAndGet(ctx, key)
	s.observe("incr", start, err)
	return n, err
}

func (s *InstrumentedStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	start := time.Now()
	n, err := s.inner.IncrementWithTTL(ctx, key, ttl)
	s.observe("incr_with_ttl", start, err)
	return n, err
}

func (s *InstrumentedStore) ExpireIfNoTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := s.inner.ExpireIfNoTTL(ctx, key, ttl)
	s.observe("expire_if_no_ttl", start, err)
	return ok, err
}

func (s *InstrumentedStore) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.SetTTL(ctx, key, ttl)
	s.observe("set_ttl", start, err)
	return err
}

func (s *InstrumentedStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	start := time.Now()
	ttl, ok, err := s.inner.TTL(ctx, key)
	s.observe("ttl", start, err)
	return ttl, ok, err
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (int64, bool, error) {
	start := time.Now()
	n, ok, err := s.inner.Get(ctx, key)
	s.observe("get", start, err)
	return n, ok, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, keys...)
	s.observe("delete", start, err)
	return err
}
