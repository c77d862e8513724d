package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

// ErrStatsDropped indica que o buffer estava cheio e o evento foi descartado.
var ErrStatsDropped = errors.New("stats buffer full, event dropped")

// AsyncStatsStore tira a gravação de estatísticas do caminho da requisição:
// Record só enfileira, e um worker grava no store de destino com timeout próprio.
// Buffer cheio descarta o evento; estatística nunca atrasa uma requisição.
type AsyncStatsStore struct {
	inner   domain.StatsStore
	events  chan domain.StatsEvent
	timeout time.Duration
	logger  zerolog.Logger

	dropped atomic.Int64
	done    chan struct{}
}

var _ domain.StatsStore = (*AsyncStatsStore)(nil)

type AsyncStatsOption func(*AsyncStatsStore)

func WithAsyncBuffer(n int) AsyncStatsOption {
	return func(s *AsyncStatsStore) {
		if n > 0 {
			s.events = make(chan domain.StatsEvent, n)
		}
	}
}

func WithAsyncTimeout(d time.Duration) AsyncStatsOption {
	return func(s *AsyncStatsStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithAsyncLogger(l zerolog.Logger) AsyncStatsOption {
	return func(s *AsyncStatsStore) { s.logger = l }
}

func NewAsyncStatsStore(inner domain.StatsStore, opts ...AsyncStatsOption) *AsyncStatsStore {
	s := &AsyncStatsStore{
		inner:   inner,
		events:  make(chan domain.StatsEvent, 1024),
		timeout: 500 * time.Millisecond,
		logger:  zerolog.Nop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "stats").Logger().
		Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second})
	return s
}

// Record nunca bloqueia.
func (s *AsyncStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	select {
	case s.events <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrStatsDropped
	}
}

func (s *AsyncStatsStore) Dropped() int64 { return s.dropped.Load() }

// Start sobe o worker. Quando ctx acaba ele ainda grava o que estava no buffer,
// limitado a um único timeout no total; Done fecha ao terminar.
func (s *AsyncStatsStore) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case ev := <-s.events:
				s.write(context.Background(), ev)
			case <-ctx.Done():
				s.drain()
				return
			}
		}
	}()
}

func (s *AsyncStatsStore) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	for ctx.Err() == nil {
		select {
		case ev := <-s.events:
			s.write(ctx, ev)
		default:
			return
		}
	}
}

func (s *AsyncStatsStore) Done() <-chan struct{} { return s.done }

func (s *AsyncStatsStore) write(parent context.Context, ev domain.StatsEvent) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	if err := s.inner.Record(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record stats")
	}
}
