package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore implementa domain.CounterStore em memória.
//
// Serve para um único processo (dev, example-server) e para testes com FakeClock.
// Não compartilha estado entre instâncias: em produção com várias réplicas use o Redis.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[string]*memEntry
	clock        domain.Clock
	cleanupEvery time.Duration
}

type memEntry struct {
	value int64
	// zero = sem TTL
	expireAt time.Time
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

type MemoryStoreOption func(*MemoryCounterStore)

func WithMemoryClock(c domain.Clock) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.clock = c }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryStoreOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[string]*memEntry),
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clockOrReal(s.clock)
	return s
}

// live devolve a entrada se ainda não expirou. Chamar com mu travado.
func (s *MemoryCounterStore) live(key string, now time.Time) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && !now.Before(e.expireAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryCounterStore) IncrementAndGet(_ context.Context, key string) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, now)
	if e == nil {
		e = &memEntry{}
		s.entries[key] = e
	}
	e.value++
	return e.value, nil
}

func (s *MemoryCounterStore) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, now)
	if e == nil {
		e = &memEntry{}
		s.entries[key] = e
	}
	e.value++
	n := e.value
	if ttl <= 0 {
		delete(s.entries, key)
		return n, nil
	}
	e.expireAt = now.Add(ttl)
	return n, nil
}

func (s *MemoryCounterStore) ExpireIfNoTTL(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, now)
	if e == nil || !e.expireAt.IsZero() {
		return false, nil
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return true, nil
	}
	e.expireAt = now.Add(ttl)
	return true, nil
}

func (s *MemoryCounterStore) SetTTL(_ context.Context, key string, ttl time.Duration) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, now)
	if e == nil {
		return nil
	}
	// mesmo comportamento do PEXPIRE com valor <= 0: a chave some
	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}
	e.expireAt = now.Add(ttl)
	return nil
}

func (s *MemoryCounterStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, now)
	if e == nil {
		return 0, false, nil
	}
	if e.expireAt.IsZero() {
		return 0, true, nil
	}
	return e.expireAt.Sub(now), true, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key, now)
	if e == nil {
		return 0, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Len devolve quantas chaves existem (inclusive expiradas ainda não varridas).
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove chaves expiradas.
func (s *MemoryCounterStore) Cleanup() {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.entries {
		s.live(k, now)
	}
}

// StartJanitor inicia uma goroutine que varre chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

func startJanitor(ctx context.Context, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}
