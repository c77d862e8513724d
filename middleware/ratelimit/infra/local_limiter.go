package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// LocalLimiter mantém token buckets por chave (golang.org/x/time/rate), com limpeza periódica.
//
// É o substituto por instância usado pela política FailLocal enquanto o store
// compartilhado está fora: cada réplica passa a limitar sozinha, com taxa
// limit/window e rajada = limit.
type LocalLimiter struct {
	mu           sync.Mutex
	entries      map[string]*localEntry
	clock        domain.Clock
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type localEntry struct {
	lim      *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

type LocalLimiterOption func(*LocalLimiter)

func WithIdleTTL(d time.Duration) LocalLimiterOption {
	return func(l *LocalLimiter) { l.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LocalLimiterOption {
	return func(l *LocalLimiter) { l.cleanupEvery = d }
}

func WithLocalClock(c domain.Clock) LocalLimiterOption {
	return func(l *LocalLimiter) { l.clock = c }
}

func NewLocalLimiter(opts ...LocalLimiterOption) *LocalLimiter {
	l := &LocalLimiter{
		entries:      make(map[string]*localEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.clock = clockOrReal(l.clock)
	return l
}

func (l *LocalLimiter) CleanupEvery() time.Duration { return l.cleanupEvery }

// Allow consome um token da chave. Quando nega, devolve quanto falta para o próximo token.
func (l *LocalLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return true, 0
	}
	now := l.clock.Now()
	lim := l.limiter(key, limit, window, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, window
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *LocalLimiter) limiter(key string, limit int, window time.Duration, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok && ent.limit == limit && ent.window == window {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	// o bucket nasce cheio no instante atual do relógio injetado
	lim.SetLimitAt(now, lim.Limit())
	l.entries[key] = &localEntry{lim: lim, limit: limit, window: window, lastSeen: now}
	return lim
}

func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *LocalLimiter) Cleanup() {
	cutoff := l.clock.Now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (l *LocalLimiter) StartJanitor(ctx context.Context) {
	startJanitor(ctx, l.cleanupEvery, l.Cleanup)
}
