package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// RealClock devolve o tempo real.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FakeClock é um relógio controlável para testes.
type FakeClock struct {
	mu      sync.RWMutex
	current time.Time
}

var _ domain.Clock = (*FakeClock)(nil)

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

func (f *FakeClock) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance move o relógio para frente (ou para trás, com d negativo).
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

func clockOrReal(c domain.Clock) domain.Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}
