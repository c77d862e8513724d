package infra

import (
	"testing"
	"time"
)

func TestLocalLimiter_AllowsBurstThenDenies(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	l := NewLocalLimiter(WithLocalClock(clock))

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("k", 3, time.Minute); !ok {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}

	ok, wait := l.Allow("k", 3, time.Minute)
	if ok {
		t.Fatalf("expected fourth request to be denied")
	}
	if wait < 19*time.Second || wait > 21*time.Second {
		t.Fatalf("expected wait around 20s, got %s", wait)
	}

	clock.Advance(20*time.Second + time.Millisecond)
	if ok, _ := l.Allow("k", 3, time.Minute); !ok {
		t.Fatalf("expected a token after refill")
	}
}

func TestLocalLimiter_DeniedRequestDoesNotConsume(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	l := NewLocalLimiter(WithLocalClock(clock))

	l.Allow("k", 1, time.Minute)
	for i := 0; i < 10; i++ {
		l.Allow("k", 1, time.Minute)
	}

	clock.Advance(time.Minute + time.Millisecond)
	if ok, _ := l.Allow("k", 1, time.Minute); !ok {
		t.Fatalf("denied requests should not push the next token further away")
	}
}

func TestLocalLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLocalLimiter(WithLocalClock(NewFakeClock(time.Unix(0, 0))))

	l.Allow("a", 1, time.Minute)
	if ok, _ := l.Allow("b", 1, time.Minute); !ok {
		t.Fatalf("expected key b to have its own bucket")
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}
}

func TestLocalLimiter_LimitChangeRecreatesBucket(t *testing.T) {
	l := NewLocalLimiter(WithLocalClock(NewFakeClock(time.Unix(0, 0))))

	l.Allow("k", 1, time.Minute)
	if ok, _ := l.Allow("k", 5, time.Minute); !ok {
		t.Fatalf("expected a fresh bucket after limit change")
	}
}

func TestLocalLimiter_NonPositiveLimitAllows(t *testing.T) {
	l := NewLocalLimiter()
	if ok, _ := l.Allow("k", 0, time.Minute); !ok {
		t.Fatalf("expected allow for zero limit")
	}
	if l.Len() != 0 {
		t.Fatalf("expected no entry to be created")
	}
}

func TestLocalLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	l := NewLocalLimiter(WithLocalClock(clock), WithIdleTTL(time.Minute), WithCleanupEvery(0))

	l.Allow("old", 1, time.Second)
	clock.Advance(2 * time.Minute)
	l.Allow("fresh", 1, time.Second)

	l.Cleanup()

	if l.Len() != 1 {
		t.Fatalf("expected only the fresh entry to survive, got %d", l.Len())
	}
	if l.CleanupEvery() != 0 {
		t.Fatalf("expected cleanupEvery option to be kept")
	}
}
