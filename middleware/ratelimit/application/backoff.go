package application

import (
	"context"
	"math"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Penalty é o estado de backoff visto por CheckPenalty.
type Penalty struct {
	Active    bool
	Remaining time.Duration
}

// BackoffTracker escala a penalidade de um cliente a cada violação.
//
// Estados: Clear (sem chave de backoff) e Penalized (chave com TTL > memory).
// Penalized -> Clear acontece sozinho quando o TTL expira; o tracker nunca apaga a chave.
//
// Com memory > 0 a chave vive memory além da penalidade: nesse intervalo o cliente
// já pode passar, mas uma nova violação continua a contagem (2, 4, 8...) em vez de
// recomeçar do zero. A penalidade restante é TTL - memory, então basta uma chave.
type BackoffTracker struct {
	store  domain.CounterStore
	keys   KeySpace
	base   time.Duration
	max    time.Duration
	memory time.Duration
}

func NewBackoffTracker(store domain.CounterStore, keys KeySpace, base, max, memory time.Duration) BackoffTracker {
	if memory < 0 {
		memory = 0
	}
	return BackoffTracker{store: store, keys: keys, base: base, max: max, memory: memory}
}

// PenaltyFor devolve base * 2^violations, limitado por max (quando > 0).
func (b BackoffTracker) PenaltyFor(violations int64) time.Duration {
	d := b.base
	for i := int64(0); i < violations; i++ {
		if b.max > 0 && d >= b.max {
			return b.max
		}
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}

// CheckPenalty só lê; nunca altera o estado.
func (b BackoffTracker) CheckPenalty(ctx context.Context, client domain.ClientID) (Penalty, error) {
	ttl, ok, err := b.store.TTL(ctx, b.keys.Backoff(client))
	if err != nil {
		return Penalty{}, err
	}
	if !ok || ttl <= b.memory {
		return Penalty{}, nil
	}
	return Penalty{Active: true, Remaining: ttl - b.memory}, nil
}

func (b BackoffTracker) keyTTL(d time.Duration) time.Duration {
	if ttl := d + b.memory; ttl >= d {
		return ttl
	}
	return d
}

// RecordViolation incrementa o contador de violações e recalcula o TTL.
//
// O incremento já grava o TTL da primeira violação na mesma operação; o TTL
// exato vem depois. Se essa segunda escrita falhar (ou o processo cair no meio)
// a chave ainda expira e a contagem não fica presa para sempre.
//
// Deve ser chamado uma vez por episódio de violação (quota estourada), nunca
// enquanto uma penalidade está ativa; senão o Retry-After mudaria a cada retry.
func (b BackoffTracker) RecordViolation(ctx context.Context, client domain.ClientID) (time.Duration, error) {
	key := b.keys.Backoff(client)
	floor := b.keyTTL(b.PenaltyFor(1))
	n, err := b.store.IncrementWithTTL(ctx, key, floor)
	if err != nil {
		return 0, err
	}
	d := b.PenaltyFor(n)
	if ttl := b.keyTTL(d); ttl != floor {
		if err := b.store.SetTTL(ctx, key, ttl); err != nil {
			return d, err
		}
	}
	return d, nil
}
