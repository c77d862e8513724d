package application

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

// LocalFallback decide sem o store compartilhado (política FailLocal).
type LocalFallback interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// Gatekeeper concentra a regra de admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas devolve um Verdict.
// Não guarda estado mutável: todo estado compartilhado vive no CounterStore e a
// corretude depende só da atomicidade dele, então pode ser chamado em paralelo
// para o mesmo cliente, de várias goroutines e várias instâncias.
//
// A leitura do backoff e o incremento da janela não são linearizáveis como par:
// duas requisições simultâneas podem ler "sem penalidade" e incrementar. Isso só
// desloca a borda da janela por algumas requisições e é aceito como aproximação;
// não usamos lock distribuído para manter a latência baixa.
type Gatekeeper struct {
	store    domain.CounterStore
	policy   domain.Policy
	resolver Resolver
	backoff  BackoffTracker
	keys     KeySpace
	local    LocalFallback

	logger zerolog.Logger
	// alarm é amostrado: um store fora do ar gera no máximo alguns logs por segundo.
	alarm zerolog.Logger
}

type Option func(*Gatekeeper)

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gatekeeper) { g.logger = l }
}

func WithLocalFallback(f LocalFallback) Option {
	return func(g *Gatekeeper) { g.local = f }
}

// NewGatekeeper valida a política e monta o controle de admissão.
// Erros embrulham domain.ErrMalformedConfiguration.
func NewGatekeeper(store domain.CounterStore, policy domain.Policy, opts ...Option) (*Gatekeeper, error) {
	policy = policy.WithDefaults()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: counter store is required", domain.ErrMalformedConfiguration)
	}

	keys := KeySpace{Prefix: policy.KeyPrefix}
	g := &Gatekeeper{
		store:    store,
		policy:   policy,
		resolver: NewResolver(policy),
		backoff:  NewBackoffTracker(store, keys, policy.BackoffBase, policy.BackoffMax, policy.BackoffMemory),
		keys:     keys,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if policy.FailurePolicy == domain.FailLocal && g.local == nil {
		return nil, fmt.Errorf("%w: failure policy %q requires a local fallback limiter", domain.ErrMalformedConfiguration, policy.FailurePolicy)
	}
	g.logger = g.logger.With().Str("component", "gatekeeper").Logger()
	g.alarm = g.logger.Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second})
	return g, nil
}

func (g *Gatekeeper) Policy() domain.Policy { return g.policy }

func (g *Gatekeeper) Resolver() Resolver { return g.resolver }

func (g *Gatekeeper) Keys() KeySpace { return g.keys }

// Admit decide se a requisição segue. Nunca devolve erro: falhas do store viram
// Verdict de acordo com a política de falha.
//
// Ordem: bypass -> backoff -> contador da janela. Um cliente já penalizado não
// incrementa a janela; a penalidade tem precedência sobre a contagem normal.
func (g *Gatekeeper) Admit(ctx context.Context, endpoint, client string) domain.Verdict {
	eff := g.resolver.Resolve(endpoint, client)
	v := domain.Verdict{
		Reason:   domain.ReasonNone,
		Endpoint: eff.Endpoint,
		Limit:    eff.Limit,
		Window:   eff.Window,
	}

	// caminho rápido: nenhuma ida ao store
	if eff.Bypass {
		v.Allowed = true
		v.Bypassed = true
		return v
	}

	sctx := ctx
	if g.policy.StoreTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, g.policy.StoreTimeout)
		defer cancel()
	}

	pen, err := g.backoff.CheckPenalty(sctx, eff.Client)
	if err != nil {
		return g.storeFailure(ctx, eff, v, "check penalty", err)
	}
	if pen.Active {
		v.RetryAfter = pen.Remaining
		v.Reason = domain.ReasonBackoff
		g.logger.Debug().
			Str("client", string(eff.Client)).
			Str("endpoint", string(eff.Endpoint)).
			Dur("retry_after", v.RetryAfter).
			Msg("request denied: backoff active")
		return v
	}

	key := g.keys.Window(eff.Client, eff.Endpoint, eff.Scoped)
	count, err := g.store.IncrementAndGet(sctx, key)
	if err != nil {
		return g.storeFailure(ctx, eff, v, "increment window", err)
	}
	v.Count = count

	if count == 1 {
		// Sem TTL a janela nunca expiraria. Se falhar aqui, a próxima violação
		// desse cliente tenta de novo (ver abaixo).
		if _, err := g.store.ExpireIfNoTTL(sctx, key, eff.Window); err != nil {
			g.alarm.Error().Err(err).Str("key", key).Msg("failed to set window ttl")
		}
	}

	if count <= int64(eff.Limit) {
		v.Allowed = true
		return v
	}

	if count > 1 {
		// cura uma janela órfã (processo caiu entre INCR e EXPIRE)
		if _, err := g.store.ExpireIfNoTTL(sctx, key, eff.Window); err != nil {
			g.alarm.Error().Err(err).Str("key", key).Msg("failed to heal window ttl")
		}
	}

	v.Reason = domain.ReasonLimitExceeded
	penalty, err := g.backoff.RecordViolation(sctx, eff.Client)
	if err != nil {
		// A quota já estourou segundo o store; nega com a penalidade mínima
		// em vez de deixar a política de falha liberar.
		if penalty <= 0 {
			penalty = g.backoff.PenaltyFor(1)
		}
		v.Degraded = true
		g.alarm.Error().Err(err).Str("client", string(eff.Client)).Msg("failed to record violation")
	}
	v.RetryAfter = penalty
	g.logger.Debug().
		Str("client", string(eff.Client)).
		Str("endpoint", string(eff.Endpoint)).
		Int64("count", count).
		Int("limit", eff.Limit).
		Dur("retry_after", v.RetryAfter).
		Msg("request denied: limit exceeded")
	return v
}

// storeFailure aplica a política de falha. ctx é o contexto da requisição
// (não o que tem StoreTimeout).
func (g *Gatekeeper) storeFailure(ctx context.Context, eff Effective, v domain.Verdict, op string, err error) domain.Verdict {
	v.Degraded = true

	// O prazo da própria requisição acabou: nega (fail-closed no escopo da requisição).
	if ctx.Err() != nil {
		v.Allowed = false
		v.RetryAfter = g.policy.TimeoutRetryAfter
		v.Reason = domain.ReasonStoreUnavailable
		g.logger.Warn().Err(err).
			Str("op", op).
			Str("client", string(eff.Client)).
			Msg("request deadline exceeded while waiting for counter store")
		return v
	}

	g.alarm.Error().Err(err).
		Str("op", op).
		Str("client", string(eff.Client)).
		Str("endpoint", string(eff.Endpoint)).
		Str("policy", string(g.policy.FailurePolicy)).
		Msg("counter store unavailable")

	switch g.policy.FailurePolicy {
	case domain.FailClosed:
		v.Allowed = false
		v.RetryAfter = g.policy.TimeoutRetryAfter
		v.Reason = domain.ReasonStoreUnavailable
	case domain.FailLocal:
		ok, wait := g.local.Allow(g.keys.Window(eff.Client, eff.Endpoint, eff.Scoped), eff.Limit, eff.Window)
		v.Allowed = ok
		if !ok {
			v.RetryAfter = wait
			v.Reason = domain.ReasonLimitExceeded
		}
	default:
		v.Allowed = true
	}
	return v
}
