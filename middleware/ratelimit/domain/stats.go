package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do controle de admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key      ClientID
	Endpoint Endpoint
	Allowed  bool
	Reason   Reason
	Bypassed bool
	Degraded bool

	Method string
	Path   string

	At time.Time
}

// Outcome resume o evento em um rótulo de baixa cardinalidade.
func (ev StatsEvent) Outcome() string {
	switch {
	case ev.Bypassed:
		return "bypass"
	case ev.Degraded && ev.Allowed:
		return "degraded"
	case ev.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}

// StatsStore é a estratégia de persistência para estatísticas das decisões.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
