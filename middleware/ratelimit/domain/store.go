package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable indica que o store externo não respondeu (rede, timeout, breaker aberto).
	ErrStoreUnavailable = errors.New("counter store unavailable")
	// ErrMalformedConfiguration indica configuração inválida; o processo não deve subir.
	ErrMalformedConfiguration = errors.New("malformed rate limit configuration")
)

// CounterStore é o contrato mínimo sobre um KV externo com incremento atômico e TTL
// (ex.: Redis). Todas as operações precisam ser seguras entre processos.
//
// Não existe operação de "ler registro, alterar, gravar": o incremento atômico é o
// único mutador dos contadores.
type CounterStore interface {
	// IncrementAndGet incrementa a chave (criando com 1 se ausente) e devolve o novo valor.
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	// IncrementWithTTL incrementa e define o TTL numa única operação atômica:
	// a chave nunca fica sem TTL entre as duas escritas.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// ExpireIfNoTTL define o TTL apenas se a chave existir sem TTL. Idempotente.
	ExpireIfNoTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// SetTTL sobrescreve o TTL da chave.
	SetTTL(ctx context.Context, key string, ttl time.Duration) error
	// TTL devolve o tempo restante. ok=false quando a chave não existe;
	// (0, true) quando existe sem TTL.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)
	// Get devolve o valor inteiro da chave, ok=false quando ausente.
	Get(ctx context.Context, key string) (value int64, ok bool, err error)
	// Delete remove chaves. Uso operacional (reset); o Gatekeeper nunca apaga.
	Delete(ctx context.Context, keys ...string) error
}

// Clock fornece o tempo atual. Injetável para testes determinísticos.
type Clock interface {
	Now() time.Time
}
