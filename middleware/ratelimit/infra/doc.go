// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: INCR/PTTL/PEXPIRE atômicos no Redis (go-redis)
//   - MemoryCounterStore: mesmo contrato em memória, para um único processo e testes
//   - BreakerStore: circuit breaker (gobreaker) na frente de qualquer CounterStore
//   - LocalLimiter: token bucket por chave (golang.org/x/time/rate) para o modo degradado
//   - Stats: memória, Redis e Prometheus
package infra
