// Package ratelimit fornece o adapter HTTP (net/http) do controle de admissão por cliente.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: regra de admissão (janela fixa + backoff exponencial) sem net/http
//   - infra: implementações concretas (Redis, memória, circuit breaker, token bucket, stats)
//   - ratelimit (este pacote): middleware HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Ignora rotas fora de PathPrefixes
//   2) Extrai a chave do cliente (header/XFF/RemoteAddr)
//   3) Chama o Gatekeeper para obter o Verdict
//   4) Se negado, responde 429 com Retry-After e corpo JSON {error, message, retryAfterMinutes}
//   5) Se permitido, chama o próximo handler (ex: reverse proxy)
//
// O binário gateway (cmd/gateway) lê a configuração com viper (arquivo YAML e
// variáveis GATEWAY_*), por exemplo GATEWAY_RATELIMIT_REQUESTSPERWINDOW.
package ratelimit
