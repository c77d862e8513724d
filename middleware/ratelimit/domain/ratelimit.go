package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"math"
	"net"
	"strings"
	"time"
)

// ClientID identifica o chamador (IP normalizado, API key, etc.).
// É a chave de partição de todo estado por cliente.
type ClientID string

// Endpoint é a rota normalizada (minúscula, sem query string, sem barra final).
type Endpoint string

// NormalizeClient devolve a forma canônica da identidade do cliente.
// IPs (v4 ou v6, com ou sem colchetes) viram a forma textual de net.IP;
// qualquer outro valor é apenas aparado.
func NormalizeClient(raw string) ClientID {
	s := strings.TrimSpace(raw)
	if ip := net.ParseIP(strings.Trim(s, "[]")); ip != nil {
		return ClientID(ip.String())
	}
	return ClientID(s)
}

// NormalizeEndpoint remove query string, converte para minúsculas e tira barras finais.
// "/" continua "/" e vazio vira "/".
func NormalizeEndpoint(path string) Endpoint {
	p := strings.TrimSpace(path)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.ToLower(strings.TrimRight(p, "/"))
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return Endpoint(p)
}

// Reason explica uma decisão.
type Reason string

const (
	ReasonNone          Reason = "none"
	ReasonBackoff       Reason = "backoff"
	ReasonLimitExceeded Reason = "limit_exceeded"
	// ReasonStoreUnavailable só aparece em negações por prazo da requisição
	// ou pela política fail-closed.
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// Verdict é o resultado de Admit. Sempre existe um Verdict, mesmo com o store fora do ar.
type Verdict struct {
	Allowed bool
	// RetryAfter é o tempo mínimo até o cliente tentar de novo. Zero quando permitido.
	RetryAfter time.Duration
	Reason     Reason

	Endpoint Endpoint
	Limit    int
	Count    int64
	Window   time.Duration

	// Bypassed indica cliente na allowlist (nenhum acesso ao store).
	Bypassed bool
	// Degraded indica que o store falhou e a política de falha decidiu.
	Degraded bool
}

// RetryAfterSeconds arredonda para cima, para o cliente nunca voltar cedo demais.
func (v Verdict) RetryAfterSeconds() int {
	if v.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(v.RetryAfter.Seconds()))
}

// Remaining é a cota restante na janela atual (nunca negativa).
func (v Verdict) Remaining() int {
	if v.Limit <= 0 {
		return 0
	}
	r := int64(v.Limit) - v.Count
	if r < 0 {
		return 0
	}
	return int(r)
}
