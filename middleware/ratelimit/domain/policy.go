package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WindowScope define a granularidade da chave do contador de janela.
type WindowScope string

const (
	// ScopeAuto usa chave por (cliente, endpoint) somente para endpoints com limite próprio.
	ScopeAuto WindowScope = "auto"
	// ScopeClient usa sempre uma chave por cliente.
	ScopeClient WindowScope = "client"
	// ScopeEndpoint usa sempre uma chave por (cliente, endpoint).
	ScopeEndpoint WindowScope = "endpoint"
)

// FailurePolicy define o que acontece quando o store não responde.
type FailurePolicy string

const (
	FailOpen   FailurePolicy = "open"
	FailClosed FailurePolicy = "closed"
	// FailLocal troca o store por token buckets locais até ele voltar.
	FailLocal FailurePolicy = "local"
)

const DefaultKeyPrefix = "rl"

// Policy é o snapshot de configuração consumido pelo controle de admissão.
// É passado explicitamente aos construtores; não há estado global.
type Policy struct {
	RequestsPerWindow int
	Window            time.Duration
	EndpointLimits    map[string]int
	Whitelist         []string

	BackoffBase time.Duration
	// BackoffMax limita a penalidade. Zero = sem teto.
	BackoffMax time.Duration
	// BackoffMemory mantém a contagem de violações viva por esse tempo depois
	// que a penalidade acaba. Zero = a contagem some junto com a penalidade.
	BackoffMemory time.Duration

	KeyPrefix     string
	WindowScope   WindowScope
	FailurePolicy FailurePolicy

	// StoreTimeout limita o tempo total gasto no store por decisão. Zero = só o prazo da requisição.
	StoreTimeout time.Duration
	// TimeoutRetryAfter é o Retry-After genérico das negações por prazo/fail-closed.
	TimeoutRetryAfter time.Duration
}

// WithDefaults preenche campos opcionais vazios.
func (p Policy) WithDefaults() Policy {
	if strings.TrimSpace(p.KeyPrefix) == "" {
		p.KeyPrefix = DefaultKeyPrefix
	}
	p.KeyPrefix = strings.Trim(p.KeyPrefix, ":")
	if p.WindowScope == "" {
		p.WindowScope = ScopeAuto
	}
	if p.FailurePolicy == "" {
		p.FailurePolicy = FailOpen
	}
	if p.TimeoutRetryAfter <= 0 {
		p.TimeoutRetryAfter = time.Second
	}
	return p
}

// Validate devolve erro embrulhando ErrMalformedConfiguration.
func (p Policy) Validate() error {
	var errs []error
	if p.RequestsPerWindow <= 0 {
		errs = append(errs, fmt.Errorf("requestsPerWindow must be > 0, got %d", p.RequestsPerWindow))
	}
	if p.Window <= 0 {
		errs = append(errs, fmt.Errorf("window duration must be > 0, got %s", p.Window))
	}
	if p.BackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("backoff base must be > 0, got %s", p.BackoffBase))
	}
	if p.BackoffMax < 0 {
		errs = append(errs, fmt.Errorf("backoff max must be >= 0, got %s", p.BackoffMax))
	}
	if p.BackoffMemory < 0 {
		errs = append(errs, fmt.Errorf("backoff memory must be >= 0, got %s", p.BackoffMemory))
	}
	if p.StoreTimeout < 0 {
		errs = append(errs, fmt.Errorf("store timeout must be >= 0, got %s", p.StoreTimeout))
	}
	for ep, limit := range p.EndpointLimits {
		if strings.TrimSpace(ep) == "" {
			errs = append(errs, errors.New("endpoint limit with empty endpoint"))
			continue
		}
		if limit <= 0 {
			errs = append(errs, fmt.Errorf("endpoint limit for %q must be > 0, got %d", ep, limit))
		}
	}
	switch p.WindowScope {
	case "", ScopeAuto, ScopeClient, ScopeEndpoint:
	default:
		errs = append(errs, fmt.Errorf("unknown window scope %q", p.WindowScope))
	}
	switch p.FailurePolicy {
	case "", FailOpen, FailClosed, FailLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown failure policy %q", p.FailurePolicy))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMalformedConfiguration, errors.Join(errs...))
}
