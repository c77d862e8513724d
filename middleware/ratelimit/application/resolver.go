package application

import (
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Effective é o limite efetivo de uma requisição. Derivado, nunca armazenado.
type Effective struct {
	Client   domain.ClientID
	Endpoint domain.Endpoint
	Bypass   bool
	Limit    int
	Window   time.Duration
	// Scoped indica contador por (cliente, endpoint) em vez de só por cliente.
	Scoped bool
	// Override indica que Limit veio de endpointLimits.
	Override bool
}

// Resolver aplica limites por endpoint sobre o padrão global e decide o bypass
// da allowlist. Função pura: sem I/O e sem estado mutável.
type Resolver struct {
	defaultLimit int
	window       time.Duration
	scope        domain.WindowScope
	overrides    map[domain.Endpoint]int
	allow        map[domain.ClientID]struct{}
}

func NewResolver(p domain.Policy) Resolver {
	r := Resolver{
		defaultLimit: p.RequestsPerWindow,
		window:       p.Window,
		scope:        p.WindowScope,
		overrides:    make(map[domain.Endpoint]int, len(p.EndpointLimits)),
		allow:        make(map[domain.ClientID]struct{}, len(p.Whitelist)),
	}
	if r.scope == "" {
		r.scope = domain.ScopeAuto
	}
	for ep, limit := range p.EndpointLimits {
		r.overrides[domain.NormalizeEndpoint(ep)] = limit
	}
	for _, c := range p.Whitelist {
		if id := domain.NormalizeClient(c); id != "" {
			r.allow[id] = struct{}{}
		}
	}
	return r
}

func (r Resolver) Resolve(endpoint, client string) Effective {
	eff := Effective{
		Client:   domain.NormalizeClient(client),
		Endpoint: domain.NormalizeEndpoint(endpoint),
		Limit:    r.defaultLimit,
		Window:   r.window,
	}
	if _, ok := r.allow[eff.Client]; ok {
		eff.Bypass = true
		return eff
	}
	if limit, ok := r.overrides[eff.Endpoint]; ok {
		eff.Limit = limit
		eff.Override = true
	}
	switch r.scope {
	case domain.ScopeClient:
		eff.Scoped = false
	case domain.ScopeEndpoint:
		eff.Scoped = true
	default:
		eff.Scoped = eff.Override
	}
	return eff
}

// Endpoints devolve os endpoints com limite próprio.
func (r Resolver) Endpoints() []domain.Endpoint {
	out := make([]domain.Endpoint, 0, len(r.overrides))
	for ep := range r.overrides {
		out = append(out, ep)
	}
	return out
}
