package application

import (
	"context"
	"sort"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// WindowState é a foto de um contador de janela.
type WindowState struct {
	Key      string
	Endpoint domain.Endpoint
	Present  bool
	Count    int64
	TTL      time.Duration
}

// ClientState é a foto do estado de um cliente no store.
type ClientState struct {
	Client     domain.ClientID
	Windows    []WindowState
	BackoffKey string
	Violations int64
	Penalty    Penalty
}

// Inspector lê e apaga o estado de um cliente. Uso operacional (CLI);
// não participa do caminho da requisição.
type Inspector struct {
	store    domain.CounterStore
	keys     KeySpace
	resolver Resolver
	backoff  BackoffTracker
}

func NewInspector(store domain.CounterStore, policy domain.Policy) Inspector {
	policy = policy.WithDefaults()
	keys := KeySpace{Prefix: policy.KeyPrefix}
	return Inspector{
		store:    store,
		keys:     keys,
		resolver: NewResolver(policy),
		backoff:  NewBackoffTracker(store, keys, policy.BackoffBase, policy.BackoffMax, policy.BackoffMemory),
	}
}

type windowRef struct {
	key      string
	endpoint domain.Endpoint
}

// windows lista as chaves de janela possíveis: a do cliente e uma por endpoint
// conhecido (overrides + extras).
func (i Inspector) windows(client domain.ClientID, extra []string) []windowRef {
	seen := map[string]bool{}
	var out []windowRef
	add := func(ref windowRef) {
		if !seen[ref.key] {
			seen[ref.key] = true
			out = append(out, ref)
		}
	}
	add(windowRef{key: i.keys.Window(client, "", false)})

	eps := i.resolver.Endpoints()
	for _, e := range extra {
		eps = append(eps, domain.NormalizeEndpoint(e))
	}
	sort.Slice(eps, func(a, b int) bool { return eps[a] < eps[b] })
	for _, ep := range eps {
		add(windowRef{key: i.keys.Window(client, ep, true), endpoint: ep})
	}
	return out
}

func (i Inspector) Inspect(ctx context.Context, client string, endpoints ...string) (ClientState, error) {
	id := domain.NormalizeClient(client)
	st := ClientState{Client: id, BackoffKey: i.keys.Backoff(id)}

	for _, ref := range i.windows(id, endpoints) {
		ws := WindowState{Key: ref.key, Endpoint: ref.endpoint}
		n, ok, err := i.store.Get(ctx, ref.key)
		if err != nil {
			return st, err
		}
		if ok {
			ttl, _, err := i.store.TTL(ctx, ref.key)
			if err != nil {
				return st, err
			}
			ws.Present, ws.Count, ws.TTL = true, n, ttl
		}
		st.Windows = append(st.Windows, ws)
	}

	n, _, err := i.store.Get(ctx, st.BackoffKey)
	if err != nil {
		return st, err
	}
	st.Violations = n
	if st.Penalty, err = i.backoff.CheckPenalty(ctx, id); err != nil {
		return st, err
	}
	return st, nil
}

// Reset apaga janelas e backoff do cliente e devolve as chaves afetadas.
// Com dryRun só lista.
func (i Inspector) Reset(ctx context.Context, client string, dryRun bool, endpoints ...string) ([]string, error) {
	id := domain.NormalizeClient(client)
	var keys []string
	for _, ref := range i.windows(id, endpoints) {
		keys = append(keys, ref.key)
	}
	keys = append(keys, i.keys.Backoff(id))
	if dryRun {
		return keys, nil
	}
	return keys, i.store.Delete(ctx, keys...)
}
