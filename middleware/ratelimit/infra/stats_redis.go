package infra

import (
	"context"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava as decisões de admissão em hashes do Redis.
//
// Layout (p = prefixo):
//
//	p:outcomes              allowed | denied | bypass | degraded   (cumulativo)
//	p:reasons               limit_exceeded | backoff | store_unavailable (cumulativo, só negações)
//	p:minute:YYYYMMDDhhmm   outcome e "denied:<reason>"            (expira)
//	p:endpoint:<endpoint>   outcome e "denied:<reason>"            (expira)
//	p:client:<client>       outcome e "denied:<reason>"            (expira, opcional)
type RedisStatsStore struct {
	rdb          redis.UniversalClient
	prefix       string
	ttl          time.Duration
	perMinute    bool
	trackClients bool
	clock        domain.Clock
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithStatsTTL define a expiração das chaves de série e por endpoint/cliente.
// Zero desliga a expiração.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita "minute" (padrão) ou "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.perMinute = strings.ToLower(strings.TrimSpace(bucket)) != "none"
	}
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackClients = track }
}

func WithStatsClock(c domain.Clock) RedisStatsOption {
	return func(s *RedisStatsStore) { s.clock = c }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "rl:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clockOrReal(s.clock)
	return s
}

type statsHit struct {
	key    string
	fields []string
	expire bool
}

// hits lista os incrementos de um evento. Separado de Record para o layout
// ficar num lugar só.
func (s *RedisStatsStore) hits(ev domain.StatsEvent, at time.Time) []statsHit {
	outcome := ev.Outcome()
	fields := []string{outcome}
	var reason string
	if !ev.Allowed && ev.Reason != "" && ev.Reason != domain.ReasonNone {
		reason = string(ev.Reason)
		fields = append(fields, outcome+":"+reason)
	}

	out := []statsHit{{key: s.prefix + ":outcomes", fields: []string{outcome}}}
	if reason != "" {
		out = append(out, statsHit{key: s.prefix + ":reasons", fields: []string{reason}})
	}
	if s.perMinute {
		out = append(out, statsHit{key: s.prefix + ":minute:" + at.UTC().Format("200601021504"), fields: fields, expire: true})
	}

	endpoint := ev.Endpoint
	if endpoint == "" && ev.Path != "" {
		endpoint = domain.NormalizeEndpoint(ev.Path)
	}
	if endpoint != "" {
		out = append(out, statsHit{key: s.prefix + ":endpoint:" + string(endpoint), fields: fields, expire: true})
	}
	if client := strings.TrimSpace(string(ev.Key)); s.trackClients && client != "" {
		out = append(out, statsHit{key: s.prefix + ":client:" + client, fields: fields, expire: true})
	}
	return out
}

// Record envia todos os incrementos num único pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = s.clock.Now()
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, h := range s.hits(ev, at) {
			for _, f := range h.fields {
				pipe.HIncrBy(ctx, h.key, f, 1)
			}
			if h.expire && s.ttl > 0 {
				pipe.Expire(ctx, h.key, s.ttl)
			}
		}
		return nil
	})
	return err
}
