package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"admission-gateway/config"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// app é o gateway montado: roteador chi na frente do proxy reverso.
type app struct {
	handler    http.Handler
	gatekeeper *application.Gatekeeper
	stats      *infra.MemoryStatsStore
}

// buildApp liga config -> stores -> Gatekeeper -> middleware -> proxy.
// rdb pode ser nil quando nada usa Redis. Goroutines de limpeza param com ctx.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, rdb redis.UniversalClient, reg *prometheus.Registry) (*app, error) {
	target, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	proxyLog := logger.With().Str("component", "proxy").Logger()
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		proxyLog.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	var prom *infra.PrometheusStatsStore
	if cfg.Metrics.Enabled {
		if prom, err = infra.NewPrometheusStatsStore(reg, cfg.Metrics.Namespace); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	a := &app{}
	h := http.Handler(proxy)
	if cfg.RateLimit.Enabled {
		store, err := counterStore(ctx, cfg, logger, rdb, reg, prom)
		if err != nil {
			return nil, err
		}

		opts := []application.Option{application.WithLogger(logger)}
		policy := cfg.Policy()
		if policy.FailurePolicy == domain.FailLocal {
			local := infra.NewLocalLimiter(infra.WithIdleTTL(cfg.RateLimit.LocalIdleTTL))
			local.StartJanitor(ctx)
			opts = append(opts, application.WithLocalFallback(local))
		}
		if a.gatekeeper, err = application.NewGatekeeper(store, policy, opts...); err != nil {
			return nil, err
		}

		var stats infra.MultiStatsStore
		if prom != nil {
			stats = append(stats, prom)
		}
		if cfg.Stats.Enabled {
			switch cfg.Stats.Backend {
			case config.StatsRedis:
				// fora da requisição: um Redis lento não pode atrasar o tráfego
				async := infra.NewAsyncStatsStore(
					infra.NewRedisStatsStore(rdb,
						infra.WithStatsPrefix(cfg.Stats.Prefix),
						infra.WithStatsTTL(cfg.Stats.TTL),
						infra.WithStatsBucket(cfg.Stats.Bucket),
						infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
					),
					infra.WithAsyncBuffer(cfg.Stats.Buffer),
					infra.WithAsyncTimeout(cfg.Stats.WriteTimeout),
					infra.WithAsyncLogger(logger),
				)
				async.Start(ctx)
				stats = append(stats, async)
			case config.StatsMemory:
				a.stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
				stats = append(stats, a.stats)
			}
		}

		mwOpts := ratelimit.Options{
			Gatekeeper:          a.gatekeeper,
			KeyHeader:           cfg.RateLimit.KeyHeader,
			TrustXForwardedFor:  cfg.RateLimit.TrustXForwardedFor,
			PathPrefixes:        cfg.RateLimit.PathPrefixes,
			AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
			Logger:              logger,
		}
		if len(stats) > 0 {
			mwOpts.Stats = stats
		}
		h = ratelimit.Middleware(mwOpts)(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(logger, cfg.Metrics.Path))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(rdb))
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	r.Handle("/*", h)

	a.handler = r
	return a, nil
}

func counterStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger, rdb redis.UniversalClient, reg *prometheus.Registry, prom *infra.PrometheusStatsStore) (domain.CounterStore, error) {
	var store domain.CounterStore
	switch cfg.RateLimit.Store {
	case config.StoreMemory:
		mem := infra.NewMemoryCounterStore()
		mem.StartJanitor(ctx)
		store = mem
	default:
		if rdb == nil {
			return nil, errors.New("redis client is required for ratelimit.store=redis")
		}
		store = infra.NewRedisCounterStore(rdb)
	}

	if prom != nil {
		inst, err := infra.NewInstrumentedStore(store, reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		store = inst
	}

	if cfg.Breaker.Enabled {
		breakerLog := logger.With().Str("component", "breaker").Logger()
		store = infra.NewBreakerStore(store, infra.BreakerSettings{
			Name:                "counter-store",
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
			HalfOpenRequests:    cfg.Breaker.HalfOpenRequests,
			OnStateChange: func(name string, from, to gobreaker.State) {
				breakerLog.Warn().Str("name", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
				if prom != nil {
					prom.ObserveBreaker(name, from, to)
				}
			},
		})
	}
	return store, nil
}

func readiness(rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "redis": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "redis": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func accessLog(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// health checks e métricas não entram no log
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == metricsPath {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
