package infra

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// PrometheusStatsStore expõe as decisões como métricas Prometheus.
//
// Só rótulos de baixa cardinalidade (outcome, reason): cliente e rota ficam de fora.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
	breaker   *prometheus.GaugeVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer, namespace string) (*PrometheusStatsStore, error) {
	if namespace == "" {
		namespace = "gateway"
	}
	s := &PrometheusStatsStore{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"outcome", "reason"},
		),
		breaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "store_breaker_state",
				Help:      "Counter store circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
	for _, c := range []prometheus.Collector{s.decisions, s.breaker} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	reason := string(ev.Reason)
	if reason == "" {
		reason = string(domain.ReasonNone)
	}
	s.decisions.WithLabelValues(ev.Outcome(), reason).Inc()
	return nil
}

// ObserveBreaker serve como BreakerSettings.OnStateChange.
func (s *PrometheusStatsStore) ObserveBreaker(name string, _, to gobreaker.State) {
	s.breaker.WithLabelValues(name).Set(float64(to))
}

// MultiStatsStore repassa o evento para vários stores. Todos são chamados;
// o primeiro erro é devolvido.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
