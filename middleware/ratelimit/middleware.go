package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Gatekeeper *application.Gatekeeper
	Stats      domain.StatsStore
	// StatsTimeout limita quanto Stats.Record pode segurar a requisição.
	StatsTimeout time.Duration
	KeyFn        KeyFunc
	KeyHeader    string
	// TrustXForwardedFor só deve ser ligado atrás de um proxy que sobrescreve o header.
	TrustXForwardedFor bool
	// PathPrefixes restringe o controle a esses prefixos (por segmento, sem
	// diferenciar maiúsculas). Vazio = todas as rotas.
	PathPrefixes        []string
	RejectStatus        int
	AddRateLimitHeaders bool
	Logger              zerolog.Logger
	Clock               domain.Clock
}

// DenyBody é o corpo JSON das respostas negadas.
type DenyBody struct {
	Error             string  `json:"error"`
	Message           string  `json:"message"`
	RetryAfterMinutes float64 `json:"retryAfterMinutes"`
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return string(domain.NormalizeClient(v))
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return string(domain.NormalizeClient(ip))
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return string(domain.NormalizeClient(host))
		}
		return string(domain.NormalizeClient(r.RemoteAddr))
	}
}

// matchPrefix compara por segmento: "/api" casa com "/api" e "/api/x", não com "/apix".
func matchPrefix(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	path = strings.ToLower(path)
	for _, p := range prefixes {
		if p == "/" || path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func normalizePrefixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, string(domain.NormalizeEndpoint(p)))
	}
	return out
}

func denyBody(v domain.Verdict) DenyBody {
	b := DenyBody{RetryAfterMinutes: roundMinutes(v.RetryAfter)}
	switch v.Reason {
	case domain.ReasonBackoff:
		b.Error = "Rate limit exceeded with backoff"
		b.Message = fmt.Sprintf("Blocked due to repeated violations. Wait %s minute(s).", formatFloat(b.RetryAfterMinutes))
	case domain.ReasonStoreUnavailable:
		b.Error = "Rate limit unavailable"
		b.Message = "Admission control is temporarily unavailable. Retry shortly."
	default:
		b.Error = "Rate limit exceeded"
		b.Message = fmt.Sprintf("Limited to %d requests per %s minute(s) for %s",
			v.Limit, formatFloat(v.Window.Minutes()), v.Endpoint)
	}
	return b
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = 50 * time.Millisecond
	}
	prefixes := normalizePrefixes(opts.PathPrefixes)
	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock.Now
	}
	logger := opts.Logger.With().Str("component", "ratelimit").Logger()

	return func(next http.Handler) http.Handler {
		if opts.Gatekeeper == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !matchPrefix(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			key := opts.KeyFn(r)
			if key == "" {
				// sem identidade não há o que contar
				logger.Debug().Str("path", r.URL.Path).Msg("no client key, skipping admission control")
				next.ServeHTTP(w, r)
				return
			}

			v := opts.Gatekeeper.Admit(r.Context(), r.URL.Path, key)

			if opts.Stats != nil {
				sctx, cancel := context.WithTimeout(r.Context(), opts.StatsTimeout)
				err := opts.Stats.Record(sctx, domain.StatsEvent{
					Key:      domain.ClientID(key),
					Endpoint: v.Endpoint,
					Allowed:  v.Allowed,
					Reason:   v.Reason,
					Bypassed: v.Bypassed,
					Degraded: v.Degraded,
					Method:   r.Method,
					Path:     r.URL.Path,
					At:       now(),
				})
				cancel()
				if err != nil {
					logger.Debug().Err(err).Msg("failed to record stats")
				}
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if !v.Bypassed && !v.Degraded {
					w.Header().Set("X-RateLimit-Limit", formatInt(v.Limit))
					w.Header().Set("X-RateLimit-Remaining", formatInt(v.Remaining()))
				}
			}

			if !v.Allowed {
				w.Header().Set("Retry-After", formatInt(v.RetryAfterSeconds()))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(opts.RejectStatus)
				_ = json.NewEncoder(w).Encode(denyBody(v))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
