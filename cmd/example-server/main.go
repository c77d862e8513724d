package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func main() {
	// Exemplo: middleware injetado direto no seu webserver (sem proxy), estado em memória
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "example-server").Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryCounterStore()
	store.StartJanitor(ctx)

	g, err := application.NewGatekeeper(store, domain.Policy{
		RequestsPerWindow: 5,
		Window:            time.Minute,
		EndpointLimits:    map[string]int{"/login": 3},
		BackoffBase:       30 * time.Second,
		BackoffMax:        10 * time.Minute,
	}, application.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid policy")
	}

	stats := infra.NewMemoryStatsStore()

	r := chi.NewRouter()
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Gatekeeper:          g,
		Stats:               stats,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Logger:              logger,
	}))
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Post("/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("welcome\n"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}

	total := stats.Total()
	logger.Info().Int64("allowed", total.Allowed).Int64("denied", total.Denied).Msg("shutdown")
}
