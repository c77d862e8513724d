package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"admission-gateway/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reverse proxy with admission control",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				logger.Error().Err(err).Msg("invalid configuration")
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().String("listen", "", "listen address (overrides server.listenAddr)")
	cmd.Flags().String("upstream", "", "upstream URL (overrides server.upstreamURL)")
	_ = c.v.BindPFlag(config.Key("server.listenAddr"), cmd.Flags().Lookup("listen"))
	_ = c.v.BindPFlag(config.Key("server.upstreamURL"), cmd.Flags().Lookup("upstream"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// o cliente Redis pertence ao comando: criado uma vez, fechado na saída
	var rdb redis.UniversalClient
	if cfg.UsesRedis() {
		client := newRedisClient(cfg.Redis)
		defer func() { _ = client.Close() }()

		if err := waitForRedis(ctx, client, cfg.Redis.ConnectRetries, logger); err != nil {
			if cfg.Redis.Required {
				return fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
			}
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Str("failure_policy", cfg.RateLimit.FailurePolicy).
				Msg("redis unreachable at startup, serving under failure policy")
		}
		rdb = client
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := buildApp(ctx, cfg, logger, rdb, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	p := cfg.Policy()
	logger.Info().
		Str("listen", cfg.Server.ListenAddr).
		Str("upstream", cfg.Server.UpstreamURL).
		Bool("ratelimit", cfg.RateLimit.Enabled).
		Str("store", cfg.RateLimit.Store).
		Int("requests_per_window", p.RequestsPerWindow).
		Dur("window", p.Window).
		Dur("backoff_base", p.BackoffBase).
		Int("endpoint_overrides", len(p.EndpointLimits)).
		Str("failure_policy", string(p.FailurePolicy)).
		Msg("gateway listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
