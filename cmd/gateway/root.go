package main

import (
	"fmt"
	"os"

	"admission-gateway/config"
	"admission-gateway/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "gateway",
		Short: "Per-client admission control gateway (fixed window + exponential backoff)",
		Long: `gateway fronts an upstream HTTP service and rejects clients that exceed
their request quota, penalizing repeat offenders with exponentially growing
backoff. State lives in Redis so every instance shares the same counters.

Configuration comes from an optional YAML file (--config) overridden by
GATEWAY_* environment variables.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "", "log level (overrides log.level)")
	_ = c.v.BindPFlag(config.Key("log.level"), root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(c.serveCmd(), c.validateCmd(), c.ratelimitCmd())
	return root
}

// load lê a configuração sem validar e monta o logger.
func (c *cli) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("logging: %w", err)
	}
	return cfg, logger, nil
}
