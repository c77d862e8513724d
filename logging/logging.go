// Package logging monta o zerolog.Logger do processo a partir da seção log da configuração.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"admission-gateway/config"

	"github.com/rs/zerolog"
)

// New devolve um logger com timestamp e campo service. w == nil usa os.Stdout.
func New(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}

	level := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	service := cfg.Service
	if service == "" {
		service = "gateway"
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", service).Logger(), nil
}
