package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

var errMissingUpstream = errors.New("server.upstreamURL is required")

// Validate checa a configuração inteira. Os erros embrulham domain.ErrMalformedConfiguration.
func (c *Config) Validate() error {
	var errs []error

	rl := c.RateLimit
	if rl.Enabled {
		if err := c.Policy().Validate(); err != nil {
			errs = append(errs, err)
		}
		switch rl.Store {
		case StoreRedis, StoreMemory:
		default:
			errs = append(errs, fmt.Errorf("unknown ratelimit.store %q", rl.Store))
		}
	}
	if c.UsesRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Redis.ConnectRetries < 0 {
		errs = append(errs, fmt.Errorf("redis.connectRetries must be >= 0, got %d", c.Redis.ConnectRetries))
	}

	if c.Stats.Enabled {
		switch c.Stats.Backend {
		case StatsRedis, StatsMemory, StatsNone:
		default:
			errs = append(errs, fmt.Errorf("unknown stats.backend %q", c.Stats.Backend))
		}
		switch c.Stats.Bucket {
		case "minute", "none":
		default:
			errs = append(errs, fmt.Errorf("unknown stats.bucket %q", c.Stats.Bucket))
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("invalid log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}

	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	if errors.Is(err, domain.ErrMalformedConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrMalformedConfiguration, err)
}

// ValidateServe é Validate mais o que só o modo proxy exige.
func (c *Config) ValidateServe() error {
	err := c.Validate()

	var serveErr error
	raw := strings.TrimSpace(c.Server.UpstreamURL)
	if raw == "" {
		serveErr = errMissingUpstream
	} else if u, perr := url.Parse(raw); perr != nil || u.Scheme == "" || u.Host == "" {
		serveErr = fmt.Errorf("invalid server.upstreamURL %q", raw)
	}
	if serveErr == nil {
		return err
	}
	if err != nil {
		return errors.Join(err, serveErr)
	}
	return fmt.Errorf("%w: %w", domain.ErrMalformedConfiguration, serveErr)
}
