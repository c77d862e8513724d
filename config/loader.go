package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const EnvPrefix = "GATEWAY"

// KeyDelimiter separa as seções nas chaves do viper. Não é "." porque chaves de
// endpointLimits são paths e podem ter ponto (/api/v1.2/login).
const KeyDelimiter = "::"

// Key converte "ratelimit.requestsPerWindow" para o delimitador usado pelo viper.
func Key(path string) string {
	return strings.ReplaceAll(path, ".", KeyDelimiter)
}

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	StatsRedis  = "redis"
	StatsMemory = "memory"
	StatsNone   = "none"
)

// SetDefaults registra os valores padrão. Também é o que permite ao AutomaticEnv
// enxergar as chaves.
func SetDefaults(v *viper.Viper) {
	set := func(key string, value any) { v.SetDefault(Key(key), value) }

	set("server.listenAddr", ":8080")
	set("server.upstreamURL", "")
	set("server.readHeaderTimeout", 10*time.Second)
	set("server.readTimeout", 30*time.Second)
	set("server.writeTimeout", 30*time.Second)
	set("server.idleTimeout", 90*time.Second)
	set("server.shutdownTimeout", 10*time.Second)

	set("redis.addr", "localhost:6379")
	set("redis.username", "")
	set("redis.password", "")
	set("redis.db", 0)
	set("redis.poolSize", 0)
	set("redis.dialTimeout", 2*time.Second)
	set("redis.readTimeout", 500*time.Millisecond)
	set("redis.writeTimeout", 500*time.Millisecond)
	set("redis.connectRetries", 5)
	set("redis.required", false)

	set("ratelimit.enabled", true)
	set("ratelimit.store", StoreRedis)
	set("ratelimit.requestsPerWindow", 100)
	set("ratelimit.windowDurationMinutes", 1)
	set("ratelimit.whitelistedClients", []string{})
	set("ratelimit.backoffBaseMinutes", 1)
	set("ratelimit.backoffMaxMinutes", 0)
	set("ratelimit.backoffMemoryMinutes", 0)
	set("ratelimit.keyPrefix", "rl")
	set("ratelimit.windowScope", "auto")
	set("ratelimit.failurePolicy", "open")
	set("ratelimit.storeTimeout", 250*time.Millisecond)
	set("ratelimit.timeoutRetryAfter", time.Second)
	set("ratelimit.pathPrefixes", []string{})
	set("ratelimit.keyHeader", "")
	set("ratelimit.trustXForwardedFor", false)
	set("ratelimit.addHeaders", false)
	set("ratelimit.localIdleTTL", 15*time.Minute)

	set("breaker.enabled", true)
	set("breaker.consecutiveFailures", 5)
	set("breaker.openTimeout", 10*time.Second)
	set("breaker.halfOpenRequests", 1)

	set("stats.enabled", false)
	set("stats.backend", StatsRedis)
	set("stats.prefix", "rl:stats")
	set("stats.ttl", 24*time.Hour)
	set("stats.bucket", "minute")
	set("stats.trackKeys", false)
	set("stats.buffer", 1024)
	set("stats.writeTimeout", 500*time.Millisecond)

	set("log.level", "info")
	set("log.format", "json")
	set("log.service", "gateway")

	set("metrics.enabled", true)
	set("metrics.namespace", "gateway")
	set("metrics.path", "/metrics")
}

// NewViper devolve uma instância com padrões e leitura de ambiente já ligadas.
func NewViper() *viper.Viper {
	v := viper.NewWithOptions(
		viper.KeyDelimiter(KeyDelimiter),
		viper.EnvKeyReplacer(strings.NewReplacer(KeyDelimiter, "_")),
	)
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load lê o arquivo (se path != "") e decodifica tudo em Config.
// Não valida; chame Validate.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.RateLimit.Store = strings.ToLower(strings.TrimSpace(c.RateLimit.Store))
	c.RateLimit.WindowScope = strings.ToLower(strings.TrimSpace(c.RateLimit.WindowScope))
	c.RateLimit.FailurePolicy = strings.ToLower(strings.TrimSpace(c.RateLimit.FailurePolicy))
	c.Stats.Backend = strings.ToLower(strings.TrimSpace(c.Stats.Backend))
	c.Stats.Bucket = strings.ToLower(strings.TrimSpace(c.Stats.Bucket))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.RateLimit.WhitelistedClients = compact(c.RateLimit.WhitelistedClients)
	c.RateLimit.PathPrefixes = compact(c.RateLimit.PathPrefixes)
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
