// Package config carrega a configuração do gateway com viper: arquivo YAML opcional
// sobreposto por variáveis de ambiente GATEWAY_* ("." vira "_").
//
// Exemplo: ratelimit.requestsPerWindow -> GATEWAY_RATELIMIT_REQUESTSPERWINDOW.
package config

import (
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	ListenAddr        string        `mapstructure:"listenAddr"`
	UpstreamURL       string        `mapstructure:"upstreamURL"`
	ReadHeaderTimeout time.Duration `mapstructure:"readHeaderTimeout"`
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`
	WriteTimeout      time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout       time.Duration `mapstructure:"idleTimeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdownTimeout"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	// ConnectRetries é quantas vezes o PING de partida é repetido (backoff exponencial).
	ConnectRetries int `mapstructure:"connectRetries"`
	// Required faz o serve falhar se o Redis não responder na partida.
	Required bool `mapstructure:"required"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Store: "redis" (padrão) ou "memory" (uma instância só).
	Store string `mapstructure:"store"`

	RequestsPerWindow     int            `mapstructure:"requestsPerWindow"`
	WindowDurationMinutes float64        `mapstructure:"windowDurationMinutes"`
	EndpointLimits        map[string]int `mapstructure:"endpointLimits"`
	WhitelistedClients    []string       `mapstructure:"whitelistedClients"`
	BackoffBaseMinutes    float64        `mapstructure:"backoffBaseMinutes"`
	BackoffMaxMinutes     float64        `mapstructure:"backoffMaxMinutes"`
	BackoffMemoryMinutes  float64        `mapstructure:"backoffMemoryMinutes"`

	KeyPrefix         string        `mapstructure:"keyPrefix"`
	WindowScope       string        `mapstructure:"windowScope"`
	FailurePolicy     string        `mapstructure:"failurePolicy"`
	StoreTimeout      time.Duration `mapstructure:"storeTimeout"`
	TimeoutRetryAfter time.Duration `mapstructure:"timeoutRetryAfter"`

	PathPrefixes       []string `mapstructure:"pathPrefixes"`
	KeyHeader          string   `mapstructure:"keyHeader"`
	TrustXForwardedFor bool     `mapstructure:"trustXForwardedFor"`
	AddHeaders         bool     `mapstructure:"addHeaders"`

	// LocalIdleTTL é por quanto tempo um bucket local (política "local") sobrevive sem uso.
	LocalIdleTTL time.Duration `mapstructure:"localIdleTTL"`
}

type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutiveFailures"`
	OpenTimeout         time.Duration `mapstructure:"openTimeout"`
	HalfOpenRequests    uint32        `mapstructure:"halfOpenRequests"`
}

type StatsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend: "redis", "memory" ou "none". Prometheus é controlado por metrics.enabled.
	Backend   string        `mapstructure:"backend"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Bucket    string        `mapstructure:"bucket"`
	TrackKeys bool          `mapstructure:"trackKeys"`
	// Buffer e WriteTimeout valem para o backend redis, gravado fora da requisição.
	Buffer       int           `mapstructure:"buffer"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Service string `mapstructure:"service"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// Policy converte a seção ratelimit no snapshot consumido pelo Gatekeeper.
func (c *Config) Policy() domain.Policy {
	rl := c.RateLimit
	limits := make(map[string]int, len(rl.EndpointLimits))
	for ep, n := range rl.EndpointLimits {
		limits[ep] = n
	}
	return domain.Policy{
		RequestsPerWindow: rl.RequestsPerWindow,
		Window:            minutes(rl.WindowDurationMinutes),
		EndpointLimits:    limits,
		Whitelist:         append([]string(nil), rl.WhitelistedClients...),
		BackoffBase:       minutes(rl.BackoffBaseMinutes),
		BackoffMax:        minutes(rl.BackoffMaxMinutes),
		BackoffMemory:     minutes(rl.BackoffMemoryMinutes),
		KeyPrefix:         rl.KeyPrefix,
		WindowScope:       domain.WindowScope(rl.WindowScope),
		FailurePolicy:     domain.FailurePolicy(rl.FailurePolicy),
		StoreTimeout:      rl.StoreTimeout,
		TimeoutRetryAfter: rl.TimeoutRetryAfter,
	}.WithDefaults()
}

// UsesRedis indica se alguma parte configurada precisa do cliente Redis.
func (c *Config) UsesRedis() bool {
	if c.RateLimit.Enabled && c.RateLimit.Store != StoreMemory {
		return true
	}
	return c.Stats.Enabled && c.Stats.Backend == StatsRedis
}
