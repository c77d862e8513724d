package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"admission-gateway/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream "+r.URL.Path)
	}))
	t.Cleanup(up.Close)
	return up
}

func testConfig(t *testing.T, upstream string) *config.Config {
	t.Helper()
	cfg, err := config.Load(nil, "")
	require.NoError(t, err)
	cfg.Server.UpstreamURL = upstream
	cfg.RateLimit.RequestsPerWindow = 3
	cfg.RateLimit.EndpointLimits = map[string]int{"/api/login": 2}
	cfg.RateLimit.PathPrefixes = []string{"/api"}
	require.NoError(t, cfg.ValidateServe())
	return cfg
}

func get(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestBuildApp_RedisStore(t *testing.T) {
	up := newUpstream(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t, up.URL)
	cfg.Stats.Enabled = true
	cfg.Stats.Backend = config.StatsRedis

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := buildApp(ctx, cfg, zerolog.Nop(), rdb, prometheus.NewRegistry())
	require.NoError(t, err)

	w := get(t, a.handler, "/api/login", "9.9.9.9:1000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "upstream /api/login", w.Body.String())

	get(t, a.handler, "/api/login", "9.9.9.9:1000")
	w = get(t, a.handler, "/api/login", "9.9.9.9:1000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "120", w.Header().Get("Retry-After"))

	assert.True(t, mr.Exists("rl:window:9.9.9.9:/api/login"))
	assert.True(t, mr.Exists("rl:backoff:9.9.9.9"))
	assert.Eventually(t, func() bool {
		return mr.HGet("rl:stats:outcomes", "denied") == "1"
	}, 2*time.Second, 10*time.Millisecond, "stats are written in the background")

	// fora de /api não há controle
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(t, a.handler, "/static/app.js", "9.9.9.9:1000").Code)
	}

	w = get(t, a.handler, "/metrics", "127.0.0.1:1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `gateway_admission_decisions_total{outcome="denied",reason="limit_exceeded"} 1`)
	assert.Contains(t, w.Body.String(), "gateway_admission_store_duration_seconds")

	w = get(t, a.handler, "/readyz", "127.0.0.1:1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBuildApp_FailOpenWhenRedisIsDown(t *testing.T) {
	up := newUpstream(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	cfg := testConfig(t, up.URL)
	a, err := buildApp(context.Background(), cfg, zerolog.Nop(), rdb, prometheus.NewRegistry())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, get(t, a.handler, "/api/login", "9.9.9.9:1").Code)
	}
	assert.Equal(t, http.StatusServiceUnavailable, get(t, a.handler, "/readyz", "127.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, get(t, a.handler, "/healthz", "127.0.0.1:1").Code)
}

func TestBuildApp_MemoryStoreAndStats(t *testing.T) {
	up := newUpstream(t)
	cfg := testConfig(t, up.URL)
	cfg.RateLimit.Store = config.StoreMemory
	cfg.Stats.Enabled = true
	cfg.Stats.Backend = config.StatsMemory
	cfg.Metrics.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := buildApp(ctx, cfg, zerolog.Nop(), nil, prometheus.NewRegistry())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		get(t, a.handler, "/api/other", "10.1.1.1:1")
	}
	assert.EqualValues(t, 3, a.stats.Total().Allowed)
	assert.EqualValues(t, 1, a.stats.Total().Denied)

	// sem métricas, /metrics vai para o upstream
	w := get(t, a.handler, "/metrics", "127.0.0.1:1")
	assert.Equal(t, "upstream /metrics", w.Body.String())
}

func TestBuildApp_StalledStatsRedisDoesNotDelayRequests(t *testing.T) {
	// aceita conexões e nunca responde
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	conns := make(chan net.Conn, 64)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			select {
			case conns <- conn:
			default:
				_ = conn.Close()
			}
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		for {
			select {
			case c := <-conns:
				_ = c.Close()
			default:
				return
			}
		}
	})
	rdb := redis.NewClient(&redis.Options{Addr: ln.Addr().String()})
	t.Cleanup(func() { _ = rdb.Close() })

	up := newUpstream(t)
	cfg := testConfig(t, up.URL)
	cfg.RateLimit.Store = config.StoreMemory
	cfg.Stats.Enabled = true
	cfg.Stats.Backend = config.StatsRedis

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := buildApp(ctx, cfg, zerolog.Nop(), rdb, prometheus.NewRegistry())
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(t, a.handler, "/api/x", "9.9.9.9:1").Code)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBuildApp_RequiresRedisClient(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	_, err := buildApp(context.Background(), cfg, zerolog.Nop(), nil, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestBuildApp_DisabledRateLimit(t *testing.T) {
	up := newUpstream(t)
	cfg := testConfig(t, up.URL)
	cfg.RateLimit.Enabled = false

	a, err := buildApp(context.Background(), cfg, zerolog.Nop(), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Nil(t, a.gatekeeper)
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, get(t, a.handler, "/api/login", "9.9.9.9:1").Code)
	}
}

func TestWaitForRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, waitForRedis(context.Background(), rdb, 1, zerolog.Nop()))

	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = down.Close() })
	assert.Error(t, waitForRedis(context.Background(), down, 1, zerolog.Nop()))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCLI_Validate(t *testing.T) {
	path := writeConfig(t, `
ratelimit:
  requestsPerWindow: 3
  endpointLimits:
    /api/login: 5
    /api/v1.2/login: 4
log:
  level: error
`)
	out, err := runCLI(t, "validate", "--config", path, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration OK")
	assert.Contains(t, out, "limit /api/login")
	assert.Contains(t, out, "limit /api/v1.2/login")

	_, err = runCLI(t, "validate", "--serve", "--config", path)
	assert.Error(t, err, "upstream is missing")

	bad := writeConfig(t, "ratelimit:\n  requestsPerWindow: 0\n")
	_, err = runCLI(t, "validate", "--config", bad)
	assert.Error(t, err)
}

func TestCLI_InspectAndReset(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("rl:window:9.9.9.9", "4"))
	mr.SetTTL("rl:window:9.9.9.9", 40*time.Second)
	require.NoError(t, mr.Set("rl:backoff:9.9.9.9", "1"))
	mr.SetTTL("rl:backoff:9.9.9.9", 90*time.Second)

	path := writeConfig(t, "redis:\n  addr: "+mr.Addr()+"\nlog:\n  level: error\n")

	out, err := runCLI(t, "ratelimit", "inspect", "9.9.9.9", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rl:window:9.9.9.9")
	assert.Contains(t, out, "1 violation(s)")
	assert.Contains(t, out, "penalty 1m30s")

	_, err = runCLI(t, "ratelimit", "reset", "9.9.9.9", "--config", path)
	assert.Error(t, err, "needs --yes")

	out, err = runCLI(t, "ratelimit", "reset", "9.9.9.9", "--dry-run", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "would delete rl:backoff:9.9.9.9")
	assert.True(t, mr.Exists("rl:backoff:9.9.9.9"))

	out, err = runCLI(t, "ratelimit", "reset", "9.9.9.9", "--yes", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "deleted"))
	assert.False(t, mr.Exists("rl:backoff:9.9.9.9"))
	assert.False(t, mr.Exists("rl:window:9.9.9.9"))
}

func TestCLI_InspectRefusesMemoryStore(t *testing.T) {
	path := writeConfig(t, "ratelimit:\n  store: memory\n")
	_, err := runCLI(t, "ratelimit", "inspect", "9.9.9.9", "--config", path)
	assert.ErrorIs(t, err, errSharedStoreRequired)
}
