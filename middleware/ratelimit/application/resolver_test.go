package application

import (
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
)

func testPolicy() domain.Policy {
	return domain.Policy{
		RequestsPerWindow: 100,
		Window:            time.Minute,
		EndpointLimits:    map[string]int{"/API/Login/": 5},
		Whitelist:         []string{"10.0.0.1", " 2001:db8::1 "},
		BackoffBase:       time.Minute,
	}.WithDefaults()
}

func TestResolver_EndpointOverride(t *testing.T) {
	r := NewResolver(testPolicy())

	eff := r.Resolve("/api/login", "9.9.9.9")
	assert.Equal(t, 5, eff.Limit)
	assert.True(t, eff.Override)
	assert.True(t, eff.Scoped)
	assert.Equal(t, time.Minute, eff.Window)

	eff = r.Resolve("/api/other", "9.9.9.9")
	assert.Equal(t, 100, eff.Limit)
	assert.False(t, eff.Override)
	assert.False(t, eff.Scoped)
}

func TestResolver_MatchIsCaseInsensitiveAndIgnoresTrailingSlash(t *testing.T) {
	r := NewResolver(testPolicy())

	for _, path := range []string{"/api/login", "/API/LOGIN", "/api/login/", "/Api/Login//"} {
		eff := r.Resolve(path, "9.9.9.9")
		assert.Equal(t, domain.Endpoint("/api/login"), eff.Endpoint, path)
		assert.Equal(t, 5, eff.Limit, path)
	}
}

func TestResolver_Bypass(t *testing.T) {
	r := NewResolver(testPolicy())

	assert.True(t, r.Resolve("/api/login", "10.0.0.1").Bypass)
	assert.True(t, r.Resolve("/api/login", "2001:0db8::0001").Bypass)
	assert.False(t, r.Resolve("/api/login", "10.0.0.2").Bypass)
}

func TestResolver_Scopes(t *testing.T) {
	p := testPolicy()

	p.WindowScope = domain.ScopeClient
	assert.False(t, NewResolver(p).Resolve("/api/login", "1.1.1.1").Scoped)

	p.WindowScope = domain.ScopeEndpoint
	assert.True(t, NewResolver(p).Resolve("/api/other", "1.1.1.1").Scoped)
}

func TestKeySpace(t *testing.T) {
	k := KeySpace{Prefix: "app:rl:"}
	assert.Equal(t, "app:rl:window:9.9.9.9", k.Window("9.9.9.9", "/api/login", false))
	assert.Equal(t, "app:rl:window:9.9.9.9:/api/login", k.Window("9.9.9.9", "/api/login", true))
	assert.Equal(t, "app:rl:backoff:9.9.9.9", k.Backoff("9.9.9.9"))
	assert.Equal(t, "rl:backoff:x", KeySpace{}.Backoff("x"))
}
