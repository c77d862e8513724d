package application

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspector_InspectAndReset(t *testing.T) {
	ctx := context.Background()
	clock := infra.NewFakeClock(time.Unix(0, 0))
	store := infra.NewMemoryCounterStore(infra.WithMemoryClock(clock))

	p := basePolicy()
	p.EndpointLimits = map[string]int{"/api/login": 1}
	g, err := NewGatekeeper(store, p)
	require.NoError(t, err)

	g.Admit(ctx, "/api/other", "9.9.9.9")
	g.Admit(ctx, "/api/login", "9.9.9.9")
	g.Admit(ctx, "/api/login", "9.9.9.9")
	clock.Advance(15 * time.Second)

	in := NewInspector(store, p)
	st, err := in.Inspect(ctx, "9.9.9.9")
	require.NoError(t, err)

	require.Len(t, st.Windows, 2)
	assert.Equal(t, "rl:window:9.9.9.9", st.Windows[0].Key)
	assert.True(t, st.Windows[0].Present)
	assert.EqualValues(t, 1, st.Windows[0].Count)
	assert.Equal(t, 45*time.Second, st.Windows[0].TTL)

	assert.Equal(t, domain.Endpoint("/api/login"), st.Windows[1].Endpoint)
	assert.EqualValues(t, 2, st.Windows[1].Count)

	assert.Equal(t, "rl:backoff:9.9.9.9", st.BackoffKey)
	assert.EqualValues(t, 1, st.Violations)
	assert.True(t, st.Penalty.Active)
	assert.Equal(t, 105*time.Second, st.Penalty.Remaining)

	keys, err := in.Reset(ctx, "9.9.9.9", true)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Equal(t, 3, store.Len(), "dry run must not delete")

	_, err = in.Reset(ctx, "9.9.9.9", false)
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	assert.True(t, g.Admit(ctx, "/api/login", "9.9.9.9").Allowed)
}

func TestInspector_ExtraEndpoints(t *testing.T) {
	p := basePolicy()
	p.WindowScope = domain.ScopeEndpoint
	in := NewInspector(infra.NewMemoryCounterStore(), p)

	keys, err := in.Reset(context.Background(), "c", true, "/B", "/a/", "/b")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"rl:window:c",
		"rl:window:c:/a",
		"rl:window:c:/b",
		"rl:backoff:c",
	}, keys)
}

func TestInspector_PropagatesStoreErrors(t *testing.T) {
	in := NewInspector(&failingStore{}, basePolicy())

	_, err := in.Inspect(context.Background(), "c")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = in.Reset(context.Background(), "c", false)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
