package lru

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

func TestRerankCache_PutGet(t *testing.T) {
	c := NewRerankCache(10, time.Hour)
	ctx := context.Background()
	value := []domain.RankedMatch{{Match: domain.VectorMatch{ID: "a", Score: 0.9}, RerankScore: 0.8}}

	require.NoError(t, c.Put(ctx, "rerank:abc", value, time.Hour))

	got, ok, err := c.Get(ctx, "rerank:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, got)

	got[0].RerankScore = 0
	again, _, _ := c.Get(ctx, "rerank:abc")
	assert.Equal(t, 0.8, again[0].RerankScore)
}

func TestRerankCache_Miss(t *testing.T) {
	_, ok, err := NewRerankCache(10, time.Hour).Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRerankCache_PerEntryTTL(t *testing.T) {
	c := NewRerankCache(10, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []domain.RankedMatch{}, time.Minute))
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestRerankCache_Bounded(t *testing.T) {
	c := NewRerankCache(2, time.Hour)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Put(ctx, k, nil, time.Hour))
	}
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestDeliveryLog_Remember(t *testing.T) {
	d := NewDeliveryLog(10, time.Minute)

	assert.False(t, d.Remember("delivery-1"))
	assert.True(t, d.Remember("delivery-1"))
	assert.False(t, d.Remember("delivery-2"))
	assert.False(t, d.Remember(""))
	assert.False(t, d.Remember(""))
}

func TestDeliveryLog_Expires(t *testing.T) {
	d := NewDeliveryLog(10, 20*time.Millisecond)
	assert.False(t, d.Remember("x"))
	assert.Eventually(t, func() bool { return !d.Remember("x") }, time.Second, 10*time.Millisecond)
}
