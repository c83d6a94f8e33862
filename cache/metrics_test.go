package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics("bot", reg)
	require.NoError(t, err)

	store := NewMemoryStore()
	raw, err := encodeRecord(MsgpackCodec{}, "v", time.Now(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "stored", raw, time.Hour))

	e, _ := newTestEngine(t, []Tier{
		{Name: "hot", MaxSize: 1, DefaultTTL: time.Minute, Weight: 2},
		{Name: "cold", MaxSize: 1, DefaultTTL: time.Minute, Weight: 1},
	}, WithMetrics(m), WithStore(store), WithPromotionThreshold(1))
	ctx := context.Background()

	require.NoError(t, e.Set(ctx, "a", 1))
	e.Get(ctx, "a") // hit in cold, promoted to hot
	e.Get(ctx, "a") // hit in hot
	e.Get(ctx, "missing")
	e.Get(ctx, "stored")
	require.NoError(t, e.Set(ctx, "b", 2, InTier("hot")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits.WithLabelValues("cold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits.WithLabelValues("hot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits.WithLabelValues(StoreTier)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promotions.WithLabelValues("cold", "hot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions.WithLabelValues("hot")))

	count, err := testutil.GatherAndCount(reg, "bot_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = NewPrometheusMetrics("bot", reg)
	assert.Error(t, err, "registering twice fails")
}

func TestPrometheusMetricsStoreErrors(t *testing.T) {
	m, err := NewPrometheusMetrics("bot", prometheus.NewRegistry())
	require.NoError(t, err)
	e, _ := newTestEngine(t, threeTiers(), WithMetrics(m), WithStore(&failingStore{}))
	ctx := context.Background()

	e.Get(ctx, "k")
	require.NoError(t, e.Set(ctx, "k", "v"))
	require.NoError(t, e.Flush(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors.WithLabelValues("put")))
}
