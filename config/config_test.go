package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentuity/tiercache/cache"
	"github.com/agentuity/tiercache/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
tiers:
  - name: cold
    max_size: 5
    ttl: 10s
    weight: 1
  - name: hot
    max_size: 2
    ttl: 1s
    weight: 3
    volatile: true
  - name: warm
    max_size: 3
    ttl: 5s
    weight: 2
default_tier: warm
promotion_threshold: 3
query_timeout: 250ms
expiry_check: 1d
single_flight: true
write_queue:
  shards: 2
  depth: 16
breaker:
  max_failures: 3
  cooldown: 10s
store:
  type: sqlite
  sqlite:
    path: ${CACHE_DB:-":memory:"}
log:
  level: debug
metrics:
  namespace: bot
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample), MapLookup(nil))
	require.NoError(t, err)

	assert.Len(t, c.Tiers, 3)
	assert.Equal(t, time.Second, c.Tiers[1].TTL.Std())
	assert.True(t, c.Tiers[1].Volatile)
	assert.Equal(t, 24*time.Hour, c.ExpiryCheck.Std())
	assert.Equal(t, 250*time.Millisecond, c.QueryTimeout.Std())
	assert.Equal(t, "sqlite", c.Store.Type)
	assert.Equal(t, ":memory:", c.Store.SQLite.Path)
	assert.Equal(t, 3, c.Breaker.MaxFailures)
	assert.Equal(t, 16, c.WriteQueue.Depth)

	tiers, err := c.CacheTiers()
	require.NoError(t, err)
	assert.Equal(t, "cold", tiers[0].Name, "declaration order is kept; the engine sorts")
}

func TestParseExpandsVariables(t *testing.T) {
	doc := `
tiers:
  - {name: only, max_size: 1, ttl: 1m}
store:
  type: redis
  redis:
    url: ${REDIS_URL}
    prefix: ${PREFIX:-default}
`
	c, err := Parse([]byte(doc), MapLookup(map[string]string{"REDIS_URL": "redis://cache:6379/2"}))
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/2", c.Store.Redis.URL)
	assert.Equal(t, "default", c.Store.Redis.Prefix)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no tiers", `store: {type: none}`},
		{"bad duration", "tiers:\n  - {name: a, max_size: 1, ttl: soon}"},
		{"unknown key", "tiers:\n  - {name: a, max_size: 1, ttl: 1s}\nbogus: true"},
		{"duplicate tier", "tiers:\n  - {name: a, max_size: 1, ttl: 1s}\n  - {name: a, max_size: 1, ttl: 1s}"},
		{"unknown store", "tiers:\n  - {name: a, max_size: 1, ttl: 1s}\nstore: {type: etcd}"},
		{"redis without addr", "tiers:\n  - {name: a, max_size: 1, ttl: 1s}\nstore: {type: redis, redis: {prefix: x}}"},
		{"sqlite without section", "tiers:\n  - {name: a, max_size: 1, ttl: 1s}\nstore: {type: sqlite}"},
		{"bad log format", "tiers:\n  - {name: a, max_size: 1, ttl: 1s}\nlog: {format: xml}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), MapLookup(nil))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDefaultRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Default().Write(&buf))
	assert.Contains(t, buf.String(), "ttl: 1m")

	c, err := Parse(buf.Bytes(), MapLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, Default().Tiers, c.Tiers)
	assert.Equal(t, "none", c.Store.Type)
}

func TestLoadAndPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	t.Setenv(EnvConfig, path)
	assert.Equal(t, path, Path(""))
	assert.Equal(t, "other.yaml", Path("other.yaml"))

	t.Setenv("CACHE_DB", filepath.Join(dir, "cache.db"))
	c, err := Load(Path(""), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache.db"), c.Store.SQLite.Path)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)

	t.Setenv(EnvConfig, "")
	assert.Equal(t, DefaultPath, Path(""))
}

func TestNewEngineFromConfig(t *testing.T) {
	c, err := Parse([]byte(sample), MapLookup(nil))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	log := logger.NewTestLogger()

	e, closer, err := c.NewEngine(context.Background(), log, reg)
	require.NoError(t, err)
	defer closer()

	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "k", "v"))
	assert.Equal(t, []cache.TierSize{
		{Tier: "hot", Items: 0},
		{Tier: "warm", Items: 1},
		{Tier: "cold", Items: 0},
	}, e.Size())

	for i := 0; i < 3; i++ {
		_, ok := e.Get(ctx, "k")
		require.True(t, ok)
	}
	assert.Equal(t, int64(1), e.Stats().Promotions, "threshold of 3 applies")

	count, err := testutil.GatherAndCount(reg, "bot_cache_promotions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, closer())
}

func TestOpenRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Default()
	c.Store = Store{Type: "redis", Redis: &Redis{URL: "redis://" + mr.Addr(), Prefix: "cfg"}}
	require.NoError(t, c.Validate())

	store, closer, err := c.OpenStore(context.Background())
	require.NoError(t, err)
	defer closer()
	require.NoError(t, store.Put(context.Background(), "k", "v", time.Minute))
	assert.True(t, mr.Exists("cfg:k"))

	c.Store.Redis = &Redis{Addrs: []string{mr.Addr()}}
	store, closer2, err := c.OpenStore(context.Background())
	require.NoError(t, err)
	defer closer2()
	_, found, err := store.Get(context.Background(), "cfg:k")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpenRedisStoreUnreachable(t *testing.T) {
	c := Default()
	c.Store = Store{Type: "redis", Redis: &Redis{Addrs: []string{"127.0.0.1:1"}}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.OpenStore(ctx)
	assert.Error(t, err)
}

func TestOpenStoreNone(t *testing.T) {
	store, closer, err := Default().OpenStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.NoError(t, closer())
}

func TestLogger(t *testing.T) {
	c := Default()
	c.Log = Log{Level: "warn", Format: "json"}
	log := c.Logger()
	assert.False(t, log.IsLevelEnabled(logger.LevelInfo))
	assert.True(t, log.IsLevelEnabled(logger.LevelWarn))

	t.Setenv(logger.EnvLogLevel, "trace")
	c.Log = Log{}
	assert.True(t, c.Logger().IsLevelEnabled(logger.LevelTrace))
}
