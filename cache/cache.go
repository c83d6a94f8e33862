package cache

import (
	"context"
	"time"

	"github.com/agentuity/tiercache/logger"
	"github.com/agentuity/tiercache/resilience"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultExpires is the base TTL of a Layered coordinator.
const DefaultExpires = 5 * time.Minute

// DefaultQueryTimeout bounds every backing store call. A call that exceeds it
// is treated as the store being unavailable.
const DefaultQueryTimeout = 5 * time.Second

const (
	defaultWriteShards     = 4
	defaultWriteDepth      = 1024
	defaultMissStorm       = 1000
	defaultEvictionBurst   = 1000
	defaultExpiryCheckTime = time.Minute
)

// config holds the resolved configuration of an Engine or Layered coordinator.
type config struct {
	defaultExpires time.Duration
	queryTimeout   time.Duration
	expiryCheck    time.Duration
	store          Store
	codec          Codec
	defaultTier    string
	fillTier       string
	policy         Policy
	breaker        *resilience.Config
	logger         logger.Logger
	metrics        Metrics
	now            func() time.Time
	singleFlight   bool
	writeShards    int
	writeDepth     int
	missStorm      int64
	evictionBurst  int64
}

// Option configures an Engine or a Layered coordinator.
type Option func(*config)

func defaultConfig() config {
	return config{
		defaultExpires: DefaultExpires,
		queryTimeout:   DefaultQueryTimeout,
		expiryCheck:    defaultExpiryCheckTime,
		codec:          MsgpackCodec{},
		policy:         ThresholdPolicy{Threshold: DefaultPromotionThreshold},
		metrics:        nopMetrics{},
		now:            time.Now,
		writeShards:    defaultWriteShards,
		writeDepth:     defaultWriteDepth,
		missStorm:      defaultMissStorm,
		evictionBurst:  defaultEvictionBurst,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger()
	}
	return cfg
}

// WithExpires sets the base TTL used by a Layered coordinator when Set is
// called without a TTL and for back-fill. Defaults to DefaultExpires.
func WithExpires(d time.Duration) Option {
	return func(c *config) { c.defaultExpires = d }
}

// WithQueryTimeout sets the per-operation timeout for backing store calls.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets the interval of the background sweep that removes
// expired entries from every tier. Zero or negative disables the sweep.
// Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithStore attaches the persistent backing store. Without one the engine is
// memory only.
func WithStore(s Store) Option {
	return func(c *config) { c.store = s }
}

// WithCodec replaces the msgpack codec used for persisted values.
func WithCodec(codec Codec) Option {
	return func(c *config) { c.codec = codec }
}

// WithDefaultTier names the tier Set writes to when no tier is given.
// Defaults to the coldest tier.
func WithDefaultTier(name string) Option {
	return func(c *config) { c.defaultTier = name }
}

// WithFillTier names the tier that receives values read back from the
// backing store. Defaults to the coldest tier.
func WithFillTier(name string) Option {
	return func(c *config) { c.fillTier = name }
}

// WithPolicy replaces the promotion policy.
func WithPolicy(p Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithPromotionThreshold is shorthand for a ThresholdPolicy.
func WithPromotionThreshold(n int) Option {
	return func(c *config) { c.policy = ThresholdPolicy{Threshold: n} }
}

// WithBreaker overrides the circuit breaker guarding the backing store. Its
// RequestTimeout is replaced by the query timeout.
func WithBreaker(cfg resilience.Config) Option {
	return func(c *config) { c.breaker = &cfg }
}

// WithLogger sets the logger. Defaults to a console logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics sets the sink for hit, miss, eviction and promotion events.
func WithMetrics(m Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithSingleFlight makes concurrent GetOrSet calls for the same missing key
// share one loader call. Without it every caller runs its own loader.
func WithSingleFlight() Option {
	return func(c *config) { c.singleFlight = true }
}

// WithWriteQueue sizes the asynchronous persistence queue: shards goroutines
// each buffering up to depth writes. Writes that find their shard full are
// dropped and counted.
func WithWriteQueue(shards, depth int) Option {
	return func(c *config) {
		c.writeShards = shards
		c.writeDepth = depth
	}
}

// WithStormThresholds sets how many misses, and how many evictions, within
// one expiry check interval are logged as a miss storm or eviction burst.
func WithStormThresholds(misses, evictions int64) Option {
	return func(c *config) {
		c.missStorm = misses
		c.evictionBurst = evictions
	}
}

// Loader produces the value for a missing key.
type Loader func(ctx context.Context) (any, error)

// Getter is implemented by Engine and Layered.
type Getter interface {
	Get(ctx context.Context, key string) (any, bool)
}

// Get retrieves a typed value. Values kept in memory are type asserted;
// values that went through the backing store come back in msgpack's generic
// form and are converted into T.
func Get[T any](ctx context.Context, c Getter, key string) (bool, T, error) {
	var zero T
	val, found := c.Get(ctx, key)
	if !found {
		return false, zero, nil
	}
	if typed, ok := val.(T); ok {
		return true, typed, nil
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return false, zero, codecErr(err, "cannot convert value of type %T to %T", val, zero)
	}
	var result T
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return false, zero, codecErr(err, "cannot convert value of type %T to %T", val, zero)
	}
	return true, result, nil
}
