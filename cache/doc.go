// Package cache provides a tiered, read-through and write-through cache
// engine with an optional persistent backing store, plus a coordinator for
// chaining heterogeneous cache layers.
//
// # Engine
//
// An [Engine] owns an ordered list of in-memory tiers. Each [Tier] has a
// name, a capacity, a default TTL and a weight; higher weight is hotter and
// is probed first:
//
//	e, err := cache.New(ctx, []cache.Tier{
//	    {Name: "hot", MaxSize: 1_000, DefaultTTL: time.Minute, Weight: 100},
//	    {Name: "warm", MaxSize: 10_000, DefaultTTL: 10 * time.Minute, Weight: 50},
//	    {Name: "cold", MaxSize: 100_000, DefaultTTL: time.Hour, Weight: 10},
//	}, cache.WithStore(cache.NewRedisStore(client, "bot")))
//
// [Engine.Get] checks tiers hottest to coldest. Expired entries found on the
// way are removed. When every tier misses, the backing store is consulted and
// a hit is copied into the fill tier (the coldest tier unless [WithFillTier]
// says otherwise) for at most the fill tier's TTL.
//
// [Engine.Set] writes to the default tier (the coldest unless
// [WithDefaultTier]) or to the tier named with [InTier], and removes older
// copies of the key from the other tiers. Naming a tier that does not exist
// fails with [ErrUnknownTier] and changes nothing.
//
// # Promotion and eviction
//
// Every hit counts against the entry. Once an entry in a colder tier has been
// read [DefaultPromotionThreshold] times it moves one tier hotter, gets that
// tier's default TTL and starts counting again. A tier that is full evicts its
// least recently read entry to make room. Both are recorded in [Stats].
//
// # Persistence
//
// With a [Store] attached, writes to non-volatile tiers are also persisted,
// encoded by the [Codec] (msgpack by default) together with the write time
// and TTL. Persisting happens on background goroutines: callers of Set never
// wait for the store. Writes of the same key are applied in order, and
// [Engine.Delete] waits for its store delete so that a queued write cannot
// bring the key back.
//
// Three stores are provided: [NewRedisStore] (github.com/redis/go-redis/v9),
// [NewSQLiteStore] (modernc.org/sqlite, file backed for restarts) and
// [NewMemoryStore] for tests.
//
// # Error Handling
//
// A cache may miss, but it must not break its caller. Every store call is
// bounded by [WithQueryTimeout] and guarded by a circuit breaker; failures
// are marked [ErrBackingStoreUnavailable], logged and counted, and the engine
// carries on from memory. Serialization failures ([ErrCodec]) drop the
// persistent write only. The errors a caller can see are [ErrUnknownTier],
// [ErrClosed] and errors returned by its own loader in GetOrSet.
//
// # Layered
//
// [Layered] chains [Layer] implementations, fastest first, for setups where
// the levels are different kinds of storage rather than tiers of one engine:
//
//	l := cache.NewLayered([]cache.Layer{
//	    cache.NewMemoryLayer(ctx, "request"),
//	    cache.EngineLayer("engine", e),
//	    cache.StoreLayer("redis", cache.NewRedisStore(client, "bot"), nil),
//	})
//
// A hit in layer i is copied into the faster layers in the background with
// [BackfillTTL]. Set and Delete reach every layer in parallel.
//
// # Concurrency
//
// Each tier has its own mutex. Writes to one key are ordered by a striped key
// lock: once Set or Delete returns, no Get that was already waiting on the
// backing store and no promotion in flight can put an older value back.
// GetOrSet does not collapse concurrent loads of
// the same key unless the engine or coordinator is built [WithSingleFlight].
package cache
