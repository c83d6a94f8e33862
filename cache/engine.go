package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/tiercache/logger"
	"github.com/agentuity/tiercache/resilience"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Engine is a read-through, write-through cache over an ordered set of
// memory tiers and an optional persistent backing store.
//
// Reads probe tiers hottest first, then the store. Writes go to one tier
// synchronously and to the store asynchronously. Entries read often enough
// move one tier hotter; full tiers drop their least recently used entry.
// All methods are safe for concurrent use.
type Engine struct {
	id       string
	registry *Registry
	tiers    []*entryStore
	cfg      config
	logger   logger.Logger
	metrics  Metrics
	policy   Policy
	codec    Codec
	now      func() time.Time
	stats    *counters

	store  *guardedStore
	writer *writer

	defaultTier int
	fillTier    int
	group       singleflight.Group
	keys        keyLocks

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	closed    atomic.Bool
}

// New builds an engine over tiers and starts its expiry sweep, which runs
// until Close is called or ctx is cancelled.
func New(ctx context.Context, tiers []Tier, opts ...Option) (*Engine, error) {
	registry, err := NewRegistry(tiers...)
	if err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)

	e := &Engine{
		id:       uuid.NewString(),
		registry: registry,
		tiers:    make([]*entryStore, registry.Len()),
		cfg:      cfg,
		metrics:  cfg.metrics,
		policy:   cfg.policy,
		codec:    cfg.codec,
		now:      cfg.now,
		stats:    newCounters(registry.Len()),
	}
	for i, t := range registry.Tiers() {
		e.tiers[i] = newEntryStore(t)
	}
	e.logger = cfg.logger.WithPrefix("[cache]").With(map[string]interface{}{"cache_id": e.id})

	if e.defaultTier, err = e.resolveTier(cfg.defaultTier); err != nil {
		return nil, errors.Wrap(err, "default tier")
	}
	if e.fillTier, err = e.resolveTier(cfg.fillTier); err != nil {
		return nil, errors.Wrap(err, "fill tier")
	}

	if cfg.store != nil {
		bc := resilience.DefaultConfig()
		if cfg.breaker != nil {
			bc = *cfg.breaker
		}
		bc.RequestTimeout = cfg.queryTimeout
		breaker := resilience.New(bc, func(from, to resilience.State) {
			if to == resilience.StateOpen {
				e.logger.Warn("backing store circuit %s -> %s, serving from memory only", from, to)
			} else {
				e.logger.Info("backing store circuit %s -> %s", from, to)
			}
		})
		e.store = newGuardedStore(cfg.store, breaker)
		e.writer = newWriter(e.store, cfg.writeShards, cfg.writeDepth, e.storeFailed)
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	if cfg.expiryCheck > 0 {
		e.waitGroup.Add(1)
		go e.run()
	}
	e.logger.Debug("started with %d tiers, store=%t", registry.Len(), e.store != nil)
	return e, nil
}

// resolveTier maps a tier name to its index; the empty name is the coldest tier.
func (e *Engine) resolveTier(name string) (int, error) {
	if name == "" {
		return e.registry.Len() - 1, nil
	}
	i, _, ok := e.registry.Lookup(name)
	if !ok {
		return -1, errors.Wrapf(ErrUnknownTier, "%q", name)
	}
	return i, nil
}

// Tiers returns the tier descriptors, hottest first.
func (e *Engine) Tiers() []Tier {
	return e.registry.Tiers()
}

// Get returns the cached value for key. It never fails: backing store
// problems are logged and reported as a miss.
func (e *Engine) Get(ctx context.Context, key string) (any, bool) {
	now := e.now()
	for i, ts := range e.tiers {
		stored, entry, res := ts.Get(key, now)
		if res == lookupHit {
			e.stats.hits.Add(1)
			e.stats.tiers[i].hits.Add(1)
			e.metrics.Hit(ts.tier.Name)
			if e.policy.ShouldPromote(entry, i) {
				e.promote(i, stored, entry, now)
			}
			return entry.Value, true
		}
		e.stats.tiers[i].misses.Add(1)
	}
	if val, ok := e.readThrough(ctx, key, now); ok {
		return val, true
	}
	e.stats.misses.Add(1)
	e.metrics.Miss()
	return nil, false
}

func (e *Engine) promote(from int, stored *Entry, entry Entry, now time.Time) {
	to := from - 1
	target := e.registry.At(to)
	moved := false
	e.keys.locked(entry.Key, func() {
		if !e.tiers[from].CompareAndDelete(entry.Key, stored) {
			// replaced by a concurrent Set or already moved
			return
		}
		moved = e.fill(to, &Entry{
			Key:            entry.Key,
			Value:          entry.Value,
			ExpiresAt:      now.Add(target.DefaultTTL),
			LastAccessedAt: now,
			CreatedAt:      entry.CreatedAt,
		})
	})
	if !moved {
		return
	}
	e.stats.promotions.Add(1)
	e.metrics.Promote(e.tiers[from].tier.Name, target.Name)
	e.logger.Trace("promoted %s from %s to %s after %d hits", entry.Key, e.tiers[from].tier.Name, target.Name, entry.AccessCount)
}

// readThrough consults the backing store after every tier missed and
// re-populates the fill tier on a hit.
func (e *Engine) readThrough(ctx context.Context, key string, now time.Time) (any, bool) {
	if e.store == nil {
		return nil, false
	}
	gen := e.keys.generation(key)
	raw, found, err := e.store.Get(ctx, key)
	if err != nil {
		e.storeFailed("get", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	val, rec, err := decodeRecord(e.codec, raw)
	if err != nil {
		e.logger.Warn("dropping unreadable stored value for %s: %s", key, err)
		e.writer.forget(key)
		return nil, false
	}
	remaining := rec.expiresAt().Sub(now)
	if remaining <= 0 {
		e.writer.forget(key)
		return nil, false
	}
	ttl := e.registry.At(e.fillTier).DefaultTTL
	if remaining < ttl {
		ttl = remaining
	}
	// a Set or Delete that finished while the store was read wins
	e.keys.fill(key, gen, func() {
		e.fill(e.fillTier, &Entry{
			Key:            key,
			Value:          val,
			ExpiresAt:      now.Add(ttl),
			LastAccessedAt: now,
			CreatedAt:      now,
		})
	})
	e.stats.hits.Add(1)
	e.stats.storeHits.Add(1)
	e.metrics.Hit(StoreTier)
	return val, true
}

func (e *Engine) put(tier int, entry *Entry) {
	if victim, evicted := e.tiers[tier].Put(entry); evicted {
		e.evicted(tier, victim)
	}
}

// fill inserts entry unless tier already holds the key.
func (e *Engine) fill(tier int, entry *Entry) bool {
	victim, evicted, inserted := e.tiers[tier].PutIfAbsent(entry)
	if evicted {
		e.evicted(tier, victim)
	}
	return inserted
}

func (e *Engine) evicted(tier int, victim string) {
	e.stats.evictions.Add(1)
	e.stats.tiers[tier].evictions.Add(1)
	e.metrics.Evict(e.tiers[tier].tier.Name)
	e.logger.Trace("evicted %s from %s", victim, e.tiers[tier].tier.Name)
}

// SetOption adjusts a single Set or GetOrSet.
type SetOption func(*setOptions)

type setOptions struct {
	ttl  time.Duration
	tier string
}

// WithTTL overrides the tier's default TTL.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = d }
}

// InTier writes to the named tier instead of the default tier.
func InTier(name string) SetOption {
	return func(o *setOptions) { o.tier = name }
}

func (e *Engine) resolveSet(opts []SetOption) (int, time.Duration, error) {
	var so setOptions
	for _, opt := range opts {
		opt(&so)
	}
	idx := e.defaultTier
	if so.tier != "" {
		i, _, ok := e.registry.Lookup(so.tier)
		if !ok {
			return -1, 0, errors.Wrapf(ErrUnknownTier, "%q", so.tier)
		}
		idx = i
	}
	ttl := so.ttl
	if ttl <= 0 {
		ttl = e.registry.At(idx).DefaultTTL
	}
	return idx, ttl, nil
}

// Set stores value under key. The only errors are ErrUnknownTier, in which
// case nothing changes, and ErrClosed. Persisting to the backing store
// happens in the background and never fails the call.
func (e *Engine) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	if e.closed.Load() {
		return ErrClosed
	}
	idx, ttl, err := e.resolveSet(opts)
	if err != nil {
		return err
	}
	e.set(key, value, idx, ttl)
	return nil
}

func (e *Engine) set(key string, value any, idx int, ttl time.Duration) {
	now := e.now()
	e.keys.write(key, func() {
		e.put(idx, &Entry{
			Key:            key,
			Value:          value,
			ExpiresAt:      now.Add(ttl),
			LastAccessedAt: now,
			CreatedAt:      now,
		})
		for i, ts := range e.tiers {
			if i != idx {
				ts.Delete(key)
			}
		}
	})
	if e.writer == nil {
		return
	}
	if e.registry.At(idx).Volatile {
		// an older persisted value must not come back after a restart
		e.writer.forget(key)
		return
	}
	raw, err := encodeRecord(e.codec, value, now, ttl)
	if err != nil {
		e.logger.Warn("not persisting %s: %s", key, err)
		return
	}
	if !e.writer.put(key, raw, ttl) {
		e.stats.droppedWrites.Add(1)
		e.logger.Warn("persistence queue full, dropped write of %s", key)
	}
}

// Delete removes key from every tier and from the backing store. Deleting a
// missing key is fine. Store failures are logged; the returned error is
// always nil. After Close only memory is cleared, so a persisted copy comes
// back on the next start.
func (e *Engine) Delete(ctx context.Context, key string) error {
	e.dropKey(key)
	if e.writer == nil {
		return nil
	}
	if e.closed.Load() {
		e.logger.Debug("closed, %s deleted from memory only", key)
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, e.cfg.queryTimeout)
	defer cancel()
	if err := e.writer.delete(dctx, key); err != nil {
		e.storeFailed("delete", key, err)
	}
	// a read that reached the store before the delete landed may have filled
	e.dropKey(key)
	return nil
}

func (e *Engine) dropKey(key string) {
	e.keys.write(key, func() {
		for _, ts := range e.tiers {
			ts.Delete(key)
		}
	})
}

// ClearOption adjusts Clear.
type ClearOption func(*clearOptions)

type clearOptions struct {
	tier  string
	purge bool
}

// ClearTier limits Clear to one tier.
func ClearTier(name string) ClearOption {
	return func(o *clearOptions) { o.tier = name }
}

// PurgeStore makes Clear also delete every key of the backing store. The
// store must implement Lister.
func PurgeStore() ClearOption {
	return func(o *clearOptions) { o.purge = true }
}

// Clear empties one tier or all of them. The backing store is left alone
// unless PurgeStore is given.
func (e *Engine) Clear(ctx context.Context, opts ...ClearOption) error {
	var co clearOptions
	for _, opt := range opts {
		opt(&co)
	}
	if co.tier != "" {
		i, _, ok := e.registry.Lookup(co.tier)
		if !ok {
			return errors.Wrapf(ErrUnknownTier, "%q", co.tier)
		}
		n := e.tiers[i].Clear()
		e.logger.Debug("cleared %d entries from %s", n, co.tier)
	} else {
		for _, ts := range e.tiers {
			ts.Clear()
		}
		e.logger.Debug("cleared all tiers")
	}
	if co.purge {
		e.purge(ctx)
	}
	return nil
}

func (e *Engine) purge(ctx context.Context) {
	if e.store == nil || e.closed.Load() {
		return
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.queryTimeout)
	err := e.writer.flush(fctx)
	cancel()
	if err != nil {
		e.storeFailed("purge", "", err)
		return
	}
	var (
		opts    ListOptions
		deleted int
	)
	for {
		page, ok, err := e.store.List(ctx, opts)
		if !ok {
			e.logger.Warn("backing store does not support listing, not purged")
			return
		}
		if err != nil {
			e.storeFailed("list", opts.Prefix, err)
			return
		}
		for _, key := range page.Keys {
			if err := e.store.Delete(ctx, key); err != nil {
				e.storeFailed("delete", key, err)
				return
			}
			deleted++
		}
		if page.Done {
			break
		}
		if page.Cursor == opts.Cursor && len(page.Keys) == 0 {
			break
		}
		opts.Cursor = page.Cursor
	}
	e.logger.Info("purged %d keys from backing store", deleted)
}

// GetOrSet returns the cached value or, on a miss, calls load once, caches
// its result and returns it. A loader error is returned and nothing is
// cached. Concurrent callers for the same key each run their own loader
// unless the engine was built WithSingleFlight.
func (e *Engine) GetOrSet(ctx context.Context, key string, load Loader, opts ...SetOption) (any, error) {
	idx, ttl, err := e.resolveSet(opts)
	if err != nil {
		return nil, err
	}
	if val, ok := e.Get(ctx, key); ok {
		return val, nil
	}
	fill := func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if !e.closed.Load() {
			e.set(key, val, idx, ttl)
		}
		return val, nil
	}
	if !e.cfg.singleFlight {
		return fill()
	}
	val, err, _ := e.group.Do(key, fill)
	return val, err
}

// Size reports the number of entries per tier, hottest first.
func (e *Engine) Size() []TierSize {
	out := make([]TierSize, len(e.tiers))
	for i, ts := range e.tiers {
		out[i] = TierSize{Tier: ts.tier.Name, Items: ts.Len()}
	}
	return out
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Hits:          e.stats.hits.Load(),
		Misses:        e.stats.misses.Load(),
		Evictions:     e.stats.evictions.Load(),
		Promotions:    e.stats.promotions.Load(),
		StoreHits:     e.stats.storeHits.Load(),
		StoreErrors:   e.stats.storeErrors.Load(),
		DroppedWrites: e.stats.droppedWrites.Load(),
		Tiers:         make([]TierStats, len(e.tiers)),
	}
	for i, ts := range e.tiers {
		tc := &e.stats.tiers[i]
		s.Tiers[i] = TierStats{
			Name:      ts.tier.Name,
			Items:     ts.Len(),
			Hits:      tc.hits.Load(),
			Misses:    tc.misses.Load(),
			Evictions: tc.evictions.Load(),
		}
	}
	return s
}

// ResetStats zeroes every counter.
func (e *Engine) ResetStats() {
	e.stats.reset()
}

// Cleanup removes expired entries from every tier and returns how many
// were removed. The background sweep calls it every expiry check interval.
func (e *Engine) Cleanup() int {
	now := e.now()
	removed := 0
	for _, ts := range e.tiers {
		removed += ts.Sweep(now)
	}
	return removed
}

// Flush waits until every queued write to the backing store has been applied.
func (e *Engine) Flush(ctx context.Context) error {
	if e.writer == nil || e.closed.Load() {
		return nil
	}
	return e.writer.flush(ctx)
}

// Close stops the expiry sweep and applies queued store writes. It is safe
// to call more than once. Reads keep working from memory afterwards.
func (e *Engine) Close() error {
	e.once.Do(func() {
		e.closed.Store(true)
		e.cancel()
		e.waitGroup.Wait()
		if e.writer != nil {
			e.writer.close()
		}
		e.logger.Debug("closed")
	})
	return nil
}

func (e *Engine) storeFailed(op, key string, err error) {
	e.stats.storeErrors.Add(1)
	e.metrics.StoreError(op)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		e.logger.Debug("store %s skipped for %s: circuit open", op, key)
		return
	}
	e.logger.Warn("store %s failed for %s: %s", op, key, err)
}

type monitorSnapshot struct {
	hits      int64
	misses    int64
	evictions int64
}

func (e *Engine) snapshot() monitorSnapshot {
	return monitorSnapshot{
		hits:      e.stats.hits.Load(),
		misses:    e.stats.misses.Load(),
		evictions: e.stats.evictions.Load(),
	}
}

// checkBursts logs miss storms and eviction bursts since prev.
func (e *Engine) checkBursts(prev monitorSnapshot) monitorSnapshot {
	cur := e.snapshot()
	hits, misses, evictions := cur.hits-prev.hits, cur.misses-prev.misses, cur.evictions-prev.evictions
	if e.cfg.missStorm > 0 && misses >= e.cfg.missStorm && hits < misses {
		e.logger.Warn("miss storm: %d misses and %d hits in the last %s", misses, hits, e.cfg.expiryCheck)
	}
	if e.cfg.evictionBurst > 0 && evictions >= e.cfg.evictionBurst {
		e.logger.Warn("eviction burst: %d evictions in the last %s, tiers may be undersized", evictions, e.cfg.expiryCheck)
	}
	return cur
}

func (e *Engine) run() {
	defer e.waitGroup.Done()
	ticker := time.NewTicker(e.cfg.expiryCheck)
	defer ticker.Stop()
	prev := e.snapshot()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if n := e.Cleanup(); n > 0 {
				e.logger.Trace("expired %d entries", n)
			}
			prev = e.checkBursts(prev)
		}
	}
}
