package cache

import "sync/atomic"

// TierStats are the counters of one tier.
type TierStats struct {
	Name      string
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats are process-lifetime counters of an engine. They only go back to zero
// through ResetStats.
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Promotions    int64
	StoreHits     int64
	StoreErrors   int64
	DroppedWrites int64
	Tiers         []TierStats
}

// HitRatio is Hits / (Hits + Misses), or zero before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// TierSize is the number of live entries held by a tier.
type TierSize struct {
	Tier  string
	Items int
}

type tierCounters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	promotions    atomic.Int64
	storeHits     atomic.Int64
	storeErrors   atomic.Int64
	droppedWrites atomic.Int64
	tiers         []tierCounters
}

func newCounters(tiers int) *counters {
	return &counters{tiers: make([]tierCounters, tiers)}
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.promotions.Store(0)
	c.storeHits.Store(0)
	c.storeErrors.Store(0)
	c.droppedWrites.Store(0)
	for i := range c.tiers {
		c.tiers[i].hits.Store(0)
		c.tiers[i].misses.Store(0)
		c.tiers[i].evictions.Store(0)
	}
}
