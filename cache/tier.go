package cache

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
)

// Tier describes one named in-memory partition of the cache.
type Tier struct {
	// Name must be unique within an engine.
	Name string
	// MaxSize is the maximum number of entries held by the tier.
	MaxSize int
	// DefaultTTL is used when Set is called without an explicit TTL and when
	// an entry is promoted or back-filled into the tier.
	DefaultTTL time.Duration
	// Weight orders tiers; higher weight is hotter and probed first.
	Weight int
	// Volatile tiers are never written to the backing store.
	Volatile bool
}

func (t Tier) validate() error {
	if t.Name == "" {
		return errors.Wrap(ErrInvalidTier, "tier name is empty")
	}
	if t.MaxSize <= 0 {
		return errors.Wrapf(ErrInvalidTier, "tier %q: max size must be positive, got %d", t.Name, t.MaxSize)
	}
	if t.DefaultTTL <= 0 {
		return errors.Wrapf(ErrInvalidTier, "tier %q: default ttl must be positive, got %s", t.Name, t.DefaultTTL)
	}
	return nil
}

// Registry is the immutable, weight-ordered list of tiers of an engine.
type Registry struct {
	tiers []Tier
	index map[string]int
}

// NewRegistry validates the tiers and orders them hottest first. Tiers with
// equal weight keep their declaration order.
func NewRegistry(tiers ...Tier) (*Registry, error) {
	if len(tiers) == 0 {
		return nil, errors.Wrap(ErrInvalidTier, "at least one tier is required")
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	index := make(map[string]int, len(sorted))
	for i, t := range sorted {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := index[t.Name]; dup {
			return nil, errors.Wrapf(ErrInvalidTier, "duplicate tier name %q", t.Name)
		}
		index[t.Name] = i
	}
	return &Registry{tiers: sorted, index: index}, nil
}

// Lookup returns the position and descriptor of the named tier.
func (r *Registry) Lookup(name string) (int, Tier, bool) {
	i, ok := r.index[name]
	if !ok {
		return -1, Tier{}, false
	}
	return i, r.tiers[i], true
}

// Tiers returns a copy of the tiers, hottest first.
func (r *Registry) Tiers() []Tier {
	out := make([]Tier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

func (r *Registry) At(i int) Tier { return r.tiers[i] }

func (r *Registry) Len() int { return len(r.tiers) }

func (r *Registry) Hottest() Tier { return r.tiers[0] }

func (r *Registry) Coldest() Tier { return r.tiers[len(r.tiers)-1] }
