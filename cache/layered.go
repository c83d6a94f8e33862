package cache

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/tiercache/logger"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

// minBackfillTTL is the floor of the TTL given to back-filled copies.
const minBackfillTTL = time.Minute

// Layered reads through an ordered list of heterogeneous layers. A hit in
// layer i is copied into layers 0..i-1 in the background. Writes and deletes
// go to every layer in parallel. Layer failures are logged and never
// returned.
type Layered struct {
	layers    []Layer
	cfg       config
	logger    logger.Logger
	group     singleflight.Group
	backfills sync.WaitGroup
	once      sync.Once
}

// NewLayered returns a coordinator over layers, fastest first. WithExpires
// sets the base TTL, WithQueryTimeout bounds each background back-fill.
// At least one layer must be provided; panics if empty.
func NewLayered(layers []Layer, opts ...Option) *Layered {
	if len(layers) == 0 {
		panic("cache: NewLayered requires at least one layer")
	}
	cfg := applyOptions(opts)
	return &Layered{
		layers: layers,
		cfg:    cfg,
		logger: cfg.logger.WithPrefix("[cache]"),
	}
}

// BackfillTTL is the TTL of a copy written into the layer at index: the
// base TTL shortened by a fifth per layer, never below one minute.
func BackfillTTL(base time.Duration, index int) time.Duration {
	ttl := time.Duration(float64(base) * (1 - float64(index)*0.2))
	if ttl < minBackfillTTL {
		return minBackfillTTL
	}
	return ttl
}

// Get returns the first hit, checking layers in order.
func (l *Layered) Get(ctx context.Context, key string) (any, bool) {
	for i, layer := range l.layers {
		val, found, err := layer.Get(ctx, key)
		if err != nil {
			l.logger.Warn("layer %s get failed for %s: %s", layer.Name(), key, err)
			continue
		}
		if found {
			if i > 0 {
				l.backfill(ctx, key, val, i)
			}
			return val, true
		}
	}
	return nil, false
}

func (l *Layered) backfill(ctx context.Context, key string, val any, upto int) {
	detached := context.WithoutCancel(ctx)
	for i := 0; i < upto; i++ {
		layer := l.layers[i]
		ttl := BackfillTTL(l.cfg.defaultExpires, i)
		l.backfills.Add(1)
		go func() {
			defer l.backfills.Done()
			bctx, cancel := context.WithTimeout(detached, l.cfg.queryTimeout)
			defer cancel()
			if err := layer.Set(bctx, key, val, ttl); err != nil {
				l.logger.Warn("layer %s back-fill failed for %s: %s", layer.Name(), key, err)
			}
		}()
	}
}

// Has reports whether any layer holds key, preferring Haser over Get.
func (l *Layered) Has(ctx context.Context, key string) bool {
	for _, layer := range l.layers {
		var (
			found bool
			err   error
		)
		if h, ok := layer.(Haser); ok {
			found, err = h.Has(ctx, key)
		} else {
			_, found, err = layer.Get(ctx, key)
		}
		if err != nil {
			l.logger.Warn("layer %s has failed for %s: %s", layer.Name(), key, err)
			continue
		}
		if found {
			return true
		}
	}
	return false
}

// each runs fn against every layer concurrently and logs failures.
func (l *Layered) each(op, key string, fn func(Layer) error) {
	var wg sync.WaitGroup
	for _, layer := range l.layers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(layer); err != nil {
				l.logger.Warn("layer %s %s failed for %s: %s", layer.Name(), op, key, err)
			}
		}()
	}
	wg.Wait()
}

// Set writes val to every layer for ttl, or the base TTL when ttl <= 0.
func (l *Layered) Set(ctx context.Context, key string, val any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = l.cfg.defaultExpires
	}
	l.each("set", key, func(layer Layer) error {
		return layer.Set(ctx, key, val, ttl)
	})
}

// Delete removes key from every layer.
func (l *Layered) Delete(ctx context.Context, key string) {
	l.each("delete", key, func(layer Layer) error {
		return layer.Delete(ctx, key)
	})
}

// GetOrSet returns the cached value or loads, stores and returns it. A
// loader error is returned and nothing is stored.
func (l *Layered) GetOrSet(ctx context.Context, key string, load Loader, ttl time.Duration) (any, error) {
	if val, ok := l.Get(ctx, key); ok {
		return val, nil
	}
	fill := func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		l.Set(ctx, key, val, ttl)
		return val, nil
	}
	if !l.cfg.singleFlight {
		return fill()
	}
	val, err, _ := l.group.Do(key, fill)
	return val, err
}

// Wait blocks until every back-fill started so far has finished.
func (l *Layered) Wait() {
	l.backfills.Wait()
}

// Close waits for back-fills and closes every layer that has a Close method.
func (l *Layered) Close() error {
	var err error
	l.once.Do(func() {
		l.Wait()
		for _, layer := range l.layers {
			if c, ok := layer.(interface{ Close() error }); ok {
				err = errors.CombineErrors(err, c.Close())
			}
		}
	})
	return err
}
