package cache

import (
	"context"
	"sync"
	"time"
)

type value struct {
	object  any
	expires time.Time
	hits    int
}

// MemoryLayer is an unbounded map with per-key expiry, meant for short-lived
// request scoped data in front of other layers.
type MemoryLayer struct {
	name      string
	ctx       context.Context
	cancel    context.CancelFunc
	cache     map[string]*value
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var (
	_ Layer = (*MemoryLayer)(nil)
	_ Haser = (*MemoryLayer)(nil)
)

// NewMemoryLayer returns a MemoryLayer whose expired entries are swept every
// WithExpiryCheck interval until Close or until parent is cancelled.
func NewMemoryLayer(parent context.Context, name string, opts ...Option) *MemoryLayer {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &MemoryLayer{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		cache:  make(map[string]*value),
		cfg:    cfg,
	}
	if cfg.expiryCheck > 0 {
		c.waitGroup.Add(1)
		go c.run()
	}
	return c
}

func (c *MemoryLayer) Name() string { return c.name }

func (c *MemoryLayer) Get(_ context.Context, key string) (any, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val, ok := c.cache[key]
	if !ok {
		return nil, false, nil
	}
	if !c.cfg.now().Before(val.expires) {
		delete(c.cache, key)
		return nil, false, nil
	}
	val.hits++
	return val.object, true, nil
}

func (c *MemoryLayer) Has(_ context.Context, key string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val, ok := c.cache[key]
	return ok && c.cfg.now().Before(val.expires), nil
}

// Hits returns how often key has been read since it was last set.
func (c *MemoryLayer) Hits(key string) (bool, int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if v, ok := c.cache[key]; ok {
		return true, v.hits
	}
	return false, 0
}

// Set stores val for expires, or for the WithExpires default when expires <= 0.
func (c *MemoryLayer) Set(_ context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = c.cfg.defaultExpires
	}
	c.mutex.Lock()
	c.cache[key] = &value{object: val, expires: c.cfg.now().Add(expires)}
	c.mutex.Unlock()
	return nil
}

func (c *MemoryLayer) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	delete(c.cache, key)
	c.mutex.Unlock()
	return nil
}

func (c *MemoryLayer) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

func (c *MemoryLayer) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *MemoryLayer) sweep() {
	now := c.cfg.now()
	c.mutex.Lock()
	for key, val := range c.cache {
		if !now.Before(val.expires) {
			delete(c.cache, key)
		}
	}
	c.mutex.Unlock()
}

func (c *MemoryLayer) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
