package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/tiercache/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func threeTiers() []Tier {
	return []Tier{
		{Name: "hot", MaxSize: 2, DefaultTTL: time.Second, Weight: 3},
		{Name: "warm", MaxSize: 3, DefaultTTL: 5 * time.Second, Weight: 2},
		{Name: "cold", MaxSize: 5, DefaultTTL: 10 * time.Second, Weight: 1},
	}
}

func newTestEngine(t *testing.T, tiers []Tier, opts ...Option) (*Engine, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	opts = append([]Option{WithLogger(log), WithExpiryCheck(0)}, opts...)
	e, err := New(context.Background(), tiers, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, log
}

func sizes(e *Engine) map[string]int {
	out := make(map[string]int)
	for _, s := range e.Size() {
		out[s.Tier] = s.Items
	}
	return out
}

// countingStore records how often each operation reached the wrapped store.
type countingStore struct {
	Store
	gets    atomic.Int64
	puts    atomic.Int64
	deletes atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	s.puts.Add(1)
	return s.Store.Put(ctx, key, value, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	return s.Store.Delete(ctx, key)
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connection refused")

// failingStore fails every call.
type failingStore struct {
	calls atomic.Int64
}

func (s *failingStore) Get(context.Context, string) (string, bool, error) {
	s.calls.Add(1)
	return "", false, errConnRefused
}

func (s *failingStore) Put(context.Context, string, string, time.Duration) error {
	s.calls.Add(1)
	return errConnRefused
}

func (s *failingStore) Delete(context.Context, string) error {
	s.calls.Add(1)
	return errConnRefused
}

// hangingStore blocks every call until its context is done.
type hangingStore struct{}

func (hangingStore) Get(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func (hangingStore) Put(ctx context.Context, _, _ string, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingStore) Delete(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

// gatedStore holds every Get until open is called, closing entered once the
// first Get is waiting.
type gatedStore struct {
	Store
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedStore(s Store) *gatedStore {
	return &gatedStore{Store: s, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (s *gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.gate:
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
	return s.Store.Get(ctx, key)
}

func (s *gatedStore) open() { close(s.gate) }

// hookPolicy promotes like ThresholdPolicy and runs before each decision.
type hookPolicy struct {
	ThresholdPolicy
	before func(e Entry, tierIndex int)
}

func (p hookPolicy) ShouldPromote(e Entry, tierIndex int) bool {
	if p.before != nil {
		p.before(e, tierIndex)
	}
	return p.ThresholdPolicy.ShouldPromote(e, tierIndex)
}
