package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func succeed(context.Context) error { return nil }

type transitions struct {
	mu   sync.Mutex
	seen []State
}

func (tr *transitions) record(_, to State) {
	tr.mu.Lock()
	tr.seen = append(tr.seen, to)
	tr.mu.Unlock()
}

func (tr *transitions) list() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.seen...)
}

func TestBreakerStartsClosed(t *testing.T) {
	cb := New(DefaultConfig(), nil)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Stats{State: StateClosed}, cb.Stats())
}

func TestBreakerPassesThroughResults(t *testing.T) {
	cb := New(DefaultConfig(), nil)
	called := false
	assert.NoError(t, cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, 1, cb.Stats().Failures)
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	tr := &transitions{}
	cb := New(Config{MaxFailures: 3, Cooldown: time.Hour}, tr.record)
	for i := 0; i < 2; i++ {
		assert.Error(t, cb.Execute(context.Background(), fail))
		assert.Equal(t, StateClosed, cb.State())
	}
	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, tr.list())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{MaxFailures: 2, Cooldown: time.Hour}, nil)
	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	tr := &transitions{}
	now := time.Unix(1000, 0)
	cb := New(Config{MaxFailures: 1, Cooldown: time.Second, SuccessThreshold: 2}, tr.record)
	cb.now = func() time.Time { return now }

	assert.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	assert.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, tr.list())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := New(Config{MaxFailures: 1, Cooldown: time.Second}, nil)
	cb.now = func() time.Time { return now }

	assert.Error(t, cb.Execute(context.Background(), fail))
	now = now.Add(2 * time.Second)
	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)
}

func TestBreakerRequestTimeout(t *testing.T) {
	cb := New(Config{MaxFailures: 5, RequestTimeout: 10 * time.Millisecond}, nil)
	start := time.Now()
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1, cb.Stats().Failures)
}

func TestBreakerCallerCancellation(t *testing.T) {
	cb := New(Config{MaxFailures: 5, RequestTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreakerReset(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Cooldown: time.Hour}, nil)
	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
