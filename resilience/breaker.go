package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrRequestTimeout = errors.New("circuit breaker request timeout")
)

// State of a circuit breaker.
type State int32

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config controls when a breaker trips and how it recovers.
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// Cooldown is how long the circuit stays open before a trial request is let through.
	Cooldown time.Duration

	// HalfOpenRequests is the number of concurrent trial requests allowed while half-open.
	HalfOpenRequests int

	// SuccessThreshold is the number of trial successes that closes the circuit again.
	SuccessThreshold int

	// RequestTimeout bounds a single call. Zero means the caller's context is the only bound.
	RequestTimeout time.Duration
}

// DefaultConfig returns the configuration used for backing store calls.
func DefaultConfig() Config {
	return Config{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		HalfOpenRequests: 1,
		SuccessThreshold: 2,
		RequestTimeout:   5 * time.Second,
	}
}

// StateChangeFunc is invoked, outside the breaker lock, after every transition.
type StateChangeFunc func(from, to State)

// CircuitBreaker fails calls fast after repeated failures so that a slow or
// dead dependency does not add its timeout to every request.
type CircuitBreaker struct {
	config   Config
	onChange StateChangeFunc
	now      func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	inflight    int
	lastFailure time.Time
}

// New creates a closed circuit breaker.
func New(config Config, onChange StateChangeFunc) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 1
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, onChange: onChange, now: time.Now}
}

// Execute runs fn unless the circuit is open. fn receives a context bounded by
// RequestTimeout; if fn does not return in time Execute returns
// ErrRequestTimeout without waiting for it and counts a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := cb.before()
	if err != nil {
		return err
	}

	callCtx := ctx
	if cb.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.config.RequestTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err = <-done:
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrRequestTimeout
		} else {
			err = callCtx.Err()
		}
	}
	cb.after(trial, err)
	return err
}

func (cb *CircuitBreaker) before() (bool, error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	switch cb.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.config.Cooldown {
			return false, ErrCircuitOpen
		}
		change = cb.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.inflight >= cb.config.HalfOpenRequests {
			return false, ErrCircuitOpen
		}
		cb.inflight++
		return true, nil
	}
	return false, ErrCircuitOpen
}

func (cb *CircuitBreaker) after(trial bool, err error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	if trial && cb.inflight > 0 {
		cb.inflight--
	}
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.config.MaxFailures {
				change = cb.transition(StateOpen)
			}
		case StateHalfOpen:
			change = cb.transition(StateOpen)
		}
		return
	}
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			change = cb.transition(StateClosed)
		}
	}
}

// transition must be called with the lock held. It returns the notification
// to run once the lock is released.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.successes = 0
	cb.inflight = 0
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.onChange == nil {
		return nil
	}
	return func() { cb.onChange(from, to) }
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.transition(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	if change != nil {
		change()
	}
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	State     State
	Failures  int
	Successes int
	Inflight  int
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:     cb.state,
		Failures:  cb.failures,
		Successes: cb.successes,
		Inflight:  cb.inflight,
	}
}
