package cache

import (
	"context"
	"time"

	"github.com/agentuity/tiercache/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentuity/tiercache/cache"

// guardedStore bounds every call to the backing store with the breaker's
// request timeout and fails fast while the circuit is open. All errors it
// returns are marked ErrBackingStoreUnavailable.
type guardedStore struct {
	store   Store
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
}

func newGuardedStore(store Store, breaker *resilience.CircuitBreaker) *guardedStore {
	return &guardedStore{
		store:   store,
		breaker: breaker,
		tracer:  otel.Tracer(tracerName),
	}
}

func (g *guardedStore) call(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	ctx, span := g.tracer.Start(ctx, "tiercache.store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()
	if err := g.breaker.Execute(ctx, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return unavailable(err, op)
	}
	return nil
}

func (g *guardedStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := g.call(ctx, "get", key, func(ctx context.Context) error {
		v, ok, err := g.store.Get(ctx, key)
		if err != nil {
			return err
		}
		val, found = v, ok
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return val, found, nil
}

func (g *guardedStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.call(ctx, "put", key, func(ctx context.Context) error {
		return g.store.Put(ctx, key, value, ttl)
	})
}

func (g *guardedStore) Delete(ctx context.Context, key string) error {
	return g.call(ctx, "delete", key, func(ctx context.Context) error {
		return g.store.Delete(ctx, key)
	})
}

// List is only available when the wrapped store implements Lister.
func (g *guardedStore) List(ctx context.Context, opts ListOptions) (ListResult, bool, error) {
	lister, ok := g.store.(Lister)
	if !ok {
		return ListResult{}, false, nil
	}
	var res ListResult
	err := g.call(ctx, "list", opts.Prefix, func(ctx context.Context) error {
		r, err := lister.List(ctx, opts)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, true, err
}
