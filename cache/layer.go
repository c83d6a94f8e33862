package cache

import (
	"context"
	"time"
)

// Layer is one backend of a Layered coordinator. A miss is (nil, false, nil).
type Layer interface {
	Name() string
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, val any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Haser is implemented by layers that can test for a key more cheaply than
// reading it.
type Haser interface {
	Has(ctx context.Context, key string) (bool, error)
}

type engineLayer struct {
	name   string
	engine *Engine
}

// EngineLayer exposes an Engine as a Layer. Values are written to the
// engine's default tier.
func EngineLayer(name string, e *Engine) Layer {
	return &engineLayer{name: name, engine: e}
}

func (l *engineLayer) Name() string { return l.name }

func (l *engineLayer) Get(ctx context.Context, key string) (any, bool, error) {
	val, ok := l.engine.Get(ctx, key)
	return val, ok, nil
}

func (l *engineLayer) Set(ctx context.Context, key string, val any, ttl time.Duration) error {
	return l.engine.Set(ctx, key, val, WithTTL(ttl))
}

func (l *engineLayer) Delete(ctx context.Context, key string) error {
	return l.engine.Delete(ctx, key)
}

func (l *engineLayer) Close() error {
	return l.engine.Close()
}

type storeLayer struct {
	name  string
	store Store
	codec Codec
	now   func() time.Time
}

// StoreLayer exposes a backing Store as a Layer, encoding values with codec
// (msgpack when nil). Unlike the engine's use of a store, calls are not
// guarded: errors go straight to the coordinator, which logs them.
func StoreLayer(name string, store Store, codec Codec) Layer {
	if codec == nil {
		codec = MsgpackCodec{}
	}
	return &storeLayer{name: name, store: store, codec: codec, now: time.Now}
}

func (l *storeLayer) Name() string { return l.name }

func (l *storeLayer) Get(ctx context.Context, key string) (any, bool, error) {
	raw, found, err := l.store.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	val, rec, err := decodeRecord(l.codec, raw)
	if err != nil {
		return nil, false, err
	}
	if !l.now().Before(rec.expiresAt()) {
		return nil, false, nil
	}
	return val, true, nil
}

func (l *storeLayer) Set(ctx context.Context, key string, val any, ttl time.Duration) error {
	raw, err := encodeRecord(l.codec, val, l.now(), ttl)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, key, raw, ttl)
}

func (l *storeLayer) Delete(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

func (l *storeLayer) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := l.Get(ctx, key)
	return found, err
}
