package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

type writeKind int

const (
	writePut writeKind = iota
	writeDelete
	writeBarrier
)

type writeOp struct {
	kind  writeKind
	key   string
	value string
	ttl   time.Duration
	done  chan error
}

// writer applies backing store writes off the caller's path. Operations on
// the same key always land on the same shard and are applied in order, so a
// Delete can never be overtaken by an earlier Put of that key.
type writer struct {
	store   *guardedStore
	shards  []chan writeOp
	onError func(op string, key string, err error)

	mu        sync.RWMutex
	closed    bool
	waitGroup sync.WaitGroup
}

func newWriter(store *guardedStore, shards, depth int, onError func(op, key string, err error)) *writer {
	if shards <= 0 {
		shards = 1
	}
	if depth <= 0 {
		depth = 1
	}
	w := &writer{store: store, shards: make([]chan writeOp, shards), onError: onError}
	for i := range w.shards {
		w.shards[i] = make(chan writeOp, depth)
		w.waitGroup.Add(1)
		go w.run(w.shards[i])
	}
	return w
}

func (w *writer) shard(key string) chan writeOp {
	return w.shards[xxhash.Sum64String(key)%uint64(len(w.shards))]
}

// put queues a write and reports false if the shard is full or the writer closed.
func (w *writer) put(key, value string, ttl time.Duration) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.shard(key) <- writeOp{kind: writePut, key: key, value: value, ttl: ttl}:
		return true
	default:
		return false
	}
}

// forget queues a delete without waiting for it.
func (w *writer) forget(key string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.shard(key) <- writeOp{kind: writeDelete, key: key}:
		return true
	default:
		return false
	}
}

// delete queues a delete behind any pending writes of key and waits until
// it has been applied or ctx is done.
func (w *writer) delete(ctx context.Context, key string) error {
	done := make(chan error, 1)
	if err := w.enqueue(ctx, w.shard(key), writeOp{kind: writeDelete, key: key, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush waits until every write queued before the call has been applied.
func (w *writer) flush(ctx context.Context) error {
	dones := make([]chan error, 0, len(w.shards))
	for _, ch := range w.shards {
		done := make(chan error, 1)
		if err := w.enqueue(ctx, ch, writeOp{kind: writeBarrier, done: done}); err != nil {
			return err
		}
		dones = append(dones, done)
	}
	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *writer) enqueue(ctx context.Context, ch chan writeOp, op writeOp) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case ch <- op:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "write queue full")
	}
}

func (w *writer) run(ch chan writeOp) {
	defer w.waitGroup.Done()
	for op := range ch {
		var (
			err  error
			name string
		)
		switch op.kind {
		case writePut:
			name, err = "put", w.store.Put(context.Background(), op.key, op.value, op.ttl)
		case writeDelete:
			name, err = "delete", w.store.Delete(context.Background(), op.key)
		}
		if op.done != nil {
			// the waiting caller reports the error
			op.done <- err
			continue
		}
		if err != nil {
			w.onError(name, op.key, err)
		}
	}
}

// close stops accepting writes, applies everything already queued and waits
// for the shard goroutines to exit.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, ch := range w.shards {
		close(ch)
	}
	w.mu.Unlock()
	w.waitGroup.Wait()
}
