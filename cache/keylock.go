package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const keyStripes = 64

// keyLocks serializes the tier changes made for one key: Set and Delete on
// one side, store fills and promotions on the other. Each stripe counts the
// writes it has seen so a fill can tell that its store read went stale.
type keyLocks struct {
	stripes [keyStripes]struct {
		sync.Mutex
		gen uint64
	}
}

func (k *keyLocks) stripe(key string) int {
	return int(xxhash.Sum64String(key) % keyStripes)
}

// generation returns the write count of key's stripe.
func (k *keyLocks) generation(key string) uint64 {
	s := &k.stripes[k.stripe(key)]
	s.Lock()
	defer s.Unlock()
	return s.gen
}

// write runs fn while holding key's stripe and counts it as a write.
func (k *keyLocks) write(key string, fn func()) {
	s := &k.stripes[k.stripe(key)]
	s.Lock()
	defer s.Unlock()
	s.gen++
	fn()
}

// fill runs fn while holding key's stripe, but only if no write happened
// since gen was read. It reports whether fn ran.
func (k *keyLocks) fill(key string, gen uint64, fn func()) bool {
	s := &k.stripes[k.stripe(key)]
	s.Lock()
	defer s.Unlock()
	if s.gen != gen {
		return false
	}
	fn()
	return true
}

// locked runs fn while holding key's stripe without counting a write.
func (k *keyLocks) locked(key string, fn func()) {
	s := &k.stripes[k.stripe(key)]
	s.Lock()
	defer s.Unlock()
	fn()
}
