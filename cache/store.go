package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the persistent key-value store behind the memory tiers. Values
// are opaque strings produced by the engine's codec. A missing key is
// reported as ("", false, nil), never as an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value for ttl, rounded up to whole seconds.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ListOptions selects a page of keys.
type ListOptions struct {
	Prefix string
	// Limit is a page size hint; implementations pick a default when zero.
	Limit int
	// Cursor is the value returned by the previous page, empty for the first.
	Cursor string
}

// ListResult is one page of keys.
type ListResult struct {
	Keys   []string
	Done   bool
	Cursor string
}

// Lister is implemented by stores that can enumerate keys. It is used for
// bulk invalidation.
type Lister interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

const defaultListLimit = 100

type memoryRecord struct {
	value   string
	expires time.Time
}

// MemoryStore is a map-backed Store for tests and single-process
// development. It does not survive restarts.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryRecord
	now  func() time.Time
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryRecord), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(rec.expires) {
		delete(s.data, key)
		return "", false, nil
	}
	return rec.value, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.data[key] = memoryRecord{value: value, expires: s.now().Add(time.Duration(ttlSeconds(ttl)) * time.Second)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// List returns keys in lexical order; the cursor is the last key returned.
func (s *MemoryStore) List(_ context.Context, opts ListOptions) (ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	now := s.now()
	s.mu.Lock()
	keys := make([]string, 0, len(s.data))
	for k, rec := range s.data {
		if strings.HasPrefix(k, opts.Prefix) && k > opts.Cursor && now.Before(rec.expires) {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)
	if len(keys) <= limit {
		return ListResult{Keys: keys, Done: true}, nil
	}
	keys = keys[:limit]
	return ListResult{Keys: keys, Cursor: keys[len(keys)-1]}, nil
}

// Len returns the number of stored keys, including expired ones not yet read.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
