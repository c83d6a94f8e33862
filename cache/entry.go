package cache

import (
	"container/list"
	"sync"
	"time"
)

// sweepBatch bounds how many entries Sweep inspects while holding the tier
// lock before yielding it to concurrent readers.
const sweepBatch = 256

// Entry is a cached value together with its access metadata.
type Entry struct {
	Key            string
	Value          any
	Tier           string
	ExpiresAt      time.Time
	AccessCount    int
	LastAccessedAt time.Time
	CreatedAt      time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type lookupResult int

const (
	lookupMiss lookupResult = iota
	lookupHit
	lookupExpired
)

// entryStore is the per-tier index of entries. The list is kept in access
// order, most recent at the front, so the back is always the eviction victim.
type entryStore struct {
	mu    sync.Mutex
	tier  Tier
	items map[string]*list.Element
	lru   *list.List
}

func newEntryStore(tier Tier) *entryStore {
	return &entryStore{
		tier:  tier,
		items: make(map[string]*list.Element, tier.MaxSize),
		lru:   list.New(),
	}
}

// Get looks up key and records the access. Expired entries are removed and
// reported as lookupExpired. The returned Entry is a copy taken after the
// access was recorded; the pointer identifies the stored entry for
// CompareAndDelete.
func (s *entryStore) Get(key string, now time.Time) (*Entry, Entry, lookupResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.items[key]
	if !ok {
		return nil, Entry{}, lookupMiss
	}
	e := elem.Value.(*Entry)
	if e.expired(now) {
		s.removeElement(elem)
		return nil, Entry{}, lookupExpired
	}
	e.AccessCount++
	e.LastAccessedAt = now
	s.lru.MoveToFront(elem)
	return e, *e, lookupHit
}

// Peek returns a copy of the entry without touching access metadata.
func (s *entryStore) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	return *elem.Value.(*Entry), true
}

// Put inserts or replaces the entry for e.Key. When the key is new and the
// tier is full the least recently accessed entry is evicted first and its
// key returned.
func (s *entryStore) Put(e *Entry) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Tier = s.tier.Name
	if elem, ok := s.items[e.Key]; ok {
		elem.Value = e
		s.lru.MoveToFront(elem)
		return "", false
	}
	return s.insert(e)
}

// PutIfAbsent inserts e only when the tier holds no entry for e.Key, live or
// expired, so a fill never replaces a value written in the meantime.
func (s *entryStore) PutIfAbsent(e *Entry) (victim string, evicted, inserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.Key]; ok {
		return "", false, false
	}
	e.Tier = s.tier.Name
	victim, evicted = s.insert(e)
	return victim, evicted, true
}

func (s *entryStore) insert(e *Entry) (string, bool) {
	var (
		victim  string
		evicted bool
	)
	if s.lru.Len() >= s.tier.MaxSize {
		if back := s.lru.Back(); back != nil {
			victim = back.Value.(*Entry).Key
			s.removeElement(back)
			evicted = true
		}
	}
	s.items[e.Key] = s.lru.PushFront(e)
	return victim, evicted
}

func (s *entryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

// CompareAndDelete removes key only while it still maps to e.
func (s *entryStore) CompareAndDelete(key string, e *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.items[key]
	if !ok || elem.Value.(*Entry) != e {
		return false
	}
	s.removeElement(elem)
	return true
}

func (s *entryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// OldestByAccess returns the key that the next eviction would remove.
func (s *entryStore) OldestByAccess() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	back := s.lru.Back()
	if back == nil {
		return "", false
	}
	return back.Value.(*Entry).Key, true
}

func (s *entryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, s.lru.Len())
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}

func (s *entryStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lru.Len()
	s.items = make(map[string]*list.Element, s.tier.MaxSize)
	s.lru.Init()
	return n
}

// Sweep removes expired entries, scanning from the least recently used end.
// The lock is released every sweepBatch entries. The pass stops early when
// the resume point was removed or replaced meanwhile, and also when it was
// read in between, since it is then at the front with nothing before it.
// The next sweep picks up the rest.
func (s *entryStore) Sweep(now time.Time) int {
	removed := 0
	s.mu.Lock()
	elem := s.lru.Back()
	for elem != nil {
		for n := 0; elem != nil && n < sweepBatch; n++ {
			prev := elem.Prev()
			if elem.Value.(*Entry).expired(now) {
				s.removeElement(elem)
				removed++
			}
			elem = prev
		}
		if elem == nil {
			break
		}
		resume := elem
		key := resume.Value.(*Entry).Key
		s.mu.Unlock()
		s.mu.Lock()
		if cur, ok := s.items[key]; !ok || cur != resume {
			break
		}
	}
	s.mu.Unlock()
	return removed
}

func (s *entryStore) removeElement(elem *list.Element) {
	s.lru.Remove(elem)
	delete(s.items, elem.Value.(*Entry).Key)
}
