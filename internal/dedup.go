package internal

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultDedupCapacity bounds the per-session digest cache.
const DefaultDedupCapacity = 50

// ContentHash digests text for dedup purposes. xxhash is not cryptographic;
// collisions only cost a skipped capture, so speed wins here.
func ContentHash(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}

// SessionScope suppresses repeated captures of identical content within one
// process session. It is a best-effort filter: the cache is bounded, lives
// in one process and is never shared, so a new session forgets everything.
type SessionScope struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = most recent
	entries  map[string]*list.Element // digest -> order element
}

func NewSessionScope(capacity int) *SessionScope {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &SessionScope{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// IsDuplicate reports whether the digest was remembered earlier in this
// scope, refreshing its recency on a hit. Remembering is a separate step so
// callers decide policy.
func (s *SessionScope) IsDuplicate(digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[digest]
	if ok {
		s.order.MoveToFront(elem)
	}
	return ok
}

// Remember inserts the digest, evicting the least recently used entry when
// the cache is full.
func (s *SessionScope) Remember(digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[digest]; ok {
		s.order.MoveToFront(elem)
		return
	}

	for s.order.Len() >= s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(string))
	}

	s.entries[digest] = s.order.PushFront(digest)
}

// Len reports the current cache size.
func (s *SessionScope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
