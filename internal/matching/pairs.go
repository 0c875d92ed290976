package matching

import (
	"sync"

	"github.com/winkmatch/backend/internal/models"
)

const pairKeySeparator = "|"

// PairKey returns the canonical key of an unordered user pair.
func PairKey(u1, u2 string) string {
	pair := models.CanonicalPair(u1, u2)
	return pair.UserA + pairKeySeparator + pair.UserB
}

// PairSet tracks user pairs that already have a match. It is rebuilt from the
// match store on every invocation and must not outlive it.
type PairSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewPairSet seeds a set with persisted pairs.
func NewPairSet(pairs []models.UserPair) *PairSet {
	s := &PairSet{keys: make(map[string]struct{}, len(pairs))}
	for _, p := range pairs {
		s.keys[PairKey(p.UserA, p.UserB)] = struct{}{}
	}
	return s
}

// Has reports whether the pair is already matched.
func (s *PairSet) Has(u1, u2 string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[PairKey(u1, u2)]
	return ok
}

// Reserve records the pair and reports whether it was absent.
func (s *PairSet) Reserve(u1, u2 string) bool {
	key := PairKey(u1, u2)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Release drops a reservation whose insert failed.
func (s *PairSet) Release(u1, u2 string) {
	s.mu.Lock()
	delete(s.keys, PairKey(u1, u2))
	s.mu.Unlock()
}

// Len returns the number of tracked pairs.
func (s *PairSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
