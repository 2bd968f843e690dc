package impl

import (
	"slices"
	"sync"
)

// segmentSet holds the ids of the segments that contain records, in order.
type segmentSet struct {
	mu  sync.RWMutex
	ids []uint64
}

func (s *segmentSet) add(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, found := slices.BinarySearch(s.ids, id)
	if !found {
		s.ids = slices.Insert(s.ids, i, id)
	}
}

func (s *segmentSet) contains(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := slices.BinarySearch(s.ids, id)
	return found
}

func (s *segmentSet) first() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ids) == 0 {
		return 0, false
	}
	return s.ids[0], true
}

func (s *segmentSet) last() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ids) == 0 {
		return 0, false
	}
	return s.ids[len(s.ids)-1], true
}

func (s *segmentSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *segmentSet) all() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

// from returns the ids not smaller than id.
func (s *segmentSet) from(id uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, _ := slices.BinarySearch(s.ids, id)
	return slices.Clone(s.ids[i:])
}

// removeBelow drops and returns the ids smaller than id.
func (s *segmentSet) removeBelow(id uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, _ := slices.BinarySearch(s.ids, id)
	removed := slices.Clone(s.ids[:i])
	s.ids = slices.Delete(s.ids, 0, i)
	return removed
}
