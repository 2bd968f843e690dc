package impl

import (
	"slices"
	"sync"

	"github.com/ls4154/gowal/db"
)

type listenerSet[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id uint64
	l  T
}

func (s *listenerSet[T]) add(l T) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, listenerEntry[T]{id: id, l: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = slices.DeleteFunc(s.entries, func(e listenerEntry[T]) bool {
			return e.id == id
		})
	}
}

// snapshot lets callers notify without holding the lock, so a listener may
// remove itself.
func (s *listenerSet[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.l
	}
	return out
}

type listeners struct {
	checkpointRequest listenerSet[db.CheckpointRequestListener]
	segmentOverflow   listenerSet[db.SegmentOverflowListener]
	lowDiskSpace      listenerSet[db.LowDiskSpaceListener]
}

func (ls *listeners) requestCheckpoint() {
	for _, l := range ls.checkpointRequest.snapshot() {
		l.RequestCheckpoint()
	}
}

func (ls *listeners) overflow(segment uint64) {
	for _, l := range ls.segmentOverflow.snapshot() {
		l.SegmentOverflow(segment)
	}
}

func (ls *listeners) lowDisk(info db.LowDiskSpaceInfo) {
	for _, l := range ls.lowDiskSpace.snapshot() {
		l.LowDiskSpace(info)
	}
}

func (w *walImpl) AddCheckpointRequestListener(l db.CheckpointRequestListener) func() {
	return w.listeners.checkpointRequest.add(l)
}

func (w *walImpl) AddSegmentOverflowListener(l db.SegmentOverflowListener) func() {
	return w.listeners.segmentOverflow.add(l)
}

func (w *walImpl) AddLowDiskSpaceListener(l db.LowDiskSpaceListener) func() {
	return w.listeners.lowDiskSpace.add(l)
}
