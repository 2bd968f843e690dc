package impl

import (
	"slices"
	"sync"

	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/log"
)

// boundaryPages is the minimal distance, in pages, between two indexed
// record starts of a segment.
const boundaryPages = 64

// boundaryIndex keeps a sparse set of known record start positions per
// segment, so that disk reads can start parsing at a record boundary close
// to the requested LSN instead of at the beginning of the segment.
type boundaryIndex struct {
	mu       sync.Mutex
	interval int64
	bySeg    map[uint64][]int64
}

func newBoundaryIndex(pageSize int) *boundaryIndex {
	return &boundaryIndex{
		interval: int64(pageSize) * boundaryPages,
		bySeg:    make(map[uint64][]int64),
	}
}

// add records that a record starts at lsn. Positions closer than the index
// interval to an indexed neighbour are dropped.
func (b *boundaryIndex) add(lsn db.LSN) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos := b.bySeg[lsn.Segment]
	i, found := slices.BinarySearch(pos, lsn.Position)
	if found {
		return
	}
	lo := int64(log.RecordsOffset)
	if i > 0 {
		lo = pos[i-1]
	}
	if lsn.Position-lo < b.interval {
		return
	}
	if i < len(pos) && pos[i]-lsn.Position < b.interval {
		return
	}
	b.bySeg[lsn.Segment] = slices.Insert(pos, i, lsn.Position)
}

// floor returns the largest known record start not after lsn. The start of
// the record stream is always a boundary.
func (b *boundaryIndex) floor(lsn db.LSN) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos := b.bySeg[lsn.Segment]
	i, found := slices.BinarySearch(pos, lsn.Position)
	if found {
		return pos[i]
	}
	if i == 0 {
		return log.RecordsOffset
	}
	return pos[i-1]
}

func (b *boundaryIndex) removeBelow(segment uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for seg := range b.bySeg {
		if seg < segment {
			delete(b.bySeg, seg)
		}
	}
}
