package impl

import (
	"runtime"
	"sync/atomic"

	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/log"
)

type recordKind uint8

const (
	kindPayload recordKind = iota
	// kindStart opens the first segment of a session.
	kindStart
	// kindMilestone closes a write batch or a segment. It takes no space of
	// its own but moves the next payload to a fresh page.
	kindMilestone
)

// walRecord is a queue node. segment, kind, rec and body are fixed before the
// node is published; distance and diskSize are set before position.
type walRecord struct {
	kind    recordKind
	segment uint64
	rec     db.Record
	body    []byte

	updatesMasterRecord bool

	position atomic.Int64
	// distance is the span from position to the start of the next record,
	// page headers included.
	distance int64
	// diskSize is the number of file bytes this record accounts for.
	diskSize int64

	// owned by the disk writer
	written bool

	next atomic.Pointer[walRecord]
	prev atomic.Pointer[walRecord]
}

func newPayloadRecord(rec db.Record, body []byte) *walRecord {
	r := &walRecord{
		kind:                kindPayload,
		rec:                 rec,
		body:                body,
		updatesMasterRecord: db.UpdatesMasterRecord(rec),
	}
	r.position.Store(-1)
	return r
}

func newMilestoneRecord(segment uint64) *walRecord {
	r := &walRecord{kind: kindMilestone, segment: segment}
	r.position.Store(-1)
	return r
}

func newStartRecord(segment uint64) *walRecord {
	r := &walRecord{kind: kindStart, segment: segment, diskSize: log.RecordsOffset}
	r.position.Store(log.RecordsOffset)
	return r
}

func (r *walRecord) assigned() bool {
	return r.position.Load() >= 0
}

func (r *walRecord) lsn() db.LSN {
	return db.LSN{Segment: r.segment, Position: r.position.Load()}
}

// frameSize is the size of the record in the record stream.
func (r *walRecord) frameSize() int64 {
	return int64(log.SerializedSize(len(r.body)))
}

// recordQueue is a linked list with any number of producers and a single
// consumer, the disk writer. It always holds at least one record.
type recordQueue struct {
	head atomic.Pointer[walRecord]
	tail atomic.Pointer[walRecord]
}

func (q *recordQueue) init(first *walRecord) {
	q.head.Store(first)
	q.tail.Store(first)
}

func (q *recordQueue) push(r *walRecord) {
	for {
		t := q.tail.Load()
		r.prev.Store(t)
		if q.tail.CompareAndSwap(t, r) {
			t.next.Store(r)
			return
		}
	}
}

func (q *recordQueue) first() *walRecord {
	return q.head.Load()
}

func (q *recordQueue) last() *walRecord {
	return q.tail.Load()
}

// poll drops the head record unless it is the only one left.
func (q *recordQueue) poll() bool {
	h := q.head.Load()
	n := h.next.Load()
	if n == nil {
		return false
	}
	n.prev.Store(nil)
	q.head.Store(n)
	return true
}

// nextOf returns the successor of r, which must not be the tail, waiting
// for a producer that has swung the tail but not linked the node yet.
func nextOf(r *walRecord) *walRecord {
	for {
		if n := r.next.Load(); n != nil {
			return n
		}
		runtime.Gosched()
	}
}
