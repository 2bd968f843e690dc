package impl

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
)

// cutTillLimits counts, per LSN, the readers that need the segments from
// that LSN on to stay.
type cutTillLimits struct {
	mu     sync.Mutex
	limits map[db.LSN]int
}

func newCutTillLimits() *cutTillLimits {
	return &cutTillLimits{limits: make(map[db.LSN]int)}
}

func (c *cutTillLimits) add(lsn db.LSN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits[lsn]++
}

func (c *cutTillLimits) remove(lsn db.LSN) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.limits[lsn]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(c.limits, lsn)
	} else {
		c.limits[lsn] = n - 1
	}
	return true
}

func (c *cutTillLimits) min() (db.LSN, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out db.LSN
	found := false
	for lsn := range c.limits {
		if !found || lsn.Less(out) {
			out = lsn
			found = true
		}
	}
	return out, found
}

func (w *walImpl) AddCutTillLimit(lsn db.LSN) {
	w.cutMu.RLock()
	defer w.cutMu.RUnlock()
	w.cutLimits.add(lsn)
}

func (w *walImpl) RemoveCutTillLimit(lsn db.LSN) error {
	w.cutMu.RLock()
	defer w.cutMu.RUnlock()
	if !w.cutLimits.remove(lsn) {
		return errors.Wrapf(db.ErrInvalidArgument, "no cut till limit at %s", lsn)
	}
	return nil
}

func (w *walImpl) CutTill(lsn db.LSN) (bool, error) {
	return w.CutAllSegmentsSmallerThan(lsn.Segment)
}

// CutAllSegmentsSmallerThan removes the segments below segment that are no
// longer needed. The bound is lowered to the open segment, the oldest cut
// till limit, the durable watermark, the last checkpoint and the oldest
// queued record.
func (w *walImpl) CutAllSegmentsSmallerThan(segment uint64) (bool, error) {
	if w.closed.Load() {
		return false, db.ErrClosed
	}

	w.cutMu.Lock()
	defer w.cutMu.Unlock()
	w.segmentMu.RLock()
	defer w.segmentMu.RUnlock()

	segment = min(segment, w.currentSegment.Load())
	if l, ok := w.cutLimits.min(); ok {
		segment = min(segment, l.Segment)
	}
	segment = min(segment, w.FlushedLSN().Segment)
	if cp, ok := w.master.lastCheckpoint(); ok {
		segment = min(segment, cp.Segment)
	}
	segment = min(segment, w.queue.first().segment)

	first, ok := w.segments.first()
	if !ok || segment <= first {
		return false, nil
	}

	errs := w.closeQueuedFiles(segment)

	removed := w.segments.removeBelow(segment)
	w.segCache.evictBelow(segment)
	w.bounds.removeBelow(segment)
	for _, seg := range removed {
		name := SegmentFileName(w.dir, w.storageName, seg)
		if size, err := w.env.GetFileSize(name); err == nil {
			w.logSize.Add(-int64(size))
		}
		if err := w.env.RemoveFile(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = errors.CombineErrors(errs, errors.Mark(errors.Wrapf(err, "remove segment %d", seg), db.ErrIO))
			continue
		}
		w.logger.Printf("segment %d removed", seg)
	}
	return len(removed) > 0, errs
}
