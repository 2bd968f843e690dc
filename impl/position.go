package impl

import (
	"github.com/ls4154/gowal/log"
	"github.com/ls4154/gowal/util"
)

// assignPositions gives every queued record without a position its place in
// the segment file, walking back from the tail to the last positioned record.
func (w *walImpl) assignPositions() {
	w.assignMu.Lock()
	defer w.assignMu.Unlock()

	var pending []*walRecord
	r := w.queue.last()
	for r != nil && !r.assigned() {
		pending = append(pending, r)
		r = r.prev.Load()
	}
	util.Assert(r != nil)

	prev := r
	for i := len(pending) - 1; i >= 0; i-- {
		rec := pending[i]
		rec.position.Store(calculatePosition(rec, prev, int64(w.pageSize)))
		prev = rec
	}
}

// calculatePosition sets rec.distance and rec.diskSize and returns the
// position of rec given its positioned predecessor prev.
func calculatePosition(rec, prev *walRecord, pageSize int64) int64 {
	prevPos := prev.position.Load()

	switch {
	case prev.kind == kindStart || prev.kind == kindMilestone:
		if rec.kind == kindMilestone {
			rec.distance = 0
			if prev.segment != rec.segment {
				rec.diskSize = log.RecordsOffset
				return log.RecordsOffset
			}
			rec.diskSize = prev.diskSize
			return prevPos
		}
		util.Assertf(prev.segment == rec.segment, "payload in segment %d follows segment %d", rec.segment, prev.segment)
		distance, diskSize := pageAlignedLayout(rec.frameSize(), pageSize)
		rec.distance = distance
		rec.diskSize = diskSize + prev.diskSize
		return prevPos

	case rec.kind == kindMilestone:
		end := prevPos + prev.distance
		pageOffset := end % pageSize
		rec.distance = 0

		if prev.segment != rec.segment {
			// the tail of the previous segment is not charged to the new one
			rec.diskSize = log.RecordsOffset
			return log.RecordsOffset
		}
		if pageOffset > log.RecordsOffset {
			nextPage := (end/pageSize + 1) * pageSize
			rec.diskSize = nextPage - end + log.RecordsOffset
			return nextPage + log.RecordsOffset
		}
		rec.diskSize = log.RecordsOffset
		return end

	default:
		util.Assertf(prev.segment == rec.segment, "payload in segment %d follows segment %d", rec.segment, prev.segment)
		start := prevPos + prev.distance
		freeSpace := pageSize - start%pageSize
		startOffset := pageSize - freeSpace
		length := rec.frameSize()

		if length < freeSpace {
			rec.distance = length
			rec.diskSize = length
		} else {
			maxRecordSize := pageSize - log.RecordsOffset
			rest := length - freeSpace
			pages := rest / maxRecordSize
			offset := rest - pages*maxRecordSize
			rec.distance = freeSpace + pages*pageSize + offset + log.RecordsOffset
			rec.diskSize = rec.distance
			if offset == 0 {
				rec.diskSize -= log.RecordsOffset
			}
		}
		if startOffset == log.RecordsOffset {
			rec.diskSize += log.RecordsOffset
		}
		return start
	}
}

// pageAlignedLayout returns distance and diskSize of a record of length
// bytes that starts right after a page header. The header itself is not
// included in diskSize.
func pageAlignedLayout(length, pageSize int64) (int64, int64) {
	maxRecordSize := pageSize - log.RecordsOffset
	pages := length / maxRecordSize
	offset := length - pages*maxRecordSize

	var distance int64
	if pages == 0 {
		distance = length
	} else {
		distance = (pages-1)*pageSize + offset + maxRecordSize + log.RecordsOffset
	}
	diskSize := distance
	if offset == 0 {
		diskSize -= log.RecordsOffset
	}
	return distance, diskSize
}
