package impl

import (
	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/log"
	"github.com/ls4154/gowal/record"
)

// Read returns up to limit records starting with the one at lsn.
func (w *walImpl) Read(lsn db.LSN, limit int) ([]db.Entry, error) {
	return w.read(lsn, limit, false)
}

// Next returns up to limit records following the one at lsn.
func (w *walImpl) Next(lsn db.LSN, limit int) ([]db.Entry, error) {
	return w.read(lsn, limit, true)
}

func (w *walImpl) read(lsn db.LSN, limit int, after bool) ([]db.Entry, error) {
	if w.closed.Load() {
		return nil, db.ErrClosed
	}
	limit = max(limit, 1)

	w.AddCutTillLimit(lsn)
	defer w.RemoveCutTillLimit(lsn)

	begin, ok := w.Begin()
	if !ok || lsn.Less(begin) {
		if after {
			return nil, errors.Wrapf(db.ErrInvalidArgument, "%s is before the start of the log", lsn)
		}
		return nil, nil
	}
	end := w.End()
	if c := lsn.Compare(end); c > 0 || (after && c == 0) {
		return nil, nil
	}

	entries, found, err := w.readFromQueue(lsn, limit, after)
	if found || err != nil {
		if err != nil && !after {
			return nil, nil
		}
		return entries, err
	}

	if err := w.waitWritten(lsn, after); err != nil {
		return nil, err
	}
	entries, err = w.readFromDisk(lsn, limit, after)
	if err != nil && !after && errors.Is(err, db.ErrInvalidArgument) {
		return nil, nil
	}
	return entries, err
}

// readFromQueue serves records that are still queued. found is false when
// lsn lies before the queued records.
func (w *walImpl) readFromQueue(lsn db.LSN, limit int, after bool) ([]db.Entry, bool, error) {
	var out []db.Entry
	found := false
	seenBefore := false

	for r := w.queue.first(); r != nil; r = r.next.Load() {
		pos := r.position.Load()
		if pos < 0 {
			break
		}
		rl := db.LSN{Segment: r.segment, Position: pos}

		if !found {
			c := rl.Compare(lsn)
			if c < 0 || (c == 0 && r.kind != kindPayload) {
				seenBefore = true
				continue
			}
			if c > 0 {
				if !seenBefore {
					return nil, false, nil
				}
				return nil, true, errors.Wrapf(db.ErrInvalidArgument, "no record at %s", lsn)
			}
			found = true
			if after {
				continue
			}
		}

		if r.kind != kindPayload {
			continue
		}
		out = append(out, db.Entry{LSN: rl, Record: r.rec})
		if len(out) == limit {
			break
		}
	}
	return out, found, nil
}

// waitWritten blocks until the record at lsn, or with after the one
// following it, has been written to its segment file.
func (w *walImpl) waitWritten(lsn db.LSN, after bool) error {
	isWritten := func() bool {
		c := lsn.Compare(w.writtenUpTo.Load().lsn)
		return c < 0 || (!after && c == 0)
	}

	for !isWritten() {
		<-w.currentFlushLatch()
		if isWritten() {
			return nil
		}
		if err := w.bg.Flush(false); err != nil {
			return err
		}
		if err := w.io.wait(); err != nil {
			return err
		}
	}
	return nil
}

// readFromDisk parses the segment of lsn from the closest known record
// boundary and requires a record to start exactly at lsn. A miss yields
// db.ErrInvalidArgument.
func (w *walImpl) readFromDisk(lsn db.LSN, limit int, after bool) ([]db.Entry, error) {
	var out []db.Entry
	mark := w.writtenUpTo.Load()
	matched := false

	for _, segment := range w.segments.from(lsn.Segment) {
		if segment > mark.segment {
			break
		}
		pos := int64(log.RecordsOffset)
		if segment == lsn.Segment {
			pos = w.bounds.floor(lsn)
		}

		done, err := w.scanSegment(segment, pos, mark, func(entryLSN db.LSN, body []byte) (bool, error) {
			if !matched {
				if segment == lsn.Segment {
					w.bounds.add(entryLSN)
				}
				switch c := entryLSN.Compare(lsn); {
				case c < 0:
					return true, nil
				case c > 0:
					return false, errors.Wrapf(db.ErrInvalidArgument, "no record at %s", lsn)
				}
				matched = true
				if after {
					return true, nil
				}
			}
			rec, err := record.Decode(body)
			if err != nil {
				return false, errors.Wrapf(err, "decode record at %s", entryLSN)
			}
			out = append(out, db.Entry{LSN: entryLSN, Record: rec})
			return len(out) < limit, nil
		})
		if err != nil {
			if errors.Is(err, db.ErrCorruption) {
				w.logger.Printf("stopped reading segment %d: %v", segment, err)
			}
			return out, err
		}
		if !matched {
			return nil, errors.Wrapf(db.ErrInvalidArgument, "no record at %s", lsn)
		}
		if done {
			break
		}
	}
	return out, nil
}

// scanSegment feeds the records of segment from pos to fn. It reports
// whether fn asked to stop.
func (w *walImpl) scanSegment(segment uint64, pos int64, mark *writtenMark,
	fn func(lsn db.LSN, body []byte) (bool, error)) (bool, error) {
	size, err := w.env.GetFileSize(SegmentFileName(w.dir, w.storageName, segment))
	if err != nil {
		return false, errors.Mark(errors.Wrapf(err, "stat segment %d", segment), db.ErrIO)
	}
	limit := int64(size)
	if segment == mark.segment {
		limit = min(limit, mark.end)
	}

	h, err := w.segCache.get(segment)
	if err != nil {
		return false, err
	}
	defer w.segCache.release(h)

	var fnErr error
	stopped := false
	r := log.NewReader(h.Value(), segment, w.pageSize, limit, w.cipher)
	err = r.Scan(pos, func(p int64, body []byte) bool {
		var cont bool
		cont, fnErr = fn(db.LSN{Segment: segment, Position: p}, body)
		stopped = !cont
		return cont
	})
	if err != nil {
		return false, err
	}
	return stopped, fnErr
}
