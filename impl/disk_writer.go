package impl

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/log"
	"github.com/ls4154/gowal/util"
)

// directIOAlignment is the memory alignment of the page buffers used with
// direct I/O.
const directIOAlignment = 4096

// writtenMark describes how far the segment files have been written.
// lsn is the last record that is completely on disk, end is the file size of
// segment.
type writtenMark struct {
	lsn     db.LSN
	segment uint64
	end     int64
}

type queuedFile struct {
	segment uint64
	file    db.WritableFile
}

// diskWriter moves queued records into page buffers and hands full buffers
// to the io executor. It is only used by the writer goroutine.
type diskWriter struct {
	w *walImpl

	file        db.WritableFile
	fileSegment uint64
	// position is the file offset of the first byte of cur
	position int64

	bufs [2]*log.PageBuffer
	cur  *log.PageBuffer
	next int

	bufLast    db.LSN
	hasBufLast bool
	checkpoint db.LSN
	lastFsync  time.Time
}

func newDiskWriter(w *walImpl) *diskWriter {
	dw := &diskWriter{w: w, lastFsync: time.Now()}
	size := w.options.WriteBufferSize
	for i := range dw.bufs {
		var data []byte
		if w.options.DirectIO {
			data = util.AlignedBuffer(size, directIOAlignment)
		} else {
			data = make([]byte, size)
		}
		dw.bufs[i] = log.NewPageBuffer(data, w.pageSize)
	}
	return dw
}

// writeRecords runs one cycle of the writer. fullWrite forces the records
// queued so far to be written out; forceSync also makes them durable.
func (dw *diskWriter) writeRecords(forceSync, fullWrite bool) error {
	w := dw.w
	release := w.startFlushCycle()
	defer release()
	w.metrics.flushCycles.inc()

	if err := w.GetBackgroundError(); err != nil {
		return err
	}

	makeFsync := forceSync || time.Since(dw.lastFsync) >= w.options.FsyncInterval
	queueSize := w.queueSize.Load()
	if queueSize <= 0 && !fullWrite && !makeFsync {
		return nil
	}

	var boundary *walRecord
	if makeFsync || fullWrite {
		boundary = w.logMilestone()
	} else {
		boundary = w.queue.last()
		if !boundary.assigned() {
			w.assignPositions()
		}
	}

	r := w.queue.first()
	for {
		if r.kind == kindPayload && !r.written {
			if err := dw.writeRecord(r); err != nil {
				return err
			}
		}
		if r == boundary {
			break
		}
		next := nextOf(r)
		w.queue.poll()
		r = next
	}

	if (makeFsync || fullWrite) && dw.cur != nil {
		if err := dw.submitBuffer(); err != nil {
			return err
		}
	}

	if interval := w.options.SegmentRotationInterval; interval > 0 && queueSize > 0 &&
		time.Since(time.Unix(0, w.segmentAddedAt.Load())) >= interval {
		if err := w.appendSegment(w.currentSegment.Load() + 1); err != nil {
			return err
		}
	}

	if makeFsync {
		if err := w.io.wait(); err != nil {
			return err
		}
		file, checkpoint := dw.file, dw.checkpoint
		dw.checkpoint = db.NoLSN
		w.io.submit(func() error {
			return w.syncAndCloseFiles(file, checkpoint)
		})
		dw.lastFsync = time.Now()
	}
	return nil
}

func (dw *diskWriter) writeRecord(r *walRecord) error {
	w := dw.w
	lsn := r.lsn()

	if dw.file == nil || dw.fileSegment != lsn.Segment {
		if err := dw.openSegment(lsn.Segment); err != nil {
			return err
		}
	}
	if dw.cur == nil {
		dw.pickBuffer()
	}
	if at := dw.position + int64(dw.cur.NextOffset()); at != lsn.Position {
		return errors.AssertionFailedf("record %s would be written at position %d", lsn, at)
	}

	frame := log.SerializedSize(len(r.body))
	done := 0
	for {
		done = dw.cur.WriteRecord(r.body, done)
		if done == frame {
			break
		}
		if err := dw.submitBuffer(); err != nil {
			return err
		}
		dw.pickBuffer()
	}

	w.bounds.add(lsn)
	dw.bufLast = lsn
	dw.hasBufLast = true
	if r.updatesMasterRecord {
		dw.checkpoint = lsn
	}
	w.queueSize.Add(-r.diskSize)
	r.written = true
	r.body = nil

	if dw.cur.Full() {
		return dw.submitBuffer()
	}
	return nil
}

func (dw *diskWriter) pickBuffer() {
	dw.cur = dw.bufs[dw.next]
	dw.cur.Reset()
	dw.next = (dw.next + 1) % len(dw.bufs)
}

// openSegment finishes the file being written and starts segment.
func (dw *diskWriter) openSegment(segment uint64) error {
	w := dw.w
	if dw.file != nil {
		if dw.cur != nil {
			if err := dw.submitBuffer(); err != nil {
				return err
			}
		}
		if err := w.io.wait(); err != nil {
			return err
		}
		w.queueFileForClose(dw.fileSegment, dw.file)
		dw.file = nil
	}

	name := SegmentFileName(w.dir, w.storageName, segment)
	var (
		f   db.WritableFile
		err error
	)
	if w.options.DirectIO {
		f, err = w.env.NewDirectWritableFile(name)
	} else {
		f, err = w.env.NewWritableFile(name)
	}
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "create segment %d", segment), db.ErrIO)
	}

	dw.file = f
	dw.fileSegment = segment
	dw.position = 0
	w.logger.Printf("writing segment %d", segment)
	return nil
}

// submitBuffer seals cur and queues it for writing. At most one write is in
// flight, so the other buffer is free once this returns.
func (dw *diskWriter) submitBuffer() error {
	w := dw.w
	buf := dw.cur
	dw.cur = nil

	data := buf.Seal(w.cipher, dw.fileSegment, dw.position/int64(w.pageSize))
	if data == nil {
		return nil
	}
	if err := w.io.wait(); err != nil {
		return err
	}

	file, segment := dw.file, dw.fileSegment
	end := dw.position + int64(len(data))
	last, hasLast := dw.bufLast, dw.hasBufLast
	pages := len(data) / w.pageSize
	w.io.submit(func() error {
		if _, err := file.Write(data); err != nil {
			return errors.Mark(errors.Wrapf(err, "write segment %d", segment), db.ErrIO)
		}
		w.metrics.bytesWritten.add(uint64(len(data)))
		w.metrics.pagesWritten.add(uint64(pages))
		w.advanceWritten(segment, end, last, hasLast)
		return nil
	})

	dw.position = end
	dw.hasBufLast = false
	return nil
}

// close syncs and closes the segment being written. Buffered records must
// have been submitted by a forced cycle before.
func (dw *diskWriter) close() error {
	if dw.file == nil {
		return nil
	}
	var err error
	if dw.w.options.SyncOnFlush {
		err = dw.file.Sync()
	}
	err = errors.CombineErrors(err, dw.file.Close())
	dw.file = nil
	return err
}

func (w *walImpl) advanceWritten(segment uint64, end int64, last db.LSN, hasLast bool) {
	m := &writtenMark{lsn: w.writtenUpTo.Load().lsn, segment: segment, end: end}
	if hasLast {
		m.lsn = last
	}
	w.writtenUpTo.Store(m)
}

func (w *walImpl) queueFileForClose(segment uint64, f db.WritableFile) {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	w.closeQueue = append(w.closeQueue, queuedFile{segment: segment, file: f})
}

// closeQueuedFiles syncs and closes the finished segment files below
// segment.
func (w *walImpl) closeQueuedFiles(segment uint64) error {
	w.closeMu.Lock()
	var closing []queuedFile
	kept := w.closeQueue[:0]
	for _, q := range w.closeQueue {
		if q.segment < segment {
			closing = append(closing, q)
		} else {
			kept = append(kept, q)
		}
	}
	w.closeQueue = kept
	w.closeMu.Unlock()

	var errs error
	for _, q := range closing {
		if w.options.SyncOnFlush {
			if err := q.file.Sync(); err != nil {
				errs = errors.CombineErrors(errs, errors.Mark(errors.Wrapf(err, "sync segment %d", q.segment), db.ErrIO))
			}
			w.metrics.fsyncs.inc()
		}
		if err := q.file.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Mark(errors.Wrapf(err, "close segment %d", q.segment), db.ErrIO))
		}
	}
	return errs
}

// syncAndCloseFiles runs on the io executor after a batch that must become
// durable.
func (w *walImpl) syncAndCloseFiles(current db.WritableFile, checkpoint db.LSN) error {
	if err := w.closeQueuedFiles(^uint64(0)); err != nil {
		return err
	}
	if current != nil && w.options.SyncOnFlush {
		if err := current.Sync(); err != nil {
			return errors.Mark(errors.Wrap(err, "sync segment"), db.ErrIO)
		}
		w.metrics.fsyncs.inc()
	}

	flushed := w.writtenUpTo.Load().lsn
	w.flushedLSN.Store(&flushed)

	if !checkpoint.IsZero() {
		if err := w.master.update(checkpoint); err != nil {
			return err
		}
	}

	w.waiters.fire(flushed)
	w.checkFreeSpace()
	return nil
}

func (w *walImpl) checkFreeSpace() {
	free, err := w.env.FreeSpace(w.dir)
	if err != nil {
		w.logger.Printf("free space check failed: %v", err)
		return
	}

	limit := w.options.FreeSpaceLimit
	if w.options.LogSizeHardLimit < 0 && free > limit {
		w.softLimit.Store(w.logSize.Load() + (free-limit)/2)
	}
	if free < limit {
		w.logger.Printf("low disk space: %d bytes free, limit %d", free, limit)
		w.listeners.lowDisk(db.LowDiskSpaceInfo{FreeSpace: free, FreeSpaceLimit: limit})
	}
}
