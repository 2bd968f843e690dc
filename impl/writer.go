package impl

import (
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/record"
)

func (w *walImpl) Append(rec db.Record) (db.LSN, error) {
	r, err := w.logRecord(rec)
	if r == nil {
		return db.NoLSN, err
	}
	return r.lsn(), err
}

// logRecord queues rec and assigns its LSN. The returned error may come
// from backpressure after the record was queued, in which case the record
// is returned as well.
func (w *walImpl) logRecord(rec db.Record) (*walRecord, error) {
	if err := w.checkWritable(); err != nil {
		return nil, err
	}
	body, err := record.Encode(rec, w.options.Compression)
	if err != nil {
		return nil, err
	}
	r := newPayloadRecord(rec, body)

	w.segmentMu.RLock()
	if w.closed.Load() {
		w.segmentMu.RUnlock()
		return nil, db.ErrClosed
	}
	segment := w.currentSegment.Load()
	r.segment = segment
	w.queue.push(r)
	w.assignPositions()
	w.advanceEnd(r.lsn())

	segSize := w.segmentSize.Add(r.diskSize)
	w.logSize.Add(r.diskSize)
	if segSize == r.diskSize {
		w.segments.add(segment)
	}
	w.segmentMu.RUnlock()

	w.metrics.recordsAppended.inc()
	if w.queueSize.Add(r.diskSize) > w.options.MaxUnflushedSize {
		if err := w.makeRoomForWrite(); err != nil {
			return r, err
		}
	}

	w.checkSizeLimits(segment, segSize)
	return r, nil
}

// makeRoomForWrite throttles the caller while the unflushed records exceed
// MaxUnflushedSize.
func (w *walImpl) makeRoomForWrite() error {
	w.metrics.backpressureWaits.inc()
	<-w.currentFlushLatch()
	if w.queueSize.Load() <= w.options.MaxUnflushedSize {
		return nil
	}
	return w.bg.Flush(false)
}

func (w *walImpl) checkSizeLimits(segment uint64, segSize int64) {
	nSegments := w.segments.len()
	limit := w.options.LogSizeHardLimit
	if limit < 0 {
		limit = w.softLimit.Load()
	}
	if nSegments > 1 && (w.options.KeepSingleSegment || (limit >= 0 && w.logSize.Load() > limit)) {
		w.listeners.requestCheckpoint()
	}

	if segSize > w.options.MaxSegmentSize {
		w.listeners.overflow(segment)
		if err := w.appendSegment(segment + 1); err != nil {
			w.logger.Printf("segment overflow rotation failed: %v", err)
		}
	}
}

func (w *walImpl) LogAtomicUnitStart(rollbackSupported bool, unitID int64, metadata []byte) (db.LSN, error) {
	return w.Append(&db.AtomicUnitStart{
		RollbackSupported: rollbackSupported,
		UnitID:            unitID,
		Metadata:          metadata,
	})
}

func (w *walImpl) LogAtomicUnitEnd(unitID int64, rollback bool, metadata map[string][]byte) (db.LSN, error) {
	return w.Append(&db.AtomicUnitEnd{
		UnitID:   unitID,
		Rollback: rollback,
		Metadata: metadata,
	})
}

func (w *walImpl) LogPageOperation(unitID, fileID, pageIndex int64, payload []byte) (db.LSN, error) {
	return w.Append(&db.PageOperation{
		UnitID:    unitID,
		FileID:    fileID,
		PageIndex: pageIndex,
		Payload:   payload,
	})
}

func (w *walImpl) LogFuzzyCheckpointStart(flushedLSN db.LSN, metadata []byte) (db.LSN, error) {
	prev, _ := w.LastCheckpoint()
	return w.Append(&db.FuzzyCheckpointStart{
		PreviousCheckpoint: prev,
		FlushedLSN:         flushedLSN,
		Metadata:           metadata,
	})
}

func (w *walImpl) LogFuzzyCheckpointEnd() (db.LSN, error) {
	return w.appendAndFlush(&db.FuzzyCheckpointEnd{})
}

func (w *walImpl) LogFullCheckpointStart() (db.LSN, error) {
	prev, _ := w.LastCheckpoint()
	return w.Append(&db.FullCheckpointStart{PreviousCheckpoint: prev})
}

func (w *walImpl) LogFullCheckpointEnd() (db.LSN, error) {
	return w.appendAndFlush(&db.CheckpointEnd{})
}

// appendAndFlush makes a checkpoint end durable together with its start.
func (w *walImpl) appendAndFlush(rec db.Record) (db.LSN, error) {
	lsn, err := w.Append(rec)
	if err != nil {
		return lsn, err
	}
	return lsn, w.Flush()
}
