package impl

import (
	"io"
	stdlog "log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/log"
)

const segmentCacheSize = 16

type walImpl struct {
	dir         string
	storageName string
	options     db.Options
	env         db.Env
	logger      db.Logger
	infoLog     io.Closer
	cipher      *log.PageCipher
	pageSize    int
	metrics     *walMetrics

	fileLock db.FileLock

	queue    recordQueue
	assignMu sync.Mutex
	end      atomic.Pointer[db.LSN]

	// segmentMu is held exclusively while the current segment changes
	segmentMu      sync.RWMutex
	currentSegment atomic.Uint64
	segmentAddedAt atomic.Int64
	segments       segmentSet
	segmentSize    atomic.Int64
	logSize        atomic.Int64
	queueSize      atomic.Int64
	softLimit      atomic.Int64

	// cutMu is held exclusively while segments are removed
	cutMu     sync.RWMutex
	cutLimits *cutTillLimits

	writtenUpTo atomic.Pointer[writtenMark]
	flushedLSN  atomic.Pointer[db.LSN]
	flushLatch  atomic.Pointer[chan struct{}]

	closeMu    sync.Mutex
	closeQueue []queuedFile

	master    *masterRecord
	waiters   waiterQueue
	listeners listeners
	segCache  *segmentCache
	bounds    *boundaryIndex

	dw *diskWriter
	io *ioExecutor
	bg *bgWork

	bgErrMu sync.Mutex
	bgErr   error

	closed atomic.Bool
}

func Open(options *db.Options, dir, storageName string) (db.WAL, error) {
	opt, err := validateOption(options)
	if err != nil {
		return nil, err
	}
	if storageName == "" {
		return nil, errors.Wrap(db.ErrInvalidArgument, "empty storage name")
	}

	env := opt.Env
	if err := env.CreateDir(dir); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create %s", dir), db.ErrIO)
	}
	lock, err := env.LockFile(LockFileName(dir, storageName))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "lock wal"), db.ErrIO)
	}

	w := &walImpl{
		dir:         dir,
		storageName: storageName,
		options:     *opt,
		env:         env,
		logger:      opt.Logger,
		pageSize:    opt.PageSize,
		fileLock:    lock,
		cutLimits:   newCutTillLimits(),
	}
	if err := w.init(); err != nil {
		if w.bg != nil {
			_ = w.Close()
		} else {
			w.releaseResources()
		}
		return nil, err
	}
	return w, nil
}

func (w *walImpl) init() error {
	if w.logger == nil {
		logger, f, err := openInfoLog(w.env, w.dir, w.storageName)
		if err != nil {
			return err
		}
		w.logger, w.infoLog = logger, f
	}

	if len(w.options.EncryptionKey) > 0 {
		c, err := log.NewPageCipher(w.options.EncryptionKey, w.options.EncryptionIV)
		if err != nil {
			return err
		}
		w.cipher = c
	}

	metrics, err := newWALMetrics(w, w.options.MetricsRegisterer)
	if err != nil {
		return err
	}
	w.metrics = metrics

	w.master, err = openMasterRecord(w.env, MasterRecordFileName(w.dir, w.storageName))
	if err != nil {
		return err
	}
	if err := w.scanSegments(); err != nil {
		return err
	}

	last, _ := w.segments.last()
	current := last + 1
	w.currentSegment.Store(current)
	w.segmentAddedAt.Store(time.Now().UnixNano())
	w.softLimit.Store(-1)

	// everything in earlier sessions is on disk
	durable := db.LSN{Segment: current, Position: 0}
	w.writtenUpTo.Store(&writtenMark{lsn: durable, segment: current})
	w.flushedLSN.Store(&durable)
	noLSN := db.NoLSN
	w.end.Store(&noLSN)
	done := make(chan struct{})
	close(done)
	w.flushLatch.Store(&done)

	w.queue.init(newStartRecord(current))
	w.segCache = newSegmentCache(w.dir, w.storageName, w.env, segmentCacheSize)
	w.bounds = newBoundaryIndex(w.pageSize)

	w.dw = newDiskWriter(w)
	w.io = newIOExecutor(w.RecordBackgroundError)
	w.io.Run()
	w.bg = w.newBgWork(w.dw)
	w.bg.Run()

	if _, err := w.Append(&db.Empty{}); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	w.logger.Printf("wal %s opened: segment %d, %d existing segments, %d bytes",
		w.storageName, current, w.segments.len()-1, w.logSize.Load())
	return nil
}

func openInfoLog(env db.Env, dir, storage string) (db.Logger, io.Closer, error) {
	name := InfoLogFileName(dir, storage)
	if env.FileExists(name) {
		_ = env.RenameFile(name, name+".old")
	}
	f, err := env.NewWritableFile(name)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrap(err, "create info log"), db.ErrIO)
	}
	return stdlog.New(f, "", stdlog.LstdFlags|stdlog.Lmicroseconds), f, nil
}

func (w *walImpl) scanSegments() error {
	children, err := w.env.GetChildren(w.dir)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "list %s", w.dir), db.ErrIO)
	}
	for _, name := range children {
		ftype, segment, ok := ParseFileName(w.storageName, name)
		if !ok || ftype != FileTypeSegment {
			continue
		}
		size, err := w.env.GetFileSize(SegmentFileName(w.dir, w.storageName, segment))
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "stat segment %d", segment), db.ErrIO)
		}
		w.segments.add(segment)
		w.logSize.Add(int64(size))
	}
	return nil
}

func (w *walImpl) RecordBackgroundError(err error) {
	w.bgErrMu.Lock()
	defer w.bgErrMu.Unlock()
	if w.bgErr == nil {
		w.bgErr = err
	}
}

func (w *walImpl) GetBackgroundError() error {
	w.bgErrMu.Lock()
	defer w.bgErrMu.Unlock()
	return w.bgErr
}

func (w *walImpl) writerStoppedError() error {
	if err := w.GetBackgroundError(); err != nil {
		return errors.Wrap(err, "wal writer stopped")
	}
	return db.ErrClosed
}

func errWriterShutdownTimeout(timeout time.Duration) error {
	return errors.Newf("wal writer did not stop within %s", timeout)
}

func (w *walImpl) checkWritable() error {
	if w.closed.Load() {
		return db.ErrClosed
	}
	if err := w.GetBackgroundError(); err != nil {
		return errors.Wrap(err, "wal writer stopped")
	}
	return nil
}

// startFlushCycle replaces the flush latch and returns the function that
// opens it.
func (w *walImpl) startFlushCycle() func() {
	ch := make(chan struct{})
	w.flushLatch.Store(&ch)
	return func() { close(ch) }
}

// currentFlushLatch is closed when the running writer cycle, if any, ends.
func (w *walImpl) currentFlushLatch() <-chan struct{} {
	return *w.flushLatch.Load()
}

func (w *walImpl) Flush() error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	return w.flush(true)
}

// flush runs a writer cycle and waits for its writes.
func (w *walImpl) flush(force bool) error {
	if err := w.bg.Flush(force); err != nil {
		return err
	}
	return w.io.wait()
}

func (w *walImpl) Begin() (db.LSN, bool) {
	first, ok := w.segments.first()
	if !ok {
		return db.NoLSN, false
	}
	return db.LSN{Segment: first, Position: log.RecordsOffset}, true
}

func (w *walImpl) BeginAt(segment uint64) (db.LSN, bool) {
	if !w.segments.contains(segment) {
		return db.NoLSN, false
	}
	return db.LSN{Segment: segment, Position: log.RecordsOffset}, true
}

func (w *walImpl) End() db.LSN {
	return *w.end.Load()
}

func (w *walImpl) advanceEnd(lsn db.LSN) {
	for {
		cur := w.end.Load()
		if lsn.Compare(*cur) <= 0 {
			return
		}
		if w.end.CompareAndSwap(cur, &lsn) {
			return
		}
	}
}

func (w *walImpl) FlushedLSN() db.LSN {
	return *w.flushedLSN.Load()
}

func (w *walImpl) LastCheckpoint() (db.LSN, bool) {
	return w.master.lastCheckpoint()
}

func (w *walImpl) AddEventAt(lsn db.LSN, fn func()) {
	w.waiters.add(lsn, fn)
	// the watermark may have passed lsn before the waiter was queued
	w.waiters.fire(w.FlushedLSN())
}

func (w *walImpl) ActiveSegment() uint64 {
	return w.currentSegment.Load()
}

func (w *walImpl) NonActiveSegments() []uint64 {
	w.segmentMu.RLock()
	defer w.segmentMu.RUnlock()
	current := w.currentSegment.Load()
	out := w.segments.all()
	for len(out) > 0 && out[len(out)-1] >= current {
		out = out[:len(out)-1]
	}
	return out
}

func (w *walImpl) SegmentFiles() []string {
	var names []string
	for _, seg := range w.segments.all() {
		names = append(names, SegmentFileName(w.dir, w.storageName, seg))
	}
	return names
}

func (w *walImpl) AppendNewSegment() error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	w.segmentMu.Lock()
	defer w.segmentMu.Unlock()
	if w.closed.Load() {
		return db.ErrClosed
	}
	w.switchSegmentLocked(w.currentSegment.Load() + 1)
	return nil
}

func (w *walImpl) AppendSegment(segment uint64) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	return w.appendSegment(segment)
}

func (w *walImpl) appendSegment(segment uint64) error {
	w.segmentMu.Lock()
	defer w.segmentMu.Unlock()
	if w.closed.Load() || segment <= w.currentSegment.Load() {
		return nil
	}
	w.switchSegmentLocked(segment)
	return nil
}

func (w *walImpl) switchSegmentLocked(segment uint64) {
	w.currentSegment.Store(segment)
	w.segmentSize.Store(0)
	w.segmentAddedAt.Store(time.Now().UnixNano())
	w.pushMilestone(segment)
	w.logger.Printf("segment %d started", segment)
}

func (w *walImpl) MoveLSNAfter(lsn db.LSN) error {
	return w.AppendSegment(lsn.Segment + 1)
}

func (w *walImpl) Size() int64 {
	return w.logSize.Load()
}

// logMilestone closes the records queued so far in the current segment.
func (w *walImpl) logMilestone() *walRecord {
	w.segmentMu.RLock()
	defer w.segmentMu.RUnlock()
	return w.pushMilestone(w.currentSegment.Load())
}

func (w *walImpl) pushMilestone(segment uint64) *walRecord {
	r := newMilestoneRecord(segment)
	w.queue.push(r)
	w.assignPositions()
	return r
}

func (w *walImpl) Close() error {
	// appenders push under segmentMu, so once closed is set under the write
	// lock every queued record is covered by the final flush
	w.segmentMu.Lock()
	swapped := w.closed.CompareAndSwap(false, true)
	w.segmentMu.Unlock()
	if !swapped {
		return nil
	}

	var err error
	if w.GetBackgroundError() == nil {
		err = w.flush(true)
	}
	err = errors.CombineErrors(err, w.bg.Close(w.options.ShutdownTimeout))
	err = errors.CombineErrors(err, w.io.Close(w.options.ShutdownTimeout))
	err = errors.CombineErrors(err, w.dw.close())
	err = errors.CombineErrors(err, w.closeQueuedFiles(^uint64(0)))

	w.logger.Printf("wal %s closed at %s", w.storageName, w.End())
	w.releaseResources()
	return err
}

func (w *walImpl) releaseResources() {
	if w.segCache != nil {
		w.segCache.close()
	}
	if w.master != nil {
		_ = w.master.close()
	}
	if w.metrics != nil {
		w.metrics.unregister()
	}
	if w.infoLog != nil {
		_ = w.infoLog.Close()
	}
	_ = w.env.UnlockFile(w.fileLock)
}

func (w *walImpl) Delete() error {
	closeErr := w.Close()

	var err error
	for _, seg := range w.segments.all() {
		if rmErr := w.env.RemoveFile(SegmentFileName(w.dir, w.storageName, seg)); rmErr != nil {
			err = errors.CombineErrors(err, rmErr)
		}
	}
	for _, name := range []string{
		MasterRecordFileName(w.dir, w.storageName),
		LockFileName(w.dir, w.storageName),
		InfoLogFileName(w.dir, w.storageName),
		InfoLogFileName(w.dir, w.storageName) + ".old",
	} {
		if w.env.FileExists(name) {
			err = errors.CombineErrors(err, w.env.RemoveFile(name))
		}
	}
	if err != nil {
		err = errors.Mark(errors.Wrap(err, "delete wal files"), db.ErrIO)
	}
	return errors.CombineErrors(closeErr, err)
}
