package impl

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/env"
	"github.com/ls4154/gowal/log"
	"github.com/stretchr/testify/require"
)

// faultyEnv records removed files and can make segment writes fail or
// hold them until released.
type faultyEnv struct {
	db.Env

	failWrites  atomic.Bool
	failSyncs   atomic.Bool
	blockWrites atomic.Bool
	failCloses  atomic.Bool
	// writeHeld gets a value when a write starts waiting on writeGate
	writeHeld chan struct{}
	writeGate chan struct{}

	mu      sync.Mutex
	removed []string
	opened  int
}

func newFaultyEnv() *faultyEnv {
	return &faultyEnv{
		Env:       env.DefaultEnv(),
		writeHeld: make(chan struct{}, 1),
		writeGate: make(chan struct{}),
	}
}

var errInjected = errors.New("injected failure")

type faultyFile struct {
	db.WritableFile
	env *faultyEnv
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.env.failWrites.Load() {
		return 0, errInjected
	}
	if f.env.blockWrites.Load() {
		select {
		case f.env.writeHeld <- struct{}{}:
		default:
		}
		<-f.env.writeGate
	}
	return f.WritableFile.Write(p)
}

func (f *faultyFile) Sync() error {
	if f.env.failSyncs.Load() {
		return errInjected
	}
	return f.WritableFile.Sync()
}

func (f *faultyFile) Close() error {
	err := f.WritableFile.Close()
	if f.env.failCloses.Load() {
		return errInjected
	}
	return err
}

func (e *faultyEnv) NewWritableFile(name string) (db.WritableFile, error) {
	f, err := e.Env.NewWritableFile(name)
	if err != nil || !strings.HasSuffix(name, ".wal") {
		return f, err
	}
	e.mu.Lock()
	e.opened++
	e.mu.Unlock()
	return &faultyFile{WritableFile: f, env: e}, nil
}

func (e *faultyEnv) RemoveFile(name string) error {
	e.mu.Lock()
	e.removed = append(e.removed, name)
	e.mu.Unlock()
	return e.Env.RemoveFile(name)
}

func TestWriteFailureStopsWriter(t *testing.T) {
	fenv := newFaultyEnv()
	opt := testOptions()
	opt.Env = fenv
	w := openTestWAL(t, t.TempDir(), opt)

	_, err := w.Append(unitRecord(1))
	require.NoError(t, err)

	fenv.failWrites.Store(true)
	err = w.Flush()
	require.ErrorIs(t, err, db.ErrIO)
	require.ErrorIs(t, err, errInjected)

	_, err = w.Append(unitRecord(2))
	require.ErrorIs(t, err, db.ErrIO)
	require.ErrorIs(t, w.Flush(), db.ErrIO)
	require.ErrorIs(t, w.GetBackgroundError(), errInjected)

	_ = w.Close()
}

func TestSyncFailureStopsWriter(t *testing.T) {
	fenv := newFaultyEnv()
	opt := testOptions()
	opt.Env = fenv
	w := openTestWAL(t, t.TempDir(), opt)
	defer w.Close()

	flushed := w.FlushedLSN()
	lsn, err := w.Append(unitRecord(1))
	require.NoError(t, err)

	fenv.failSyncs.Store(true)
	require.ErrorIs(t, w.Flush(), errInjected)
	// the record was written but never became durable
	require.Equal(t, flushed, w.FlushedLSN())
	require.True(t, flushed.Less(lsn))
}

func TestCutRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	fenv := newFaultyEnv()
	opt := testOptions()
	opt.Env = fenv
	w := openTestWAL(t, dir, opt)
	defer w.Close()

	for i := 0; i < 3; i++ {
		_, err := w.Append(unitRecord(i))
		require.NoError(t, err)
		require.NoError(t, w.AppendNewSegment())
	}
	_, err := w.Append(unitRecord(3))
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.Equal(t, 4, fenv.opened)

	cut, err := w.CutAllSegmentsSmallerThan(3)
	require.NoError(t, err)
	require.True(t, cut)

	fenv.mu.Lock()
	defer fenv.mu.Unlock()
	require.Equal(t, []string{
		SegmentFileName(dir, testStorage, 1),
		SegmentFileName(dir, testStorage, 2),
	}, fenv.removed)
}

func TestCutReportsCloseFailure(t *testing.T) {
	dir := t.TempDir()
	fenv := newFaultyEnv()
	opt := testOptions()
	opt.Env = fenv
	w := openTestWAL(t, dir, opt)
	defer w.Close()

	require.NoError(t, w.AppendNewSegment())
	_, err := w.Append(unitRecord(1))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	// a finished segment file still waiting to be closed
	f, err := fenv.NewWritableFile(filepath.Join(dir, "stale.wal"))
	require.NoError(t, err)
	w.queueFileForClose(1, f)

	fenv.failCloses.Store(true)
	cut, err := w.CutAllSegmentsSmallerThan(2)
	fenv.failCloses.Store(false)
	require.True(t, cut)
	require.ErrorIs(t, err, errInjected)
	require.ErrorIs(t, err, db.ErrIO)
	require.Equal(t, []uint64{2}, w.segments.all())
}

func TestBackpressureWaitsForRunningFlush(t *testing.T) {
	fenv := newFaultyEnv()
	opt := testOptions()
	opt.Env = fenv
	payload := bytes.Repeat([]byte("p"), 100)
	// room for two records even when both cross a page header
	opt.MaxUnflushedSize = 2 * int64(log.SerializedSize(len(payload)+40)+log.PageHeaderSize)
	w := openTestWAL(t, t.TempDir(), opt)

	_, err := w.LogPageOperation(1, 1, 0, payload)
	require.NoError(t, err)

	fenv.blockWrites.Store(true)
	flushDone := make(chan error, 1)
	go func() { flushDone <- w.Flush() }()
	<-fenv.writeHeld
	latch := w.currentFlushLatch()

	for i := 1; i <= 2; i++ {
		_, err := w.LogPageOperation(1, 1, int64(i), payload)
		require.NoError(t, err)
	}
	require.Zero(t, w.Stats().BackpressureWaits)

	thirdDone := make(chan error, 1)
	go func() {
		_, err := w.LogPageOperation(1, 1, 3, payload)
		thirdDone <- err
	}()

	select {
	case err := <-thirdDone:
		t.Fatalf("append returned while the flush cycle was running: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	select {
	case <-latch:
		t.Fatal("flush cycle ended while its write was held")
	default:
	}

	fenv.blockWrites.Store(false)
	close(fenv.writeGate)
	require.NoError(t, <-flushDone)
	require.NoError(t, <-thirdDone)
	<-latch
	require.Equal(t, uint64(1), w.Stats().BackpressureWaits)
	require.NoError(t, w.Close())
}

func TestAppendRacingClose(t *testing.T) {
	for iter := 0; iter < 5; iter++ {
		dir := t.TempDir()
		opt := testOptions()
		opt.MaxUnflushedSize = 1 << 40
		w := openTestWAL(t, dir, opt)

		var succeeded atomic.Int64
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; ; i++ {
					if _, err := w.Append(unitRecord(g*100000 + i)); err != nil {
						if !errors.Is(err, db.ErrClosed) {
							t.Errorf("append: %v", err)
						}
						return
					}
					succeeded.Add(1)
				}
			}(g)
		}
		time.Sleep(time.Duration(iter+1) * time.Millisecond)
		require.NoError(t, w.Close())
		wg.Wait()

		w = openTestWAL(t, dir, testOptions())
		entries, err := replay(w)
		require.NoError(t, err)
		require.Len(t, withoutEmpty(entries), int(succeeded.Load()), "iteration %d", iter)
		require.NoError(t, w.Close())
	}
}
