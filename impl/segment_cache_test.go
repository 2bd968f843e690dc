package impl

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/env"
	"github.com/stretchr/testify/require"
)

type countingEnv struct {
	db.Env
	opened atomic.Int32
	closed *atomic.Int32
}

type countingFile struct {
	db.RandomAccessFile
	closed *atomic.Int32
}

func (f *countingFile) Close() error {
	f.closed.Add(1)
	return f.RandomAccessFile.Close()
}

func (e *countingEnv) NewRandomAccessFile(name string) (db.RandomAccessFile, error) {
	f, err := e.Env.NewRandomAccessFile(name)
	if err != nil {
		return nil, err
	}
	e.opened.Add(1)
	return &countingFile{RandomAccessFile: f, closed: e.closed}, nil
}

func TestSegmentCache(t *testing.T) {
	dir := t.TempDir()
	for seg := uint64(1); seg <= 3; seg++ {
		require.NoError(t, os.WriteFile(SegmentFileName(dir, "s", seg), []byte{byte(seg)}, 0o644))
	}

	var closed atomic.Int32
	e := &countingEnv{Env: env.DefaultEnv(), closed: &closed}
	sc := newSegmentCache(dir, "s", e, 2)

	h, err := sc.get(1)
	require.NoError(t, err)
	var b [1]byte
	_, err = h.Value().ReadAt(b[:], 0)
	require.NoError(t, err)
	require.Equal(t, byte(1), b[0])
	sc.release(h)

	h, err = sc.get(1)
	require.NoError(t, err)
	sc.release(h)
	require.Equal(t, int32(1), e.opened.Load())

	// capacity two: the least recently used handle is closed
	for _, seg := range []uint64{2, 3} {
		h, err = sc.get(seg)
		require.NoError(t, err)
		sc.release(h)
	}
	require.Equal(t, int32(1), closed.Load())

	sc.evict(3)
	require.Equal(t, int32(2), closed.Load())

	// a referenced handle survives eviction until it is released
	h, err = sc.get(1)
	require.NoError(t, err)
	sc.evictBelow(3)
	// only the idle handle of segment 2 is closed
	require.Equal(t, int32(3), closed.Load())
	_, err = h.Value().ReadAt(b[:], 0)
	require.NoError(t, err)
	sc.release(h)
	require.Equal(t, int32(4), closed.Load())

	_, err = sc.get(9)
	require.ErrorIs(t, err, db.ErrIO)

	h, err = sc.get(2)
	require.NoError(t, err)
	sc.release(h)
	sc.close()
	require.Equal(t, int32(5), closed.Load())
}
