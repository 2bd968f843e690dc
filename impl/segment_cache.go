package impl

import (
	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/util"
)

type segmentHandle = util.Handle[uint64, db.RandomAccessFile]

// segmentCache keeps read handles of recently read segment files open.
type segmentCache struct {
	dir     string
	storage string
	env     db.Env

	handles *util.HandleCache[uint64, db.RandomAccessFile]
}

func newSegmentCache(dir, storage string, env db.Env, size int) *segmentCache {
	return &segmentCache{
		dir:     dir,
		storage: storage,
		env:     env,
		handles: util.NewHandleCache(size, func(_ uint64, f db.RandomAccessFile) {
			_ = f.Close()
		}),
	}
}

func (sc *segmentCache) get(segment uint64) (*segmentHandle, error) {
	if h := sc.handles.Lookup(segment); h != nil {
		return h, nil
	}

	f, err := sc.env.NewRandomAccessFile(SegmentFileName(sc.dir, sc.storage, segment))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open segment %d", segment), db.ErrIO)
	}
	return sc.handles.Insert(segment, f, 1), nil
}

func (sc *segmentCache) release(h *segmentHandle) {
	sc.handles.Release(h)
}

func (sc *segmentCache) evict(segment uint64) {
	sc.handles.Erase(segment)
}

// evictBelow drops the handles of every segment smaller than segment.
func (sc *segmentCache) evictBelow(segment uint64) {
	sc.handles.EraseIf(func(s uint64) bool { return s < segment })
}

func (sc *segmentCache) close() {
	sc.handles.Close()
}
