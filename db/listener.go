package db

// CheckpointRequestListener is notified when the log grew past its size limit
// and a checkpoint would let old segments be cut.
type CheckpointRequestListener interface {
	RequestCheckpoint()
}

// SegmentOverflowListener is notified when the current segment exceeded
// Options.MaxSegmentSize.
type SegmentOverflowListener interface {
	SegmentOverflow(segment uint64)
}

type LowDiskSpaceInfo struct {
	FreeSpace      int64
	FreeSpaceLimit int64
}

type LowDiskSpaceListener interface {
	LowDiskSpace(info LowDiskSpaceInfo)
}

type CheckpointRequestFunc func()

func (f CheckpointRequestFunc) RequestCheckpoint() { f() }

type SegmentOverflowFunc func(segment uint64)

func (f SegmentOverflowFunc) SegmentOverflow(segment uint64) { f(segment) }

type LowDiskSpaceFunc func(info LowDiskSpaceInfo)

func (f LowDiskSpaceFunc) LowDiskSpace(info LowDiskSpaceInfo) { f(info) }
