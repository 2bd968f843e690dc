package db

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type WAL interface {
	Append(rec Record) (LSN, error)
	LogAtomicUnitStart(rollbackSupported bool, unitID int64, metadata []byte) (LSN, error)
	LogAtomicUnitEnd(unitID int64, rollback bool, metadata map[string][]byte) (LSN, error)
	LogPageOperation(unitID, fileID, pageIndex int64, payload []byte) (LSN, error)
	LogFuzzyCheckpointStart(flushedLSN LSN, metadata []byte) (LSN, error)
	LogFuzzyCheckpointEnd() (LSN, error)
	LogFullCheckpointStart() (LSN, error)
	LogFullCheckpointEnd() (LSN, error)

	// Flush writes and syncs every appended record.
	Flush() error

	Read(lsn LSN, limit int) ([]Entry, error)
	Next(lsn LSN, limit int) ([]Entry, error)
	Begin() (LSN, bool)
	BeginAt(segment uint64) (LSN, bool)
	End() LSN
	FlushedLSN() LSN
	LastCheckpoint() (LSN, bool)

	// AddEventAt runs fn once every record up to lsn is durable.
	AddEventAt(lsn LSN, fn func())

	AddCutTillLimit(lsn LSN)
	RemoveCutTillLimit(lsn LSN) error
	CutTill(lsn LSN) (bool, error)
	CutAllSegmentsSmallerThan(segment uint64) (bool, error)

	ActiveSegment() uint64
	NonActiveSegments() []uint64
	SegmentFiles() []string
	AppendNewSegment() error
	AppendSegment(segment uint64) error
	MoveLSNAfter(lsn LSN) error
	Size() int64
	Stats() Stats

	AddCheckpointRequestListener(l CheckpointRequestListener) (remove func())
	AddSegmentOverflowListener(l SegmentOverflowListener) (remove func())
	AddLowDiskSpaceListener(l LowDiskSpaceListener) (remove func())

	Close() error
	// Delete closes the log and removes all of its files.
	Delete() error
}

type Stats struct {
	RecordsAppended   uint64
	BytesWritten      uint64
	PagesWritten      uint64
	Fsyncs            uint64
	FlushCycles       uint64
	BackpressureWaits uint64
	LogSize           int64
	Segments          int
}

type CompressionType uint8

const (
	NoCompression CompressionType = iota
	SnappyCompression
	ZstdCompression
)

type Logger interface {
	Printf(format string, v ...any)
}

type Options struct {
	// PageSize must be a multiple of the device block size when DirectIO is set.
	PageSize int
	// MaxSegmentSize triggers segment overflow once exceeded.
	MaxSegmentSize int64
	// SegmentRotationInterval starts a new segment after this long. Zero
	// disables time based rotation.
	SegmentRotationInterval time.Duration
	CommitDelay             time.Duration
	FsyncInterval           time.Duration
	// WriteBufferSize is the size of each of the two page buffers.
	WriteBufferSize int
	// MaxUnflushedSize caps the bytes waiting in memory before appenders
	// are throttled.
	MaxUnflushedSize int64
	// LogSizeHardLimit requests a checkpoint once the total log size exceeds
	// it. A negative value derives the limit from free disk space instead.
	LogSizeHardLimit  int64
	FreeSpaceLimit    int64
	KeepSingleSegment bool
	SyncOnFlush       bool
	DirectIO          bool

	// EncryptionKey enables AES-CTR page encryption. It must be 16, 24 or
	// 32 bytes long; EncryptionIV must then hold 16 bytes.
	EncryptionKey []byte
	EncryptionIV  []byte

	Compression     CompressionType
	ShutdownTimeout time.Duration

	Logger            Logger
	Env               Env
	MetricsRegisterer prometheus.Registerer
}

func DefaultOptions() *Options {
	return &Options{
		PageSize:         4 * 1024,
		MaxSegmentSize:   128 * 1024 * 1024,
		CommitDelay:      time.Second,
		FsyncInterval:    2 * time.Second,
		WriteBufferSize:  1024 * 1024,
		MaxUnflushedSize: 64 * 1024 * 1024,
		LogSizeHardLimit: -1,
		FreeSpaceLimit:   256 * 1024 * 1024,
		SyncOnFlush:      true,
		Compression:      NoCompression,
		ShutdownTimeout:  10 * time.Second,
	}
}

var (
	ErrCorruption          = errors.New("corrupted")
	ErrNotSupported        = errors.New("not supported")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrIO                  = errors.New("io error")
	ErrClosed              = errors.New("wal closed")
	ErrEncryptionKeyAbsent = errors.New("page is encrypted but no encryption key is configured")
)
