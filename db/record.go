package db

type RecordType uint16

const (
	// Zero is reserved so that a zeroed buffer never decodes as a record.
	RecordTypeInvalid RecordType = iota
	RecordTypeEmpty
	RecordTypeAtomicUnitStart
	RecordTypeAtomicUnitEnd
	RecordTypeFuzzyCheckpointStart
	RecordTypeFuzzyCheckpointEnd
	RecordTypeFullCheckpointStart
	RecordTypeCheckpointEnd
	RecordTypePageOperation
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeEmpty:
		return "Empty"
	case RecordTypeAtomicUnitStart:
		return "AtomicUnitStart"
	case RecordTypeAtomicUnitEnd:
		return "AtomicUnitEnd"
	case RecordTypeFuzzyCheckpointStart:
		return "FuzzyCheckpointStart"
	case RecordTypeFuzzyCheckpointEnd:
		return "FuzzyCheckpointEnd"
	case RecordTypeFullCheckpointStart:
		return "FullCheckpointStart"
	case RecordTypeCheckpointEnd:
		return "CheckpointEnd"
	case RecordTypePageOperation:
		return "PageOperation"
	default:
		return "Invalid"
	}
}

// Record is a payload record that can be appended to the log.
type Record interface {
	Type() RecordType
}

// Entry is a record returned by Read and Next together with its LSN.
type Entry struct {
	LSN    LSN
	Record Record
}

// Empty is logged once on every open so that a fresh segment always holds
// at least one record.
type Empty struct{}

func (*Empty) Type() RecordType { return RecordTypeEmpty }

type AtomicUnitStart struct {
	RollbackSupported bool
	UnitID            int64
	Metadata          []byte // optional
}

func (*AtomicUnitStart) Type() RecordType { return RecordTypeAtomicUnitStart }

type AtomicUnitEnd struct {
	UnitID   int64
	Rollback bool
	// Metadata is keyed by the component that produced it.
	Metadata map[string][]byte
}

func (*AtomicUnitEnd) Type() RecordType { return RecordTypeAtomicUnitEnd }

type FuzzyCheckpointStart struct {
	PreviousCheckpoint LSN // zero if there is none
	FlushedLSN         LSN
	Metadata           []byte
}

func (*FuzzyCheckpointStart) Type() RecordType { return RecordTypeFuzzyCheckpointStart }

type FuzzyCheckpointEnd struct{}

func (*FuzzyCheckpointEnd) Type() RecordType { return RecordTypeFuzzyCheckpointEnd }

type FullCheckpointStart struct {
	PreviousCheckpoint LSN
}

func (*FullCheckpointStart) Type() RecordType { return RecordTypeFullCheckpointStart }

type CheckpointEnd struct{}

func (*CheckpointEnd) Type() RecordType { return RecordTypeCheckpointEnd }

// PageOperation carries an opaque page delta produced by the page cache.
type PageOperation struct {
	UnitID    int64
	FileID    int64
	PageIndex int64
	Payload   []byte
}

func (*PageOperation) Type() RecordType { return RecordTypePageOperation }

// UpdatesMasterRecord reports whether a durable rec moves the checkpoint
// pointer kept in the master record.
func UpdatesMasterRecord(rec Record) bool {
	switch rec.(type) {
	case *FuzzyCheckpointStart, *FullCheckpointStart:
		return true
	}
	return false
}
