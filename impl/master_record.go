package impl

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/util"
)

// The master record file keeps the LSN of the last durable checkpoint in two
// alternating slots:
//
//	masked crc32c(4B) segment(8B) position(8B)
//
// A torn write can only damage the slot being written, the other one still
// holds the previous checkpoint.
const (
	masterRecordSlotSize = 20
	masterRecordSlots    = 2
)

type masterRecord struct {
	mu       sync.Mutex
	file     db.RandomRWFile
	nextSlot int
	last     db.LSN
	hasLast  bool
}

func openMasterRecord(env db.Env, name string) (*masterRecord, error) {
	f, err := env.NewRandomRWFile(name)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "open master record"), db.ErrIO)
	}

	buf := make([]byte, masterRecordSlots*masterRecordSlotSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, errors.Mark(errors.Wrap(err, "read master record"), db.ErrIO)
	}

	m := &masterRecord{file: f}
	m.last, m.nextSlot, m.hasLast = pickMasterRecordSlot(buf[:n])
	return m, nil
}

// ReadMasterRecord returns the last checkpoint stored in the master record
// file name without opening it for writing.
func ReadMasterRecord(env db.Env, name string) (db.LSN, bool, error) {
	data, err := util.ReadFile(env, name)
	if err != nil {
		return db.NoLSN, false, errors.Mark(errors.Wrap(err, "read master record"), db.ErrIO)
	}
	lsn, _, ok := pickMasterRecordSlot(data)
	return lsn, ok, nil
}

// pickMasterRecordSlot returns the newest valid slot in data and the slot to
// overwrite next.
func pickMasterRecordSlot(data []byte) (db.LSN, int, bool) {
	var valid [masterRecordSlots]bool
	var lsns [masterRecordSlots]db.LSN
	for i := 0; i < masterRecordSlots; i++ {
		off := i * masterRecordSlotSize
		if len(data) >= off+masterRecordSlotSize {
			lsns[i], valid[i] = decodeMasterRecordSlot(data[off : off+masterRecordSlotSize])
		}
	}

	switch {
	case valid[0] && valid[1]:
		if lsns[1].Less(lsns[0]) {
			return lsns[0], 1, true
		}
		return lsns[1], 0, true
	case valid[0]:
		return lsns[0], 1, true
	case valid[1]:
		return lsns[1], 0, true
	}
	return db.NoLSN, 0, false
}

func encodeMasterRecordSlot(dst []byte, lsn db.LSN) {
	binary.LittleEndian.PutUint64(dst[4:], lsn.Segment)
	binary.LittleEndian.PutUint64(dst[12:], uint64(lsn.Position))
	binary.LittleEndian.PutUint32(dst, util.MaskedCRC32C(dst[4:masterRecordSlotSize]))
}

func decodeMasterRecordSlot(src []byte) (db.LSN, bool) {
	crc := util.UnmaskCRC32(binary.LittleEndian.Uint32(src))
	if crc != util.ChecksumCRC32C(src[4:masterRecordSlotSize]) {
		return db.NoLSN, false
	}
	lsn := db.LSN{
		Segment:  binary.LittleEndian.Uint64(src[4:]),
		Position: int64(binary.LittleEndian.Uint64(src[12:])),
	}
	return lsn, !lsn.IsZero()
}

func (m *masterRecord) lastCheckpoint() (db.LSN, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// update stores lsn unless it is not newer than the stored checkpoint.
func (m *masterRecord) update(lsn db.LSN) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasLast && lsn.Compare(m.last) <= 0 {
		return nil
	}

	var buf [masterRecordSlotSize]byte
	encodeMasterRecordSlot(buf[:], lsn)
	if _, err := m.file.WriteAt(buf[:], int64(m.nextSlot*masterRecordSlotSize)); err != nil {
		return errors.Mark(errors.Wrap(err, "write master record"), db.ErrIO)
	}
	if err := m.file.Sync(); err != nil {
		return errors.Mark(errors.Wrap(err, "sync master record"), db.ErrIO)
	}

	m.last = lsn
	m.hasLast = true
	m.nextSlot = (m.nextSlot + 1) % masterRecordSlots
	return nil
}

func (m *masterRecord) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
