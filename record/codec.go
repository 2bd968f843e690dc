// Package record converts log records to and from their stored form.
//
// Stored form:
//
//	type(2B) body
//
// Bodies of at least MinCompressSize bytes may be stored compressed when that
// makes them smaller:
//
//	type|compressedFlag(2B) codec(1B) compressed body
package record

import (
	"encoding/binary"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/util"
)

const (
	headerSize      = 2
	compressedFlag  = 0x8000
	MinCompressSize = 8 * 1024
)

func Encode(rec db.Record, compression db.CompressionType) ([]byte, error) {
	t := rec.Type()
	size := 64
	if op, ok := rec.(*db.PageOperation); ok {
		size = headerSize + 24 + util.VarintLength(uint64(len(op.Payload))) + len(op.Payload)
	}
	out := binary.LittleEndian.AppendUint16(make([]byte, 0, size), uint16(t))

	switch r := rec.(type) {
	case *db.Empty, *db.FuzzyCheckpointEnd, *db.CheckpointEnd:
	case *db.AtomicUnitStart:
		out = appendBool(out, r.RollbackSupported)
		out = binary.LittleEndian.AppendUint64(out, uint64(r.UnitID))
		out = appendOptionalBytes(out, r.Metadata)
	case *db.AtomicUnitEnd:
		out = binary.LittleEndian.AppendUint64(out, uint64(r.UnitID))
		out = appendBool(out, r.Rollback)
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out = binary.AppendUvarint(out, uint64(len(keys)))
		for _, k := range keys {
			out = util.AppendLengthPrefixedBytes(out, []byte(k))
			out = util.AppendLengthPrefixedBytes(out, r.Metadata[k])
		}
	case *db.FuzzyCheckpointStart:
		out = appendLSN(out, r.PreviousCheckpoint)
		out = appendLSN(out, r.FlushedLSN)
		out = appendOptionalBytes(out, r.Metadata)
	case *db.FullCheckpointStart:
		out = appendLSN(out, r.PreviousCheckpoint)
	case *db.PageOperation:
		out = binary.LittleEndian.AppendUint64(out, uint64(r.UnitID))
		out = binary.LittleEndian.AppendUint64(out, uint64(r.FileID))
		out = binary.LittleEndian.AppendUint64(out, uint64(r.PageIndex))
		out = util.AppendLengthPrefixedBytes(out, r.Payload)
	default:
		return nil, errors.Wrapf(db.ErrInvalidArgument, "unsupported record type %T", rec)
	}

	if compression == db.NoCompression || len(out) < MinCompressSize {
		return out, nil
	}
	return maybeCompress(out, compression)
}

func maybeCompress(raw []byte, compression db.CompressionType) ([]byte, error) {
	var compressed []byte
	switch compression {
	case db.SnappyCompression:
		compressed = util.SnappyCompress(raw[headerSize:])
	case db.ZstdCompression:
		compressed = util.ZstdCompress(raw[headerSize:])
	default:
		return nil, errors.Wrapf(db.ErrInvalidArgument, "unknown compression type %d", compression)
	}
	if headerSize+1+len(compressed) >= len(raw) {
		return raw, nil
	}

	t := binary.LittleEndian.Uint16(raw)
	out := make([]byte, 0, headerSize+1+len(compressed))
	out = binary.LittleEndian.AppendUint16(out, t|compressedFlag)
	out = append(out, byte(compression))
	return append(out, compressed...), nil
}

func Decode(data []byte) (db.Record, error) {
	if len(data) < headerSize {
		return nil, errors.Wrapf(db.ErrCorruption, "record too small (%d bytes)", len(data))
	}
	raw := binary.LittleEndian.Uint16(data)
	body := data[headerSize:]

	if raw&compressedFlag != 0 {
		var err error
		if body, err = uncompress(body); err != nil {
			return nil, err
		}
	}

	d := decoder{buf: body}
	var rec db.Record
	switch t := db.RecordType(raw &^ compressedFlag); t {
	case db.RecordTypeEmpty:
		rec = &db.Empty{}
	case db.RecordTypeFuzzyCheckpointEnd:
		rec = &db.FuzzyCheckpointEnd{}
	case db.RecordTypeCheckpointEnd:
		rec = &db.CheckpointEnd{}
	case db.RecordTypeAtomicUnitStart:
		r := &db.AtomicUnitStart{}
		r.RollbackSupported = d.readBool()
		r.UnitID = int64(d.readUint64())
		r.Metadata = d.readOptionalBytes()
		rec = r
	case db.RecordTypeAtomicUnitEnd:
		r := &db.AtomicUnitEnd{}
		r.UnitID = int64(d.readUint64())
		r.Rollback = d.readBool()
		if n := d.readUvarint(); n > 0 && d.err == nil {
			r.Metadata = make(map[string][]byte, min(n, uint64(len(body))))
			for i := uint64(0); i < n && d.err == nil; i++ {
				k := d.readBytes()
				v := d.readBytes()
				r.Metadata[string(k)] = v
			}
		}
		rec = r
	case db.RecordTypeFuzzyCheckpointStart:
		r := &db.FuzzyCheckpointStart{}
		r.PreviousCheckpoint = d.readLSN()
		r.FlushedLSN = d.readLSN()
		r.Metadata = d.readOptionalBytes()
		rec = r
	case db.RecordTypeFullCheckpointStart:
		rec = &db.FullCheckpointStart{PreviousCheckpoint: d.readLSN()}
	case db.RecordTypePageOperation:
		r := &db.PageOperation{}
		r.UnitID = int64(d.readUint64())
		r.FileID = int64(d.readUint64())
		r.PageIndex = int64(d.readUint64())
		r.Payload = d.readBytes()
		rec = r
	default:
		return nil, errors.Wrapf(db.ErrCorruption, "unknown record type %d", t)
	}

	if d.err != nil {
		return nil, d.err
	}
	if len(d.buf) != 0 {
		return nil, errors.Wrapf(db.ErrCorruption, "%d trailing bytes after %s record", len(d.buf), rec.Type())
	}
	return rec, nil
}

func uncompress(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, errors.Wrap(db.ErrCorruption, "compressed record without codec")
	}
	var (
		out []byte
		err error
	)
	switch db.CompressionType(body[0]) {
	case db.SnappyCompression:
		out, err = util.SnappyUncompress(body[1:])
	case db.ZstdCompression:
		out, err = util.ZstdUncompress(body[1:])
	default:
		return nil, errors.Wrapf(db.ErrCorruption, "unknown compression codec %d", body[0])
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "uncompress record"), db.ErrCorruption)
	}
	return out, nil
}

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendLSN(dst []byte, lsn db.LSN) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, lsn.Segment)
	return binary.LittleEndian.AppendUint64(dst, uint64(lsn.Position))
}

func appendOptionalBytes(dst, v []byte) []byte {
	if v == nil {
		return append(dst, 0)
	}
	dst = append(dst, 1)
	return util.AppendLengthPrefixedBytes(dst, v)
}

// decoder records the first error and turns every later read into a no-op.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail(what string) {
	if d.err == nil {
		d.err = errors.Wrapf(db.ErrCorruption, "record truncated while reading %s", what)
	}
	d.buf = nil
}

func (d *decoder) readBool() bool {
	if d.err != nil || len(d.buf) < 1 {
		d.fail("flag")
		return false
	}
	v := d.buf[0] != 0
	d.buf = d.buf[1:]
	return v
}

func (d *decoder) readUint64() uint64 {
	if d.err != nil || len(d.buf) < 8 {
		d.fail("integer")
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf)
	d.buf = d.buf[8:]
	return v
}

func (d *decoder) readUvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail("varint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) readBytes() []byte {
	if d.err != nil {
		return nil
	}
	v, n := util.GetLengthPrefixedBytes(d.buf)
	if n == 0 {
		d.fail("bytes")
		return nil
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) readOptionalBytes() []byte {
	if !d.readBool() {
		return nil
	}
	return d.readBytes()
}

func (d *decoder) readLSN() db.LSN {
	seg := d.readUint64()
	pos := int64(d.readUint64())
	return db.LSN{Segment: seg, Position: pos}
}
