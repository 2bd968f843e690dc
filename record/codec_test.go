package record

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ls4154/gowal/db"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []db.Record {
	return []db.Record{
		&db.Empty{},
		&db.AtomicUnitStart{RollbackSupported: true, UnitID: 42},
		&db.AtomicUnitStart{UnitID: -1, Metadata: []byte("meta")},
		&db.AtomicUnitEnd{UnitID: 42, Rollback: true},
		&db.AtomicUnitEnd{UnitID: 7, Metadata: map[string][]byte{
			"index":   []byte("idx-state"),
			"cluster": []byte{1, 2, 3},
		}},
		&db.FuzzyCheckpointStart{
			PreviousCheckpoint: db.LSN{Segment: 3, Position: 18},
			FlushedLSN:         db.LSN{Segment: 4, Position: 9000},
			Metadata:           []byte("ckpt"),
		},
		&db.FuzzyCheckpointStart{FlushedLSN: db.LSN{Segment: 1, Position: 18}},
		&db.FuzzyCheckpointEnd{},
		&db.FullCheckpointStart{PreviousCheckpoint: db.LSN{Segment: 9, Position: 4114}},
		&db.CheckpointEnd{},
		&db.PageOperation{UnitID: 1, FileID: 2, PageIndex: 3, Payload: []byte("delta")},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, rec := range sampleRecords() {
		data, err := Encode(rec, db.NoCompression)
		require.NoError(t, err)
		require.Equal(t, uint16(rec.Type()), binary.LittleEndian.Uint16(data))

		got, err := Decode(data)
		require.NoError(t, err, "%s", rec.Type())
		require.Equal(t, rec, got)
	}
}

func TestRoundTripCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("compressible page delta "), 1024)
	for _, c := range []db.CompressionType{db.SnappyCompression, db.ZstdCompression} {
		rec := &db.PageOperation{UnitID: 5, FileID: 6, PageIndex: 7, Payload: payload}

		data, err := Encode(rec, c)
		require.NoError(t, err)
		require.Less(t, len(data), len(payload))
		require.NotZero(t, binary.LittleEndian.Uint16(data)&compressedFlag)
		require.Equal(t, byte(c), data[headerSize])

		got, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, rec, got)
	}
}

func TestSmallRecordsStayUncompressed(t *testing.T) {
	rec := &db.AtomicUnitStart{UnitID: 1, Metadata: []byte("small")}
	plain, err := Encode(rec, db.NoCompression)
	require.NoError(t, err)
	snappy, err := Encode(rec, db.SnappyCompression)
	require.NoError(t, err)
	require.Equal(t, plain, snappy)
}

func TestIncompressibleRecordStaysRaw(t *testing.T) {
	payload := make([]byte, MinCompressSize*2)
	var x uint32 = 2463534242
	for i := range payload {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		payload[i] = byte(x)
	}
	rec := &db.PageOperation{Payload: payload}

	data, err := Encode(rec, db.SnappyCompression)
	require.NoError(t, err)
	require.Zero(t, binary.LittleEndian.Uint16(data)&compressedFlag)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

type foreignRecord struct{}

func (foreignRecord) Type() db.RecordType { return 99 }

func TestEncodeUnknownType(t *testing.T) {
	_, err := Encode(foreignRecord{}, db.NoCompression)
	require.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestDecodeCorrupted(t *testing.T) {
	data, err := Encode(&db.FuzzyCheckpointStart{Metadata: []byte("m")}, db.NoCompression)
	require.NoError(t, err)

	_, err = Decode(data[:1])
	require.ErrorIs(t, err, db.ErrCorruption)

	_, err = Decode(data[:len(data)-2])
	require.ErrorIs(t, err, db.ErrCorruption)

	_, err = Decode(append(data, 0))
	require.ErrorIs(t, err, db.ErrCorruption)

	bad := binary.LittleEndian.AppendUint16(nil, 0x7fff)
	_, err = Decode(bad)
	require.ErrorIs(t, err, db.ErrCorruption)

	badCodec := binary.LittleEndian.AppendUint16(nil, uint16(db.RecordTypeEmpty)|compressedFlag)
	badCodec = append(badCodec, 77)
	_, err = Decode(badCodec)
	require.ErrorIs(t, err, db.ErrCorruption)
}
