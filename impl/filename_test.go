package impl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileNames(t *testing.T) {
	require.Equal(t, "dir/store.12.wal", SegmentFileName("dir", "store", 12))
	require.Equal(t, "dir/store.wmr", MasterRecordFileName("dir", "store"))
	require.Equal(t, "dir/store.lock", LockFileName("dir", "store"))
	require.Equal(t, "dir/store.LOG", InfoLogFileName("dir", "store"))
}

func TestParseFileName(t *testing.T) {
	cases := []struct {
		name    string
		ftype   FileType
		segment uint64
		ok      bool
	}{
		{"store.1.wal", FileTypeSegment, 1, true},
		{"store.18446744073709551615.wal", FileTypeSegment, 18446744073709551615, true},
		{"store.wmr", FileTypeMasterRecord, 0, true},
		{"store.lock", FileTypeLock, 0, true},
		{"store.LOG", FileTypeInfoLog, 0, true},
		{"store.LOG.old", FileTypeInfoLog, 0, true},
		{"store.0.wal", 0, 0, false},
		{"store.x.wal", 0, 0, false},
		{"store.1.wal.tmp", 0, 0, false},
		{"other.1.wal", 0, 0, false},
		{"storex.1.wal", 0, 0, false},
	}
	for _, c := range cases {
		ftype, segment, ok := ParseFileName("store", c.name)
		require.Equal(t, c.ok, ok, c.name)
		if ok {
			require.Equal(t, c.ftype, ftype, c.name)
			require.Equal(t, c.segment, segment, c.name)
		}
	}
}
