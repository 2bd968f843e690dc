package impl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/env"
	"github.com/stretchr/testify/require"
)

func TestMasterRecord(t *testing.T) {
	name := filepath.Join(t.TempDir(), "s.wmr")
	e := env.DefaultEnv()

	m, err := openMasterRecord(e, name)
	require.NoError(t, err)
	_, ok := m.lastCheckpoint()
	require.False(t, ok)

	a := db.LSN{Segment: 1, Position: 18}
	b := db.LSN{Segment: 2, Position: 530}
	require.NoError(t, m.update(a))
	require.NoError(t, m.update(b))
	// older checkpoints are ignored
	require.NoError(t, m.update(a))
	last, ok := m.lastCheckpoint()
	require.True(t, ok)
	require.Equal(t, b, last)
	require.NoError(t, m.close())

	m, err = openMasterRecord(e, name)
	require.NoError(t, err)
	last, _ = m.lastCheckpoint()
	require.Equal(t, b, last)
	require.NoError(t, m.close())

	// a torn write of the newer slot falls back to the older one
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Len(t, data, 2*masterRecordSlotSize)
	data[masterRecordSlotSize+7] ^= 0xff
	require.NoError(t, os.WriteFile(name, data, 0o644))

	m, err = openMasterRecord(e, name)
	require.NoError(t, err)
	last, ok = m.lastCheckpoint()
	require.True(t, ok)
	require.Equal(t, a, last)
	require.Equal(t, 1, m.nextSlot)

	c := db.LSN{Segment: 3, Position: 18}
	require.NoError(t, m.update(c))
	require.NoError(t, m.close())

	m, err = openMasterRecord(e, name)
	require.NoError(t, err)
	defer m.close()
	last, _ = m.lastCheckpoint()
	require.Equal(t, c, last)
}

func TestMasterRecordPartialFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "s.wmr")
	slot := make([]byte, masterRecordSlotSize)
	encodeMasterRecordSlot(slot, db.LSN{Segment: 4, Position: 42})
	// crash while the second slot was being written for the first time
	require.NoError(t, os.WriteFile(name, append(slot, 1, 2, 3), 0o644))

	m, err := openMasterRecord(env.DefaultEnv(), name)
	require.NoError(t, err)
	defer m.close()
	last, ok := m.lastCheckpoint()
	require.True(t, ok)
	require.Equal(t, db.LSN{Segment: 4, Position: 42}, last)
}

func TestReadMasterRecord(t *testing.T) {
	name := filepath.Join(t.TempDir(), "s.wmr")
	e := env.DefaultEnv()

	m, err := openMasterRecord(e, name)
	require.NoError(t, err)
	_, ok, err := ReadMasterRecord(e, name)
	require.NoError(t, err)
	require.False(t, ok)

	want := db.LSN{Segment: 5, Position: 1042}
	require.NoError(t, m.update(want))
	require.NoError(t, m.close())

	got, ok, err := ReadMasterRecord(e, name)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	_, _, err = ReadMasterRecord(e, filepath.Join(t.TempDir(), "missing.wmr"))
	require.ErrorIs(t, err, db.ErrIO)
}
