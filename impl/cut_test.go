package impl

import (
	"testing"

	"github.com/ls4154/gowal/db"
	"github.com/stretchr/testify/require"
)

func TestCutTillLimits(t *testing.T) {
	c := newCutTillLimits()
	_, ok := c.min()
	require.False(t, ok)

	a := db.LSN{Segment: 3, Position: 100}
	b := db.LSN{Segment: 2, Position: 500}
	c.add(a)
	c.add(b)
	c.add(b)

	m, ok := c.min()
	require.True(t, ok)
	require.Equal(t, b, m)

	require.True(t, c.remove(b))
	m, _ = c.min()
	require.Equal(t, b, m)
	require.True(t, c.remove(b))
	m, _ = c.min()
	require.Equal(t, a, m)

	require.False(t, c.remove(b))
	require.True(t, c.remove(a))
	_, ok = c.min()
	require.False(t, ok)
}

func TestReadKeepsSegments(t *testing.T) {
	w := openTestWAL(t, t.TempDir(), testOptions())
	defer w.Close()

	_, err := w.Append(unitRecord(1))
	require.NoError(t, err)
	require.NoError(t, w.AppendNewSegment())
	_, err = w.Append(unitRecord(2))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	begin, _ := w.Begin()
	_, err = w.Read(begin, 1)
	require.NoError(t, err)
	// the limit taken by Read is gone again
	_, ok := w.cutLimits.min()
	require.False(t, ok)

	cut, err := w.CutAllSegmentsSmallerThan(2)
	require.NoError(t, err)
	require.True(t, cut)
}
