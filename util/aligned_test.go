package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignedBuffer(t *testing.T) {
	for _, align := range []int{512, 4096} {
		buf := AlignedBuffer(3*align, align)
		require.Len(t, buf, 3*align)
		require.Equal(t, 3*align, cap(buf))
		require.True(t, IsAligned(buf, align))
		for _, b := range buf {
			require.Zero(t, b)
		}
	}
}
