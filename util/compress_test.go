package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func compressibleInput() []byte {
	input := make([]byte, 10000)
	for i := 0; i < 10000; i++ {
		input[i] = byte(i)
	}
	return input
}

func TestSnappyCompression(t *testing.T) {
	input := compressibleInput()

	compressed := SnappyCompress(input)
	uncompressed, err := SnappyUncompress(compressed)
	require.NoError(t, err)

	require.Equal(t, input, uncompressed)
}

func TestZstdCompression(t *testing.T) {
	input := compressibleInput()

	compressed := ZstdCompress(input)
	require.Less(t, len(compressed), len(input))
	uncompressed, err := ZstdUncompress(compressed)
	require.NoError(t, err)

	require.Equal(t, input, uncompressed)
}

func TestZstdUncompressGarbage(t *testing.T) {
	_, err := ZstdUncompress([]byte("definitely not a zstd frame"))
	require.Error(t, err)
}
