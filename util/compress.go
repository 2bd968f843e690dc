package util

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

func SnappyCompress(input []byte) []byte {
	return snappy.Encode(nil, input)
}

func SnappyUncompress(input []byte) ([]byte, error) {
	return snappy.Decode(nil, input)
}

// ZstdCompress is safe for concurrent use.
func ZstdCompress(input []byte) []byte {
	return zstdEncoder.EncodeAll(input, nil)
}

func ZstdUncompress(input []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(input, nil)
}
