package util

import "encoding/binary"

// VarintLength is the number of bytes binary.AppendUvarint uses for x.
func VarintLength(x uint64) int {
	n := 1
	for ; x >= 0x80; x >>= 7 {
		n++
	}
	return n
}

func AppendLengthPrefixedBytes(dst, value []byte) []byte {
	return append(binary.AppendUvarint(dst, uint64(len(value))), value...)
}

// GetLengthPrefixedBytes returns the value at the front of input and the
// number of bytes it occupies, or 0 if input is truncated.
func GetLengthPrefixedBytes(input []byte) ([]byte, int) {
	length, n := binary.Uvarint(input)
	if n <= 0 || uint64(len(input)-n) < length {
		return nil, 0
	}
	end := n + int(length)
	return input[n:end], end
}
