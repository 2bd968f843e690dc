package util

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func ChecksumCRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// MaskedCRC32C is the crc32c of data in the masked form stored on disk.
func MaskedCRC32C(data []byte) uint32 {
	return MaskCRC32(ChecksumCRC32C(data))
}

const maskDelta = 0xa282ead8

// MaskCRC32 rotates crc so that a checksum stored next to the data it covers
// does not checksum to itself.
func MaskCRC32(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

func UnmaskCRC32(masked uint32) uint32 {
	rot := masked - maskDelta
	return (rot >> 17) | (rot << 15)
}
