package util

import "unsafe"

// AlignedBuffer returns a zeroed slice of size bytes whose first byte is
// aligned to align, which must be a power of two.
func AlignedBuffer(size, align int) []byte {
	Assert(align > 0 && align&(align-1) == 0)
	buf := make([]byte, size+align)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&buf[0])) & uintptr(align-1)); rem != 0 {
		off = align - rem
	}
	return buf[off : off+size : off+size]
}

func IsAligned(buf []byte, align int) bool {
	if len(buf) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&buf[0]))&uintptr(align-1) == 0
}
