package log

const (
	// Page header format:
	//   hash(8B), magic(8B), used size(2B)
	// The hash covers everything from the size field to the end of the used
	// area. Encryption covers the same range.
	HashOffset     = 0
	MagicOffset    = 8
	SizeOffset     = 16
	RecordsOffset  = 18
	PageHeaderSize = RecordsOffset

	// Records are stored as length(4B) followed by the record body and may
	// cross page boundaries, length prefix included.
	LengthPrefixSize = 4

	MinPageSize = 128
	MaxPageSize = 32 * 1024

	plainPageMagic     uint64 = 0x4547415041574c47 // "GLWAPAGE"
	encryptedPageMagic uint64 = 0x5059524341574c47 // "GLWACRYP"
)

// SerializedSize is the number of bytes a record body of n bytes occupies in
// the record stream, page headers excluded.
func SerializedSize(n int) int {
	return n + LengthPrefixSize
}

// MaxRecordSize is the record stream capacity of a single page.
func MaxRecordSize(pageSize int) int {
	return pageSize - RecordsOffset
}
