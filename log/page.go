package log

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
)

// SealPage fills in the header of page, whose record stream ends at used,
// and encrypts it when c is not nil.
func SealPage(page []byte, used int, c *PageCipher, segment uint64, pageIndex int64) {
	magic := plainPageMagic
	if c != nil {
		magic = encryptedPageMagic
	}
	binary.LittleEndian.PutUint64(page[MagicOffset:], magic)
	binary.LittleEndian.PutUint16(page[SizeOffset:], uint16(used))
	binary.LittleEndian.PutUint64(page[HashOffset:], xxhash.Sum64(page[SizeOffset:used]))

	if c != nil {
		c.XORKeyStream(page[SizeOffset:], segment, pageIndex)
	}
}

// OpenPage verifies page, decrypting it in place first if needed, and
// returns its record stream.
func OpenPage(page []byte, pageSize int, c *PageCipher, segment uint64, pageIndex int64) ([]byte, error) {
	if len(page) < pageSize {
		return nil, errors.Wrapf(db.ErrCorruption, "segment %d page %d: truncated page (%d of %d bytes)",
			segment, pageIndex, len(page), pageSize)
	}

	switch magic := binary.LittleEndian.Uint64(page[MagicOffset:]); magic {
	case plainPageMagic:
	case encryptedPageMagic:
		if c == nil {
			return nil, errors.Wrapf(db.ErrEncryptionKeyAbsent, "segment %d page %d", segment, pageIndex)
		}
		c.XORKeyStream(page[SizeOffset:pageSize], segment, pageIndex)
	default:
		return nil, errors.Wrapf(db.ErrCorruption, "segment %d page %d: bad magic number %#x", segment, pageIndex, magic)
	}

	used := int(binary.LittleEndian.Uint16(page[SizeOffset:]))
	if used < RecordsOffset || used > pageSize {
		return nil, errors.Wrapf(db.ErrCorruption, "segment %d page %d: bad page size %d", segment, pageIndex, used)
	}
	if xxhash.Sum64(page[SizeOffset:used]) != binary.LittleEndian.Uint64(page[HashOffset:]) {
		return nil, errors.Wrapf(db.ErrCorruption, "segment %d page %d: hash mismatch", segment, pageIndex)
	}

	return page[RecordsOffset:used], nil
}
