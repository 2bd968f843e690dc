package log

import (
	"encoding/binary"

	"github.com/ls4154/gowal/util"
)

// PageBuffer assembles a run of pages in memory. The header area of every
// page is skipped lazily when its first record byte is written and filled in
// by Seal.
type PageBuffer struct {
	data     []byte
	pageSize int
	pos      int
}

func NewPageBuffer(data []byte, pageSize int) *PageBuffer {
	util.Assertf(len(data) > 0 && len(data)%pageSize == 0, "buffer of %d bytes for %d byte pages", len(data), pageSize)
	return &PageBuffer{
		data:     data,
		pageSize: pageSize,
	}
}

func (b *PageBuffer) Reset() {
	// sealing touches the tail of the last page too
	clear(b.data[:b.usedPages()*b.pageSize])
	b.pos = 0
}

func (b *PageBuffer) usedPages() int {
	return (b.pos + b.pageSize - 1) / b.pageSize
}

func (b *PageBuffer) Empty() bool {
	return b.pos == 0
}

func (b *PageBuffer) Full() bool {
	return b.pos == len(b.data)
}

// NextOffset is the buffer offset the next written byte will land on.
func (b *PageBuffer) NextOffset() int {
	if b.pos%b.pageSize == 0 {
		return b.pos + RecordsOffset
	}
	return b.pos
}

// Write copies as much of p as fits and returns the number of bytes taken.
func (b *PageBuffer) Write(p []byte) int {
	n := 0
	for len(p) > 0 && b.pos < len(b.data) {
		if b.pos%b.pageSize == 0 {
			b.pos += RecordsOffset
		}
		pageEnd := (b.pos/b.pageSize + 1) * b.pageSize
		c := copy(b.data[b.pos:pageEnd], p)
		b.pos += c
		n += c
		p = p[c:]
	}
	return n
}

// WriteRecord writes the framed record (length prefix and body), skipping
// the first done bytes of the frame. It returns how many frame bytes have
// been written in total so that a caller can continue in a fresh buffer.
func (b *PageBuffer) WriteRecord(body []byte, done int) int {
	var prefix [LengthPrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(body)))

	if done < LengthPrefixSize {
		done += b.Write(prefix[done:])
		if done < LengthPrefixSize {
			return done
		}
	}
	return done + b.Write(body[done-LengthPrefixSize:])
}

// Seal finalizes every page touched so far and returns the whole pages to
// be written. firstPage is the index of the buffer's first page within its
// segment.
func (b *PageBuffer) Seal(c *PageCipher, segment uint64, firstPage int64) []byte {
	if b.pos == 0 {
		return nil
	}
	pages := b.usedPages()
	for i := 0; i < pages; i++ {
		used := b.pageSize
		if i == pages-1 {
			used = b.pos - i*b.pageSize
		}
		page := b.data[i*b.pageSize : (i+1)*b.pageSize]
		SealPage(page, used, c, segment, firstPage+int64(i))
	}
	return b.data[:pages*b.pageSize]
}
