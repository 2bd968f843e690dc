package log

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
)

const defaultBatchPages = 16

// Reader parses the record stream of one segment file page by page.
type Reader struct {
	src      io.ReaderAt
	segment  uint64
	pageSize int
	limit    int64 // bytes of src that may be read
	cipher   *PageCipher

	buf        []byte
	batch      []byte
	batchStart int64 // page index of batch[0]
}

func NewReader(src io.ReaderAt, segment uint64, pageSize int, limit int64, c *PageCipher) *Reader {
	return &Reader{
		src:        src,
		segment:    segment,
		pageSize:   pageSize,
		limit:      limit,
		cipher:     c,
		buf:        make([]byte, defaultBatchPages*pageSize),
		batchStart: -1,
	}
}

// Scan calls fn for every complete record starting at pos, which must be
// a record boundary, until fn returns false or the readable part of the
// segment is exhausted. A record cut off by the end of the readable part is
// not reported. A page that fails verification stops the scan with an
// error wrapping db.ErrCorruption; records before it have been reported.
func (r *Reader) Scan(pos int64, fn func(pos int64, body []byte) bool) error {
	ps := int64(r.pageSize)
	if pos%ps < RecordsOffset {
		return errors.Wrapf(db.ErrInvalidArgument, "segment %d: position %d is inside a page header", r.segment, pos)
	}

	var (
		prefix    [LengthPrefixSize]byte
		prefixLen int
		body      []byte
		bodyLen   = -1
		recStart  int64
	)

	for pageIndex := pos / ps; pageIndex*ps < r.limit; pageIndex++ {
		page, err := r.page(pageIndex)
		if err != nil {
			return err
		}
		records, err := OpenPage(page, r.pageSize, r.cipher, r.segment, pageIndex)
		if err != nil {
			return err
		}

		off := 0
		if pageIndex == pos/ps {
			off = int(pos%ps) - RecordsOffset
		}

		for off < len(records) {
			if bodyLen < 0 {
				if prefixLen == 0 {
					recStart = pageIndex*ps + RecordsOffset + int64(off)
					if len(records)-off >= LengthPrefixSize &&
						binary.LittleEndian.Uint32(records[off:]) == 0 {
						// end of page
						break
					}
				}
				c := copy(prefix[prefixLen:], records[off:])
				prefixLen += c
				off += c
				if prefixLen < LengthPrefixSize {
					continue
				}
				n := binary.LittleEndian.Uint32(prefix[:])
				if n == 0 || int64(n) > r.limit {
					return errors.Wrapf(db.ErrCorruption, "segment %d page %d: bad record length %d",
						r.segment, pageIndex, n)
				}
				bodyLen = int(n)
				body = make([]byte, 0, bodyLen)
			}

			c := min(bodyLen-len(body), len(records)-off)
			body = append(body, records[off:off+c]...)
			off += c
			if len(body) < bodyLen {
				continue
			}

			if !fn(recStart, body) {
				return nil
			}
			prefixLen = 0
			bodyLen = -1
			body = nil
		}
	}
	return nil
}

// page returns page pageIndex, reading ahead up to a batch of pages.
func (r *Reader) page(pageIndex int64) ([]byte, error) {
	ps := int64(r.pageSize)
	if r.batchStart < 0 || pageIndex < r.batchStart || (pageIndex-r.batchStart)*ps >= int64(len(r.batch)) {
		want := min(int64(len(r.buf)), r.limit-pageIndex*ps)
		n, err := r.src.ReadAt(r.buf[:want], pageIndex*ps)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Mark(errors.Wrapf(err, "read segment %d at page %d", r.segment, pageIndex), db.ErrIO)
		}
		if n == 0 {
			return nil, errors.Wrapf(db.ErrCorruption, "segment %d page %d: missing page", r.segment, pageIndex)
		}
		// a short tail page is reported by OpenPage
		r.batch = r.buf[:n]
		r.batchStart = pageIndex
	}

	start := (pageIndex - r.batchStart) * ps
	end := min(start+ps, int64(len(r.batch)))
	return r.batch[start:end], nil
}
