package log

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
)

// PageCipher encrypts pages with AES in CTR mode. Each page gets its own IV
// derived from the configured one so that no two pages share a key stream.
type PageCipher struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

func NewPageCipher(key, iv []byte) (*PageCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, errors.Wrapf(db.ErrInvalidArgument, "encryption key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.Wrapf(db.ErrInvalidArgument, "encryption IV must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create page cipher")
	}
	c := &PageCipher{block: block}
	copy(c.iv[:], iv)
	return c, nil
}

// pageIV mixes the page index into the low half of the IV and the segment
// id into the high half.
func (c *PageCipher) pageIV(segment uint64, pageIndex int64) [aes.BlockSize]byte {
	iv := c.iv
	for i := 0; i < 8; i++ {
		iv[i] ^= byte(uint64(pageIndex) >> (8 * i))
		iv[i+8] ^= byte(segment >> (8 * i))
	}
	return iv
}

// XORKeyStream encrypts or decrypts data in place.
func (c *PageCipher) XORKeyStream(data []byte, segment uint64, pageIndex int64) {
	iv := c.pageIV(segment, pageIndex)
	cipher.NewCTR(c.block, iv[:]).XORKeyStream(data, data)
}
