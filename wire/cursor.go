// Package wire decodes and encodes the primitive on-wire types of the
// JP2 container and its codestream: fixed-width big-endian integers,
// opaque byte runs, 4-character codes, strings and URIs.
package wire

import (
	"github.com/cocosip/go-jp2-syntax/syntax"
)

// Cursor is a monotonically advancing read position over an immutable
// byte buffer. Every read checks the remaining byte count first and fails
// with syntax.ErrTruncatedInput rather than reading short.
type Cursor struct {
	data []byte
	pos  int
	base int64
}

// NewCursor returns a cursor over data. base is the absolute offset of
// data[0] within the enclosing stream, so that errors and node metadata
// carry stream offsets rather than slice-local ones.
func NewCursor(data []byte, base int64) *Cursor {
	return &Cursor{data: data, base: base}
}

// Offset returns the absolute stream offset of the next byte to read.
func (c *Cursor) Offset() int64 { return c.base + int64(c.pos) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Take consumes exactly n bytes and returns them as a sub-slice of the
// underlying buffer.
func (c *Cursor) Take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.data) {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, c.Offset(),
			"need %d bytes, %d remain", n, c.Remaining())
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Sub consumes exactly n bytes and returns a new cursor over them,
// preserving absolute offsets. Used to bound the decode of an element
// whose content length is declared up front.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	base := c.Offset()
	b, err := c.Take(n)
	if err != nil {
		return nil, err
	}
	return NewCursor(b, base), nil
}

// Uint decodes a big-endian unsigned integer of the given byte width
// (1 to 8).
func (c *Cursor) Uint(width int) (uint64, error) {
	b, err := c.Take(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v, nil
}

// Int decodes a big-endian signed (two's complement) integer of the
// given byte width.
func (c *Cursor) Int(width int) (int64, error) {
	v, err := c.Uint(width)
	if err != nil {
		return 0, err
	}
	shift := uint(64 - 8*width)
	return int64(v<<shift) >> shift, nil
}

// Uint16 is a convenience for the two-byte reads the marker walk does
// constantly.
func (c *Cursor) Uint16() (uint16, error) {
	v, err := c.Uint(2)
	return uint16(v), err
}

// PeekUint16 reads the next two bytes without consuming them. ok is
// false when fewer than two bytes remain.
func (c *Cursor) PeekUint16() (v uint16, ok bool) {
	if c.Remaining() < 2 {
		return 0, false
	}
	return uint16(c.data[c.pos])<<8 | uint16(c.data[c.pos+1]), true
}

// TakeToMarker consumes bytes up to, but not including, the next
// occurrence of one of the given two-byte marker codes, and returns
// them. If none occurs, the rest of the buffer is consumed. Used for
// tile-part payloads whose declared length is the "rest of codestream"
// sentinel: the delimiting codes cannot occur inside entropy-coded data,
// which never contains 0xFF90-0xFFFF byte pairs.
func (c *Cursor) TakeToMarker(codes ...uint16) []byte {
	start := c.pos
	for c.pos+1 < len(c.data) {
		if c.data[c.pos] == 0xFF {
			next := uint16(0xFF00) | uint16(c.data[c.pos+1])
			for _, code := range codes {
				if next == code {
					return c.data[start:c.pos]
				}
			}
		}
		c.pos++
	}
	c.pos = len(c.data)
	return c.data[start:]
}

// FourCC decodes a 4-character code. All four bytes must be printable
// ASCII (space permitted) or the result is syntax.ErrInvalidFourCC.
func (c *Cursor) FourCC() (string, error) {
	off := c.Offset()
	b, err := c.Take(4)
	if err != nil {
		return "", err
	}
	for _, by := range b {
		if by < 0x20 || by > 0x7E {
			return "", syntax.Errorf(syntax.ErrInvalidFourCC, off,
				"byte 0x%02X is not printable ASCII", by)
		}
	}
	return string(b), nil
}
