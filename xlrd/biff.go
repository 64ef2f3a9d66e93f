package xlrd

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Unicode string option flags.
const (
	strHighByte = 0x01
	strExtended = 0x04
	strRichText = 0x08
)

// cursor reads fields from a logical record payload. borders holds the
// payload offsets at which a CONTINUE record began.
type cursor struct {
	data    []byte
	pos     int
	borders []int
}

func newCursor(rec Record) *cursor {
	return &cursor{data: rec.Data, borders: rec.Borders}
}

func (c *cursor) remaining() int {
	return len(c.data) - c.pos
}

func (c *cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.data) {
		return NewXLRDError(ErrTruncatedRecord, "need %d bytes at %d, payload is %d", n, c.pos, len(c.data))
	}
	return nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) f64() (float64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(c.data[c.pos:]))
	c.pos += 8
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) count(lenBytes int) (int, error) {
	if lenBytes == 1 {
		n, err := c.u8()
		return int(n), err
	}
	n, err := c.u16()
	return int(n), err
}

func (c *cursor) atBorder() bool {
	for _, b := range c.borders {
		if b == c.pos {
			return true
		}
	}
	return false
}

func (c *cursor) nextBorder() int {
	for _, b := range c.borders {
		if b > c.pos {
			return b
		}
	}
	return len(c.data)
}

// chars reads n characters of BIFF8 string data. At a continuation border
// a fresh option byte restates whether the rest of the string is wide.
func (c *cursor) chars(n int, wide bool) (string, error) {
	units := make([]uint16, 0, min(n, len(c.data)))
	for len(units) < n {
		if c.atBorder() {
			opts, err := c.u8()
			if err != nil {
				return "", err
			}
			wide = opts&strHighByte != 0
		}
		size := 1
		if wide {
			size = 2
		}
		avail := (c.nextBorder() - c.pos) / size
		if avail == 0 {
			return "", NewXLRDError(ErrTruncatedRecord, "string of %d characters cut short after %d", n, len(units))
		}
		k := min(n-len(units), avail)
		for i := 0; i < k; i++ {
			if wide {
				units = append(units, binary.LittleEndian.Uint16(c.data[c.pos+2*i:]))
			} else {
				units = append(units, uint16(charmap.ISO8859_1.DecodeByte(c.data[c.pos+i])))
			}
		}
		c.pos += k * size
	}
	return string(utf16.Decode(units)), nil
}

// unicodeString reads a BIFF8 Unicode string whose character count takes
// lenBytes bytes, skipping any rich text runs and phonetic block.
func (c *cursor) unicodeString(lenBytes int) (string, error) {
	n, err := c.count(lenBytes)
	if err != nil {
		return "", err
	}
	if n == 0 && c.remaining() == 0 {
		return "", nil
	}
	opts, err := c.u8()
	if err != nil {
		return "", err
	}
	var runs, ext int
	if opts&strRichText != 0 {
		r, err := c.u16()
		if err != nil {
			return "", err
		}
		runs = int(r)
	}
	if opts&strExtended != 0 {
		e, err := c.u32()
		if err != nil {
			return "", err
		}
		ext = int(e)
	}
	s, err := c.chars(n, opts&strHighByte != 0)
	if err != nil {
		return "", err
	}
	if err := c.skip(4 * runs); err != nil {
		return "", err
	}
	if err := c.skip(ext); err != nil {
		return "", err
	}
	return s, nil
}

// byteString reads a pre-BIFF8 string of single bytes in the workbook codepage.
func (c *cursor) byteString(lenBytes int, enc encoding.Encoding) (string, error) {
	n, err := c.count(lenBytes)
	if err != nil {
		return "", err
	}
	raw, err := c.bytes(n)
	if err != nil {
		return "", err
	}
	return decodeBytes(raw, enc), nil
}

// text reads a string in the encoding the context's BIFF version uses.
func (c *cursor) text(ctx Context, lenBytes int) (string, error) {
	if ctx.BIFF >= 80 {
		return c.unicodeString(lenBytes)
	}
	return c.byteString(lenBytes, ctx.Encoding)
}

func decodeBytes(raw []byte, enc encoding.Encoding) string {
	if enc == nil {
		enc = charmap.ISO8859_1
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		out, _ = charmap.ISO8859_1.NewDecoder().Bytes(raw)
	}
	return string(out)
}

// DecodeRK decodes the compressed RK number format: bit 1 selects a 30-bit
// signed integer over the top 30 bits of an IEEE double, bit 0 divides by 100.
func DecodeRK(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&0xFFFFFFFC) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}
