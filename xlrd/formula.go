package xlrd

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FormulaResultKind identifies the cached result type of a formula cell.
type FormulaResultKind int

const (
	ResultNumber FormulaResultKind = iota
	ResultString
	ResultBoolean
	ResultError
	ResultEmpty
)

func (k FormulaResultKind) String() string {
	switch k {
	case ResultNumber:
		return "number"
	case ResultString:
		return "string"
	case ResultBoolean:
		return "boolean"
	case ResultError:
		return "error"
	case ResultEmpty:
		return "empty"
	}
	return fmt.Sprintf("FormulaResultKind(%d)", int(k))
}

// Formula holds the value Excel cached for a formula cell and its parsed
// expression tokens, left unevaluated.
type Formula struct {
	// Result is the kind of the cached value.
	Result FormulaResultKind

	Number    float64
	Text      string
	Bool      bool
	ErrorCode byte

	// Flags is the FORMULA record option word (recalc, shared formula).
	Flags uint16

	// Tokens is the raw parsed expression.
	Tokens []byte

	// Extra holds any bytes after the token array, such as constant arrays.
	Extra []byte

	// pending is set while a string result waits for its STRING record.
	pending bool
}

// Shared reports whether the formula refers to a SHRFMLA record.
func (f *Formula) Shared() bool {
	return f.Flags&0x0008 != 0
}

// Value returns the cached result as a Go value.
func (f *Formula) Value() any {
	switch f.Result {
	case ResultNumber:
		return f.Number
	case ResultString:
		return f.Text
	case ResultBoolean:
		return f.Bool
	case ResultError:
		return f.ErrorCode
	}
	return ""
}

// decodeFormula reads a FORMULA record body after the cell header.
func decodeFormula(c *cursor) (*Formula, error) {
	result, err := c.bytes(8)
	if err != nil {
		return nil, err
	}
	f := &Formula{}
	if f.Flags, err = c.u16(); err != nil {
		return nil, err
	}
	if err := c.skip(4); err != nil {
		return nil, err
	}
	size, err := c.u16()
	if err != nil {
		return nil, err
	}
	tokens, err := c.bytes(int(size))
	if err != nil {
		return nil, err
	}
	f.Tokens = append([]byte(nil), tokens...)
	if c.remaining() > 0 {
		f.Extra = append([]byte(nil), c.data[c.pos:]...)
		c.pos = len(c.data)
	}

	if result[6] != 0xFF || result[7] != 0xFF {
		f.Result = ResultNumber
		f.Number = math.Float64frombits(binary.LittleEndian.Uint64(result))
		return f, nil
	}
	switch result[0] {
	case 0:
		f.Result = ResultString
		f.pending = true
	case 1:
		f.Result = ResultBoolean
		f.Bool = result[2] != 0
	case 2:
		f.Result = ResultError
		f.ErrorCode = result[2]
	case 3:
		f.Result = ResultEmpty
	default:
		return f, NewXLRDError(ErrFormat, "formula result type %d", result[0])
	}
	return f, nil
}
