package xlrd

import (
	"fmt"
	"strconv"
)

// CellKind identifies which record form produced a cell value.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellRK
	CellBoolean
	CellError
	CellBlank
	CellText
	CellSharedString
	CellFormula
	// CellUnknown stands in for a value that refers to data the workbook does not have.
	CellUnknown
)

var cellKindNames = [...]string{
	CellEmpty:        "empty",
	CellNumber:       "number",
	CellRK:           "rk",
	CellBoolean:      "bool",
	CellError:        "error",
	CellBlank:        "blank",
	CellText:         "text",
	CellSharedString: "sst",
	CellFormula:      "formula",
	CellUnknown:      "unknown",
}

func (k CellKind) String() string {
	if int(k) >= 0 && int(k) < len(cellKindNames) {
		return cellKindNames[k]
	}
	return "CellKind(" + strconv.Itoa(int(k)) + ")"
}

// CellAddr is a 0-based (row, column) address.
type CellAddr struct {
	Row, Col int
}

func (a CellAddr) String() string {
	return Colname(a.Col) + strconv.Itoa(a.Row+1)
}

// Cell is one decoded cell value.
type Cell struct {
	Row, Col int

	// XFIndex is the index of the XF record for this cell.
	XFIndex int

	Kind CellKind

	// Number holds NUMBER and RK values.
	Number float64

	Bool      bool
	ErrorCode byte

	// Text holds LABEL text and resolved shared strings.
	Text string

	// SSTIndex is the shared string index for SharedString and dangling references.
	SSTIndex int

	Formula *Formula
}

// EmptyCell is returned for addresses that hold no record.
var EmptyCell = Cell{Kind: CellEmpty, XFIndex: -1}

// Addr returns the cell address.
func (c Cell) Addr() CellAddr {
	return CellAddr{Row: c.Row, Col: c.Col}
}

// Type maps the cell onto the XL_CELL_* classification. Dates are not
// distinguished here; see Book.IsDateCell.
func (c Cell) Type() int {
	switch c.Kind {
	case CellNumber, CellRK:
		return XL_CELL_NUMBER
	case CellBoolean:
		return XL_CELL_BOOLEAN
	case CellError:
		return XL_CELL_ERROR
	case CellBlank:
		return XL_CELL_BLANK
	case CellText, CellSharedString:
		return XL_CELL_TEXT
	case CellFormula:
		switch c.Formula.Result {
		case ResultNumber:
			return XL_CELL_NUMBER
		case ResultBoolean:
			return XL_CELL_BOOLEAN
		case ResultError:
			return XL_CELL_ERROR
		default:
			return XL_CELL_TEXT
		}
	}
	return XL_CELL_EMPTY
}

// Value returns the cell value: float64, string, bool or an error code byte.
// Empty, blank and unknown cells give "".
func (c Cell) Value() any {
	switch c.Kind {
	case CellNumber, CellRK:
		return c.Number
	case CellBoolean:
		return c.Bool
	case CellError:
		return c.ErrorCode
	case CellText, CellSharedString:
		return c.Text
	case CellFormula:
		return c.Formula.Value()
	}
	return ""
}

func (c Cell) String() string {
	switch c.Type() {
	case XL_CELL_NUMBER:
		return fmt.Sprintf("number:%v", c.Value())
	case XL_CELL_TEXT:
		return fmt.Sprintf("text:%q", c.Value())
	case XL_CELL_BOOLEAN:
		return fmt.Sprintf("bool:%v", c.Value())
	case XL_CELL_ERROR:
		code := c.Value().(byte)
		if text, ok := ErrorTextFromCode[code]; ok {
			return "error:" + text
		}
		return fmt.Sprintf("error:%#02x", code)
	case XL_CELL_BLANK:
		return "blank:''"
	}
	if c.Kind == CellUnknown {
		return fmt.Sprintf("unknown:sst[%d]", c.SSTIndex)
	}
	return "empty:''"
}

func cellHeader(c *cursor) (Cell, error) {
	row, err := c.u16()
	if err != nil {
		return Cell{}, err
	}
	col, err := c.u16()
	if err != nil {
		return Cell{}, err
	}
	xf, err := c.u16()
	if err != nil {
		return Cell{}, err
	}
	return Cell{Row: int(row), Col: int(col), XFIndex: int(xf)}, nil
}

func decodeNumber(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	cell, err := cellHeader(c)
	if err != nil {
		return nil, err
	}
	cell.Kind = CellNumber
	if cell.Number, err = c.f64(); err != nil {
		return nil, err
	}
	return CellRecord{Cells: []Cell{cell}}, nil
}

func decodeRK(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	cell, err := cellHeader(c)
	if err != nil {
		return nil, err
	}
	rk, err := c.u32()
	if err != nil {
		return nil, err
	}
	cell.Kind = CellRK
	cell.Number = DecodeRK(rk)
	return CellRecord{Cells: []Cell{cell}}, nil
}

func decodeMulRK(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	row, err := c.u16()
	if err != nil {
		return nil, err
	}
	first, err := c.u16()
	if err != nil {
		return nil, err
	}
	// Each entry is an XF index and an RK value; a last-column word follows.
	n := (c.remaining() - 2) / 6
	out := CellRecord{Cells: make([]Cell, 0, max(n, 0))}
	for i := 0; i < n; i++ {
		xf, _ := c.u16()
		rk, _ := c.u32()
		out.Cells = append(out.Cells, Cell{
			Row: int(row), Col: int(first) + i, XFIndex: int(xf),
			Kind: CellRK, Number: DecodeRK(rk),
		})
	}
	if c.remaining() != 2 {
		return out, NewXLRDError(ErrTruncatedRecord, "MULRK at %d has %d stray bytes", rec.Offset, c.remaining())
	}
	return out, nil
}

func decodeBoolErr(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	cell, err := cellHeader(c)
	if err != nil {
		return nil, err
	}
	value, err := c.u8()
	if err != nil {
		return nil, err
	}
	isError, err := c.u8()
	if err != nil {
		return nil, err
	}
	if isError != 0 {
		cell.Kind = CellError
		cell.ErrorCode = value
	} else {
		cell.Kind = CellBoolean
		cell.Bool = value != 0
	}
	return CellRecord{Cells: []Cell{cell}}, nil
}

func decodeBlank(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	cell, err := cellHeader(c)
	if err != nil {
		return nil, err
	}
	cell.Kind = CellBlank
	return CellRecord{Cells: []Cell{cell}}, nil
}

func decodeMulBlank(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	row, err := c.u16()
	if err != nil {
		return nil, err
	}
	first, err := c.u16()
	if err != nil {
		return nil, err
	}
	n := (c.remaining() - 2) / 2
	out := CellRecord{Cells: make([]Cell, 0, max(n, 0))}
	for i := 0; i < n; i++ {
		xf, _ := c.u16()
		out.Cells = append(out.Cells, Cell{Row: int(row), Col: int(first) + i, XFIndex: int(xf), Kind: CellBlank})
	}
	if c.remaining() != 2 {
		return out, NewXLRDError(ErrTruncatedRecord, "MULBLANK at %d has %d stray bytes", rec.Offset, c.remaining())
	}
	return out, nil
}

// decodeLabel handles LABEL and RSTRING; the RSTRING formatting runs are ignored.
func decodeLabel(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	cell, err := cellHeader(c)
	if err != nil {
		return nil, err
	}
	cell.Kind = CellText
	if cell.Text, err = c.text(ctx, 2); err != nil {
		return nil, err
	}
	return CellRecord{Cells: []Cell{cell}}, nil
}

func decodeLabelSST(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	cell, err := cellHeader(c)
	if err != nil {
		return nil, err
	}
	idx, err := c.u32()
	if err != nil {
		return nil, err
	}
	cell.SSTIndex = int(idx)
	if int64(idx) >= int64(len(ctx.SST)) {
		cell.Kind = CellUnknown
		return CellRecord{Cells: []Cell{cell}}, NewXLRDError(ErrDanglingStringRef,
			"cell %s refers to string %d of %d", cell.Addr(), idx, len(ctx.SST))
	}
	cell.Kind = CellSharedString
	cell.Text = ctx.SST[idx]
	return CellRecord{Cells: []Cell{cell}}, nil
}

func decodeFormulaCell(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	cell, err := cellHeader(c)
	if err != nil {
		return nil, err
	}
	f, err := decodeFormula(c)
	if f == nil {
		return nil, err
	}
	cell.Kind = CellFormula
	cell.Formula = f
	return CellRecord{Cells: []Cell{cell}}, err
}

func decodeString(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	s, err := c.text(ctx, 2)
	if err != nil {
		return nil, err
	}
	return StringResult{Text: s}, nil
}
