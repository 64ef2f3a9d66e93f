package xlrd

import (
	"cmp"
	"errors"
	"iter"
	"maps"
	"slices"
)

// Sheet contains the data for one worksheet.
//
// In the cell access functions, rowx is a row index, counting from zero,
// and colx is a column index, counting from zero.
//
// You don't instantiate this type yourself. You access Sheet objects via
// the Book object that was returned when you called OpenWorkbook.
type Sheet struct {
	// Name is the name of the sheet.
	Name string

	// Index is the position of the sheet among the workbook's worksheets.
	Index int

	// Offset is the stream position of the sheet's BOF record.
	Offset int64

	// Visibility is 0 for visible, 1 for hidden and 2 for very hidden.
	Visibility int

	// NRows is one more than the largest row index holding a cell.
	NRows int

	// NCols is one more than the largest column index holding a cell.
	NCols int

	// Dimensions is the used range declared by the DIMENSIONS record, if any.
	Dimensions *Dimensions

	// MergedCells is a list of address ranges of cells which have been merged.
	// Each is (rlo, rhi, clo, chi) with rhi and chi exclusive.
	MergedCells [][4]int

	// Errors holds the recoverable errors met while decoding this sheet.
	Errors []error

	cells   map[CellAddr]Cell
	rowLens map[int]int
}

func newSheet(index int, bs BoundSheet) *Sheet {
	return &Sheet{
		Name:       bs.Name,
		Index:      index,
		Offset:     bs.Offset,
		Visibility: bs.Visibility,
		cells:      make(map[CellAddr]Cell),
		rowLens:    make(map[int]int),
	}
}

// put stores c, replacing any earlier cell at the same address.
func (s *Sheet) put(c Cell) {
	s.cells[c.Addr()] = c
	s.NRows = max(s.NRows, c.Row+1)
	s.NCols = max(s.NCols, c.Col+1)
	s.rowLens[c.Row] = max(s.rowLens[c.Row], c.Col+1)
}

// Err joins the sheet's recoverable errors.
func (s *Sheet) Err() error {
	return errors.Join(s.Errors...)
}

// Len returns the number of populated addresses.
func (s *Sheet) Len() int {
	return len(s.cells)
}

// Lookup returns the cell at (rowx, colx) and whether a record defined it.
func (s *Sheet) Lookup(rowx, colx int) (Cell, bool) {
	c, ok := s.cells[CellAddr{Row: rowx, Col: colx}]
	return c, ok
}

// Cell returns the cell at (rowx, colx), or an empty cell.
func (s *Sheet) Cell(rowx, colx int) Cell {
	if c, ok := s.Lookup(rowx, colx); ok {
		return c
	}
	e := EmptyCell
	e.Row, e.Col = rowx, colx
	return e
}

// RawCellValue returns the value stored at (rowx, colx).
func (s *Sheet) RawCellValue(rowx, colx int) any {
	return s.Cell(rowx, colx).Value()
}

// RawCellType returns the XL_CELL_* type stored at (rowx, colx).
func (s *Sheet) RawCellType(rowx, colx int) int {
	return s.Cell(rowx, colx).Type()
}

// RawCellXFIndex returns the XF index stored at (rowx, colx), or -1.
func (s *Sheet) RawCellXFIndex(rowx, colx int) int {
	return s.Cell(rowx, colx).XFIndex
}

// MergedOrigin returns the top-left address of the merged range containing
// (rowx, colx), or the address itself.
func (s *Sheet) MergedOrigin(rowx, colx int) (int, int) {
	for _, r := range s.MergedCells {
		if rowx >= r[0] && rowx < r[1] && colx >= r[2] && colx < r[3] {
			return r[0], r[2]
		}
	}
	return rowx, colx
}

// CellValue returns the value at (rowx, colx). Cells inside a merged range
// report the value of the range's top-left cell.
func (s *Sheet) CellValue(rowx, colx int) any {
	return s.RawCellValue(s.MergedOrigin(rowx, colx))
}

// CellType returns the type of the cell at the given row and column,
// following merged ranges like CellValue.
func (s *Sheet) CellType(rowx, colx int) int {
	return s.RawCellType(s.MergedOrigin(rowx, colx))
}

// CellXFIndex returns the XF index at (rowx, colx), following merged ranges.
func (s *Sheet) CellXFIndex(rowx, colx int) int {
	return s.RawCellXFIndex(s.MergedOrigin(rowx, colx))
}

// RowLen returns one more than the largest column index holding a cell in rowx.
func (s *Sheet) RowLen(rowx int) int {
	return s.rowLens[rowx]
}

// Row returns the cells of rowx from column 0 to RowLen, padded with empty cells.
func (s *Sheet) Row(rowx int) []Cell {
	row := make([]Cell, s.RowLen(rowx))
	for colx := range row {
		row[colx] = s.Cell(rowx, colx)
	}
	return row
}

// Rows yields each row index below NRows with its padded cells.
func (s *Sheet) Rows() iter.Seq2[int, []Cell] {
	return func(yield func(int, []Cell) bool) {
		for rowx := 0; rowx < s.NRows; rowx++ {
			if !yield(rowx, s.Row(rowx)) {
				return
			}
		}
	}
}

// Cells yields the populated cells in row-major order.
func (s *Sheet) Cells() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		addrs := slices.SortedFunc(maps.Keys(s.cells), func(a, b CellAddr) int {
			return cmp.Or(cmp.Compare(a.Row, b.Row), cmp.Compare(a.Col, b.Col))
		})
		for _, a := range addrs {
			if !yield(s.cells[a]) {
				return
			}
		}
	}
}
