package xlrd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/yamitzky/xlsreader/internal/xlstest"
)

func TestContextAdvance(t *testing.T) {
	steps := []struct {
		d     Decoded
		phase Phase
		depth int
	}{
		{BOF{Version: 0x0600, StreamType: XL_WORKBOOK_GLOBALS, BIFF: 80}, InGlobals, 0},
		{SST{Strings: []string{"a"}}, InGlobals, 0},
		{BOF{Version: 0x0600, StreamType: XL_CHART, BIFF: 80}, InGlobals, 1},
		{Opaque{}, InGlobals, 1},
		{EOF{}, InGlobals, 0},
		{EOF{}, AwaitingSheet, 0},
		{BOF{Version: 0x0600, StreamType: XL_WORKSHEET, BIFF: 80}, InSheet, 0},
		{CellRecord{}, InSheet, 0},
		{EOF{}, Done, 0},
	}
	ctx := NewContext()
	for i, s := range steps {
		next, err := ctx.Advance(s.d)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, s.phase, next.Phase, "step %d", i)
		assert.Equal(t, s.depth, next.Depth, "step %d", i)
		ctx = next
	}
	assert.Equal(t, 80, ctx.BIFF)
	assert.Equal(t, []string{"a"}, ctx.SST)
}

func TestContextAdvanceIsPure(t *testing.T) {
	ctx := NewContext()
	next, err := ctx.Advance(BOF{StreamType: XL_WORKBOOK_GLOBALS, BIFF: 80})
	require.NoError(t, err)
	assert.Equal(t, BeforeGlobals, ctx.Phase)
	assert.Equal(t, InGlobals, next.Phase)
}

func TestContextAdvanceErrors(t *testing.T) {
	_, err := NewContext().Advance(CellRecord{})
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewContext().Advance(BOF{StreamType: XL_WORKSHEET, BIFF: 80})
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewContext().Advance(BOF{StreamType: XL_WORKBOOK_GLOBALS, BIFF: 30})
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewContext().atSheet(0).Advance(CellRecord{})
	assert.ErrorIs(t, err, ErrSheetTableInconsistent)

	for _, typ := range []uint16{XL_WORKBOOK_GLOBALS, XL_CHART, XL_MACROSHEET, XL_VB_MODULE} {
		_, err = biff8Context().atSheet(0).Advance(BOF{StreamType: typ, BIFF: 80})
		assert.ErrorIs(t, err, ErrSheetTableInconsistent, "type 0x%04x", typ)
	}
}

func TestContextCodepage(t *testing.T) {
	biff5 := NewContext()
	biff5.Phase, biff5.BIFF = InGlobals, 50

	next, err := biff5.Advance(Codepage{Codepage: 1251})
	require.NoError(t, err)
	assert.Equal(t, 1251, next.Codepage)
	assert.Equal(t, charmap.Windows1251, next.Encoding)

	fixed := biff5.withEncodingOverride(charmap.KOI8R)
	next, err = fixed.Advance(Codepage{Codepage: 1251})
	require.NoError(t, err)
	assert.Equal(t, charmap.KOI8R, next.Encoding)

	next, err = biff8Context().Advance(Codepage{Codepage: 1200})
	require.NoError(t, err)
	assert.Equal(t, charmap.ISO8859_1, next.Encoding)
}

func TestDecodeVariants(t *testing.T) {
	ctx := biff8Context()
	ctx.SST = []string{"zero", "one"}

	tests := []struct {
		name   string
		record []byte
		want   Decoded
	}{
		{"bof", xlstest.BOF(xlstest.BIFF8, xlstest.StreamWorksheet),
			BOF{Version: 0x0600, StreamType: XL_WORKSHEET, BIFF: 80}},
		{"eof", xlstest.EOF(), EOF{}},
		{"boundsheet", xlstest.BoundSheet(1234, 1, 0, "Data"),
			BoundSheet{Offset: 1234, Visibility: 1, Kind: XL_BOUNDSHEET_WORKSHEET, Name: "Data"}},
		{"datemode", xlstest.DateMode(1), DateMode{Mode: 1}},
		{"codepage", xlstest.Codepage(1200), Codepage{Codepage: 1200}},
		{"filepass", xlstest.Record(xlstest.CodeFilePass, make([]byte, 6)), FilePass{}},
		{"dimensions", xlstest.Dimension(1, 10, 2, 5),
			Dimensions{FirstRow: 1, LastRow: 10, FirstCol: 2, LastCol: 5}},
		{"merged", xlstest.MergedCells([4]uint16{0, 1, 2, 3}),
			MergedCells{Ranges: [][4]int{{0, 2, 2, 4}}}},
		{"label sst", xlstest.LabelSST(2, 0, 0, 1),
			CellRecord{Cells: []Cell{{Row: 2, Kind: CellSharedString, Text: "one", SSTIndex: 1}}}},
		{"label", xlstest.Label(0, 3, 0, "héllo"),
			CellRecord{Cells: []Cell{{Col: 3, Kind: CellText, Text: "héllo"}}}},
		{"rk", xlstest.RK(1, 1, 0, 12345<<2|3),
			CellRecord{Cells: []Cell{{Row: 1, Col: 1, Kind: CellRK, Number: 123.45}}}},
		{"boolean", xlstest.BoolErr(0, 0, 0, 1, false),
			CellRecord{Cells: []Cell{{Kind: CellBoolean, Bool: true}}}},
		{"error", xlstest.BoolErr(0, 0, 0, 0x07, true),
			CellRecord{Cells: []Cell{{Kind: CellError, ErrorCode: 0x07}}}},
		{"blank", xlstest.Blank(4, 4, 3),
			CellRecord{Cells: []Cell{{Row: 4, Col: 4, XFIndex: 3, Kind: CellBlank}}}},
		{"mulrk", xlstest.MulRK(0, 2, 0, 1<<2|2, 2<<2|2),
			CellRecord{Cells: []Cell{{Col: 2, Kind: CellRK, Number: 1}, {Col: 3, Kind: CellRK, Number: 2}}}},
		{"mulblank", xlstest.MulBlank(5, 0, 1, 2),
			CellRecord{Cells: []Cell{{Row: 5, XFIndex: 1, Kind: CellBlank}, {Row: 5, Col: 1, XFIndex: 1, Kind: CellBlank}}}},
		{"string", xlstest.String("result"), StringResult{Text: "result"}},
		{"unknown", xlstest.Record(0x1234, []byte{1, 2}),
			Opaque{Record: Record{Code: 0x1234, Data: []byte{1, 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(ctx, readRecord(t, tt.record))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRecoverableErrors(t *testing.T) {
	ctx := biff8Context()

	d, err := Decode(ctx, readRecord(t, xlstest.LabelSST(0, 1, 0, 7)))
	assert.ErrorIs(t, err, ErrDanglingStringRef)
	require.IsType(t, CellRecord{}, d)
	c := d.(CellRecord).Cells[0]
	assert.Equal(t, CellUnknown, c.Kind)
	assert.Equal(t, 7, c.SSTIndex)
	assert.Equal(t, "unknown:sst[7]", c.String())

	d, err = Decode(ctx, readRecord(t, xlstest.DateMode(2)))
	assert.ErrorIs(t, err, ErrFormat)
	assert.Equal(t, DateMode{}, d)

	// A MULRK with a stray trailing byte keeps its complete entries.
	mulrk := xlstest.MulRK(0, 0, 0, 1<<2|2, 2<<2|2)
	mulrk = xlstest.Record(xlstest.CodeMulRK, append(mulrk[4:], 0))
	d, err = Decode(ctx, readRecord(t, mulrk))
	assert.ErrorIs(t, err, ErrTruncatedRecord)
	assert.Len(t, d.(CellRecord).Cells, 2)

	d, err = Decode(ctx, readRecord(t, xlstest.Record(xlstest.CodeNumber, []byte{0, 0})))
	assert.ErrorIs(t, err, ErrTruncatedRecord)
	assert.IsType(t, Opaque{}, d)
}

func TestDecodeFormulaResults(t *testing.T) {
	ctx := biff8Context()
	tokens := []byte{0x1E, 0x02, 0x00}

	tests := []struct {
		name   string
		result [8]byte
		kind   FormulaResultKind
		value  any
		typ    int
	}{
		{"number", xlstest.NumberResult(2.5), ResultNumber, 2.5, XL_CELL_NUMBER},
		{"boolean", xlstest.SpecialResult(1, 1), ResultBoolean, true, XL_CELL_BOOLEAN},
		{"error", xlstest.SpecialResult(2, 0x2A), ResultError, byte(0x2A), XL_CELL_ERROR},
		{"empty", xlstest.SpecialResult(3, 0), ResultEmpty, "", XL_CELL_TEXT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decode(ctx, readRecord(t, xlstest.Formula(0, 0, 0, tt.result, tokens)))
			require.NoError(t, err)
			c := d.(CellRecord).Cells[0]
			require.Equal(t, CellFormula, c.Kind)
			assert.Equal(t, tt.kind, c.Formula.Result)
			assert.Equal(t, tt.value, c.Value())
			assert.Equal(t, tt.typ, c.Type())
			assert.Equal(t, tokens, c.Formula.Tokens)
			assert.False(t, c.Formula.pending)
		})
	}

	d, err := Decode(ctx, readRecord(t, xlstest.Formula(0, 0, 0, xlstest.SpecialResult(0, 0), tokens)))
	require.NoError(t, err)
	assert.True(t, d.(CellRecord).Cells[0].Formula.pending)

	_, err = Decode(ctx, readRecord(t, xlstest.Formula(0, 0, 0, xlstest.SpecialResult(9, 0), tokens)))
	assert.ErrorIs(t, err, ErrFormat)
}
