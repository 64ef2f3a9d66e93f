package xlrd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamitzky/xlsreader/internal/xlstest"
)

type recordingHandler struct {
	strings  []string
	datemode int
	sheets   []string
	cells    map[int][]Cell
	stopAt   int
}

var errStop = errors.New("stop")

func (h *recordingHandler) OnSharedString(i int, s string) error {
	h.strings = append(h.strings, s)
	return nil
}

func (h *recordingHandler) OnDateMode(mode int) error {
	h.datemode = mode
	return nil
}

func (h *recordingHandler) OnSheet(i int, bs BoundSheet) error {
	h.sheets = append(h.sheets, bs.Name)
	return nil
}

func (h *recordingHandler) OnCell(sheet int, c Cell) error {
	if h.cells == nil {
		h.cells = make(map[int][]Cell)
	}
	h.cells[sheet] = append(h.cells[sheet], c)
	if h.stopAt > 0 && len(h.cells[sheet]) == h.stopAt {
		return errStop
	}
	return nil
}

func walkBytes(data []byte, opts *OpenWorkbookOptions, h Handler) error {
	return Walk(context.Background(), bytes.NewReader(data), int64(len(data)), opts, h)
}

func TestWalk(t *testing.T) {
	wb := twoSheetWorkbook()
	wb.Globals = append(wb.Globals, xlstest.SST("s0", "s1"))
	wb.Sheets[2].Records = append(wb.Sheets[2].Records,
		xlstest.Formula(1, 0, 0, xlstest.SpecialResult(0, 0), nil),
		xlstest.String("from formula"),
		xlstest.LabelSST(2, 0, 0, 1))

	h := &recordingHandler{}
	require.NoError(t, walkBytes(wb.File("Workbook"), nil, h))

	assert.Equal(t, []string{"s0", "s1"}, h.strings)
	assert.Equal(t, 1, h.datemode)
	assert.Equal(t, []string{"First", "Second"}, h.sheets)
	require.Len(t, h.cells[0], 1)
	require.Len(t, h.cells[1], 3)
	assert.Equal(t, "from formula", h.cells[1][1].Value())
	assert.Equal(t, "s1", h.cells[1][2].Value())
}

func TestWalkCollectsRecoverableErrors(t *testing.T) {
	wb := minimalWorkbook()
	wb.Sheets[0].Records = append(wb.Sheets[0].Records, xlstest.LabelSST(4, 4, 0, 40))
	data := wb.File("Workbook")

	h := &recordingHandler{}
	err := walkBytes(data, nil, h)
	assert.ErrorIs(t, err, ErrDanglingStringRef)
	assert.Contains(t, err.Error(), `sheet "Sheet1"`)
	assert.Len(t, h.cells[0], 4)

	err = walkBytes(data, &OpenWorkbookOptions{Strict: true}, &recordingHandler{})
	assert.ErrorIs(t, err, ErrDanglingStringRef)
}

func TestWalkStopsOnHandlerError(t *testing.T) {
	h := &recordingHandler{stopAt: 2}
	err := walkBytes(minimalWorkbook().File("Workbook"), nil, h)
	assert.ErrorIs(t, err, errStop)
	assert.Len(t, h.cells[0], 2)
}
