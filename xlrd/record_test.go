package xlrd

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamitzky/xlsreader/internal/xlstest"
)

func newReader(stream []byte) *RecordReader {
	return NewRecordReader(bytes.NewReader(stream), int64(len(stream)))
}

func TestRecordReaderMergesContinue(t *testing.T) {
	p1, p2, p3 := []byte("first"), []byte("second"), []byte("3")
	stream := xlstest.Concat(xlstest.Continued(xlstest.CodeSST, p1, p2, p3), xlstest.EOF())
	rr := newReader(stream)

	rec, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(XL_SST), rec.Code)
	assert.Equal(t, int64(0), rec.Offset)
	assert.Equal(t, []byte("firstsecond3"), rec.Data)
	assert.Equal(t, []int{5, 11}, rec.Borders)

	rec, err = rr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(XL_EOF), rec.Code)
	assert.Equal(t, int64(4*3+len("firstsecond3")), rec.Offset)
	assert.Empty(t, rec.Data)

	_, err = rr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestRecordReaderTruncated(t *testing.T) {
	number := xlstest.Number(0, 0, 0, 1)

	t.Run("payload", func(t *testing.T) {
		stream := xlstest.Concat(xlstest.EOF(), number[:len(number)-3])
		var got []Record
		var last error
		for rec, err := range newReader(stream).All() {
			if err != nil {
				last = err
				continue
			}
			got = append(got, rec)
		}
		assert.Len(t, got, 1)
		assert.ErrorIs(t, last, ErrTruncatedRecord)
	})

	t.Run("header", func(t *testing.T) {
		rr := newReader(number[:3])
		_, err := rr.Next()
		assert.ErrorIs(t, err, ErrTruncatedRecord)
	})
}

func TestRecordReaderRestartable(t *testing.T) {
	stream := xlstest.Concat(xlstest.BOF(xlstest.BIFF8, xlstest.StreamWorksheet),
		xlstest.Number(0, 0, 0, 1), xlstest.Blank(0, 1, 0), xlstest.EOF())
	rr := newReader(stream)

	count := func(seq func(func(Record, error) bool)) (codes []uint16) {
		for rec, err := range seq {
			require.NoError(t, err)
			codes = append(codes, rec.Code)
		}
		return codes
	}
	first := count(rr.All())
	assert.Equal(t, []uint16{XL_BOF, XL_NUMBER, XL_BLANK, XL_EOF}, first)
	assert.Equal(t, first, count(rr.All()))

	bofLen := int64(len(xlstest.BOF(xlstest.BIFF8, xlstest.StreamWorksheet)))
	assert.Equal(t, []uint16{XL_NUMBER, XL_BLANK, XL_EOF}, count(rr.From(bofLen)))

	rr.SeekTo(bofLen)
	rec, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(XL_NUMBER), rec.Code)
	rr.Reset()
	assert.Equal(t, int64(0), rr.Pos())
}
