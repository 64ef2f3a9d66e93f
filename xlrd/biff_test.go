package xlrd

import (
	"encoding/binary"
	"math"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamitzky/xlsreader/internal/xlstest"
)

func le16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func utf16le(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

// readRecord frames the given records as a stream and returns its first
// logical record.
func readRecord(t *testing.T, stream []byte) Record {
	t.Helper()
	rec, err := newReader(stream).Next()
	require.NoError(t, err)
	return rec
}

func biff8Context() Context {
	ctx := NewContext()
	ctx.Phase = InGlobals
	ctx.BIFF = 80
	return ctx
}

func TestDecodeRK(t *testing.T) {
	tests := []struct {
		name string
		rk   uint32
		want float64
	}{
		{"integer", 7<<2 | 0x02, 7},
		{"negative integer", 0xFFFFFFEC | 0x02, -5},
		{"integer over 100", 12345<<2 | 0x03, 123.45},
		{"float", 0x3FF80000, 1.5},
		{"float over 100", 0x3FF80000 | 0x01, 0.015},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeRK(tt.rk))
		})
	}
}

func TestSplitStringMatchesUnsplit(t *testing.T) {
	const want = "abcdΩe"
	header := xlstest.Concat(le32(1), le32(1))

	tests := []struct {
		name  string
		parts [][]byte
	}{
		{
			name: "narrow then wide",
			parts: [][]byte{
				xlstest.Concat(header, le16(6), []byte{0x00}, []byte("abc")),
				xlstest.Concat([]byte{0x01}, utf16le("dΩe")),
			},
		},
		{
			name: "wide then narrow",
			parts: [][]byte{
				xlstest.Concat(header, le16(6), []byte{0x01}, utf16le("abcdΩ")),
				{0x00, 'e'},
			},
		},
		{
			name: "split three ways",
			parts: [][]byte{
				xlstest.Concat(header, le16(6), []byte{0x00}, []byte("ab")),
				{0x00, 'c', 'd'},
				xlstest.Concat([]byte{0x01}, utf16le("Ωe")),
			},
		},
	}

	whole, err := Decode(biff8Context(), readRecord(t, xlstest.SST(want)))
	require.NoError(t, err)
	require.Equal(t, []string{want}, whole.(SST).Strings)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := readRecord(t, xlstest.Continued(xlstest.CodeSST, tt.parts...))
			d, err := Decode(biff8Context(), rec)
			require.NoError(t, err)
			assert.Equal(t, whole, d)
		})
	}
}

func TestUnicodeStringSkipsRichTextAndPhonetic(t *testing.T) {
	payload := xlstest.Concat(le32(2), le32(2),
		le16(3), []byte{0x0C}, le16(2), le32(5), []byte("xyz"), make([]byte, 2*4), make([]byte, 5),
		xlstest.UnicodeString("ok", 2))
	d, err := Decode(biff8Context(), readRecord(t, xlstest.Record(xlstest.CodeSST, payload)))
	require.NoError(t, err)
	assert.Equal(t, SST{TotalRefs: 2, Strings: []string{"xyz", "ok"}}, d)
}

func TestTruncatedSSTKeepsDecodedStrings(t *testing.T) {
	payload := xlstest.Concat(le32(3), le32(3),
		xlstest.UnicodeString("one", 2), xlstest.UnicodeString("two", 2))
	d, err := Decode(biff8Context(), readRecord(t, xlstest.Record(xlstest.CodeSST, payload)))
	assert.ErrorIs(t, err, ErrTruncatedRecord)
	require.IsType(t, SST{}, d)
	assert.Equal(t, []string{"one", "two"}, d.(SST).Strings)
}

func TestStringCutShortAtBorder(t *testing.T) {
	// The continuation holds only its option byte.
	rec := readRecord(t, xlstest.Continued(xlstest.CodeSST,
		xlstest.Concat(le32(1), le32(1), le16(4), []byte{0x00}, []byte("ab")),
		[]byte{0x00}))
	_, err := Decode(biff8Context(), rec)
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestByteStringUsesContextEncoding(t *testing.T) {
	ctx := NewContext()
	ctx.Phase = InSheet
	ctx.BIFF = 50
	_, ctx.Encoding = deriveEncoding(1251)

	// "Привет" in cp1251.
	raw := []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}
	d, err := Decode(ctx, readRecord(t, xlstest.Label5(1, 2, 0, raw)))
	require.NoError(t, err)
	cells := d.(CellRecord).Cells
	require.Len(t, cells, 1)
	assert.Equal(t, "Привет", cells[0].Text)
	assert.Equal(t, CellAddr{Row: 1, Col: 2}, cells[0].Addr())
}

func TestFloatRoundTrip(t *testing.T) {
	d, err := Decode(biff8Context(), readRecord(t, xlstest.Number(3, 4, 15, math.Pi)))
	require.NoError(t, err)
	c := d.(CellRecord).Cells[0]
	assert.Equal(t, CellNumber, c.Kind)
	assert.Equal(t, math.Pi, c.Value())
	assert.Equal(t, 15, c.XFIndex)
	assert.Equal(t, "E4", c.Addr().String())
}
