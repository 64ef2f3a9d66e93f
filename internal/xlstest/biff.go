package xlstest

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
)

// BIFF record codes used by the builders.
const (
	CodeFormula    = 0x0006
	CodeEOF        = 0x000A
	CodeDateMode   = 0x0022
	CodeFilePass   = 0x002F
	CodeContinue   = 0x003C
	CodeCodepage   = 0x0042
	CodeBoundSheet = 0x0085
	CodeMulRK      = 0x00BD
	CodeMulBlank   = 0x00BE
	CodeXF         = 0x00E0
	CodeMerged     = 0x00E5
	CodeSST        = 0x00FC
	CodeLabelSST   = 0x00FD
	CodeDimension  = 0x0200
	CodeBlank      = 0x0201
	CodeNumber     = 0x0203
	CodeLabel      = 0x0204
	CodeBoolErr    = 0x0205
	CodeString     = 0x0207
	CodeRK         = 0x027E
	CodeFormat     = 0x041E
	CodeBOF        = 0x0809

	BIFF8 = 0x0600
	BIFF5 = 0x0500

	StreamGlobals   = 0x0005
	StreamWorksheet = 0x0010
	StreamChart     = 0x0020
)

// Record frames payload as one record.
func Record(code uint16, payload []byte) []byte {
	b := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint16(b, code)
	binary.LittleEndian.PutUint16(b[2:], uint16(len(payload)))
	return append(b, payload...)
}

// Continued frames parts[0] as a record of code and every following part
// as a CONTINUE record.
func Continued(code uint16, parts ...[]byte) []byte {
	var out []byte
	for i, p := range parts {
		c := code
		if i > 0 {
			c = CodeContinue
		}
		out = append(out, Record(c, p)...)
	}
	return out
}

// Concat joins records.
func Concat(recs ...[]byte) []byte {
	var out []byte
	for _, r := range recs {
		out = append(out, r...)
	}
	return out
}

func u16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func cellHeader(row, col, xf uint16) []byte {
	return Concat(u16(row), u16(col), u16(xf))
}

// BOF builds a beginning-of-substream record.
func BOF(version, streamType uint16) []byte {
	p := Concat(u16(version), u16(streamType), u16(0x0DBB), u16(0x07CC))
	if version == BIFF8 {
		p = Concat(p, u32(0), u32(0x06))
	}
	return Record(CodeBOF, p)
}

// EOF builds an end-of-substream record.
func EOF() []byte {
	return Record(CodeEOF, nil)
}

// Wide reports whether s needs two bytes per character.
func Wide(s string) bool {
	for _, r := range s {
		if r > 0xFF {
			return true
		}
	}
	return false
}

// Chars encodes s as BIFF8 character data, compressed when possible.
func Chars(s string, wide bool) []byte {
	units := utf16.Encode([]rune(s))
	var out []byte
	for _, u := range units {
		if wide {
			out = binary.LittleEndian.AppendUint16(out, u)
		} else {
			out = append(out, byte(u))
		}
	}
	return out
}

// UnicodeString encodes s as a BIFF8 Unicode string with a lenBytes-wide
// character count.
func UnicodeString(s string, lenBytes int) []byte {
	n := len(utf16.Encode([]rune(s)))
	var out []byte
	if lenBytes == 1 {
		out = []byte{byte(n)}
	} else {
		out = u16(uint16(n))
	}
	wide := Wide(s)
	var flags byte
	if wide {
		flags = 0x01
	}
	out = append(out, flags)
	return append(out, Chars(s, wide)...)
}

// SSTPayload encodes a shared string table with each string in one piece.
func SSTPayload(strs ...string) []byte {
	p := Concat(u32(uint32(len(strs))), u32(uint32(len(strs))))
	for _, s := range strs {
		p = append(p, UnicodeString(s, 2)...)
	}
	return p
}

// SST builds an unsplit SST record.
func SST(strs ...string) []byte {
	return Record(CodeSST, SSTPayload(strs...))
}

// BoundSheet builds a BIFF8 BOUNDSHEET record.
func BoundSheet(offset uint32, visibility, kind byte, name string) []byte {
	return Record(CodeBoundSheet, Concat(u32(offset), []byte{visibility, kind}, UnicodeString(name, 1)))
}

// BoundSheet5 builds a BIFF5 BOUNDSHEET record with a byte string name.
func BoundSheet5(offset uint32, kind byte, name []byte) []byte {
	return Record(CodeBoundSheet, Concat(u32(offset), []byte{0, kind, byte(len(name))}, name))
}

// Number builds a NUMBER record.
func Number(row, col, xf uint16, v float64) []byte {
	return Record(CodeNumber, Concat(cellHeader(row, col, xf), binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))))
}

// RK builds an RK record.
func RK(row, col, xf uint16, rk uint32) []byte {
	return Record(CodeRK, Concat(cellHeader(row, col, xf), u32(rk)))
}

// MulRK builds a MULRK record starting at firstCol.
func MulRK(row, firstCol uint16, xf uint16, rks ...uint32) []byte {
	p := Concat(u16(row), u16(firstCol))
	for _, rk := range rks {
		p = Concat(p, u16(xf), u32(rk))
	}
	return Record(CodeMulRK, Concat(p, u16(firstCol+uint16(len(rks))-1)))
}

// MulBlank builds a MULBLANK record covering n columns.
func MulBlank(row, firstCol uint16, xf uint16, n int) []byte {
	p := Concat(u16(row), u16(firstCol))
	for i := 0; i < n; i++ {
		p = append(p, u16(xf)...)
	}
	return Record(CodeMulBlank, Concat(p, u16(firstCol+uint16(n)-1)))
}

// LabelSST builds a LABELSST record.
func LabelSST(row, col, xf uint16, idx uint32) []byte {
	return Record(CodeLabelSST, Concat(cellHeader(row, col, xf), u32(idx)))
}

// Label builds a BIFF8 LABEL record.
func Label(row, col, xf uint16, s string) []byte {
	return Record(CodeLabel, Concat(cellHeader(row, col, xf), UnicodeString(s, 2)))
}

// Label5 builds a BIFF5 LABEL record with a byte string.
func Label5(row, col, xf uint16, s []byte) []byte {
	return Record(CodeLabel, Concat(cellHeader(row, col, xf), u16(uint16(len(s))), s))
}

// Blank builds a BLANK record.
func Blank(row, col, xf uint16) []byte {
	return Record(CodeBlank, cellHeader(row, col, xf))
}

// BoolErr builds a BOOLERR record.
func BoolErr(row, col, xf uint16, value byte, isError bool) []byte {
	var e byte
	if isError {
		e = 1
	}
	return Record(CodeBoolErr, Concat(cellHeader(row, col, xf), []byte{value, e}))
}

// NumberResult encodes a numeric formula result.
func NumberResult(v float64) [8]byte {
	var r [8]byte
	binary.LittleEndian.PutUint64(r[:], math.Float64bits(v))
	return r
}

// SpecialResult encodes a non-numeric formula result of type kind.
func SpecialResult(kind, value byte) [8]byte {
	return [8]byte{kind, 0, value, 0, 0, 0, 0xFF, 0xFF}
}

// Formula builds a FORMULA record.
func Formula(row, col, xf uint16, result [8]byte, tokens []byte) []byte {
	p := Concat(cellHeader(row, col, xf), result[:], u16(0), u32(0), u16(uint16(len(tokens))), tokens)
	return Record(CodeFormula, p)
}

// String builds a STRING record following a formula.
func String(s string) []byte {
	return Record(CodeString, UnicodeString(s, 2))
}

// Dimension builds a BIFF8 DIMENSIONS record.
func Dimension(firstRow, lastRowPlus1 uint32, firstCol, lastColPlus1 uint16) []byte {
	return Record(CodeDimension, Concat(u32(firstRow), u32(lastRowPlus1), u16(firstCol), u16(lastColPlus1), u16(0)))
}

// MergedCells builds a MERGEDCELLS record from (rlo, rhi, clo, chi) inclusive ranges.
func MergedCells(ranges ...[4]uint16) []byte {
	p := u16(uint16(len(ranges)))
	for _, r := range ranges {
		p = Concat(p, u16(r[0]), u16(r[1]), u16(r[2]), u16(r[3]))
	}
	return Record(CodeMerged, p)
}

// DateMode builds a DATEMODE record.
func DateMode(mode uint16) []byte {
	return Record(CodeDateMode, u16(mode))
}

// Codepage builds a CODEPAGE record.
func Codepage(cp uint16) []byte {
	return Record(CodeCodepage, u16(cp))
}

// Format builds a BIFF8 FORMAT record.
func Format(key uint16, s string) []byte {
	return Record(CodeFormat, Concat(u16(key), UnicodeString(s, 2)))
}

// XF builds a minimal BIFF8 cell XF record using format key.
func XF(font, format uint16) []byte {
	p := Concat(u16(font), u16(format), u16(0x0001), make([]byte, 14))
	return Record(CodeXF, p)
}

// Sheet is one substream of a built workbook.
type Sheet struct {
	Name string
	// Kind is the BOUNDSHEET type byte: 0 worksheet, 1 macro sheet, 2 chart.
	Kind    byte
	Records [][]byte
}

// Workbook describes a BIFF workbook stream.
type Workbook struct {
	// Version is BIFF8 or BIFF5; zero means BIFF8.
	Version uint16
	// Globals are records placed between the globals BOF and the BOUNDSHEET records.
	Globals [][]byte
	Sheets  []Sheet
}

// Bytes builds the workbook stream with BOUNDSHEET offsets filled in.
func (w Workbook) Bytes() []byte {
	version := w.Version
	if version == 0 {
		version = BIFF8
	}
	bound := func(offset uint32, s Sheet) []byte {
		if version == BIFF5 {
			return BoundSheet5(offset, s.Kind, []byte(s.Name))
		}
		return BoundSheet(offset, 0, s.Kind, s.Name)
	}

	head := Concat(BOF(version, StreamGlobals), Concat(w.Globals...))
	size := len(head) + len(EOF())
	for _, s := range w.Sheets {
		size += len(bound(0, s))
	}

	var bounds, bodies []byte
	offset := size
	for _, s := range w.Sheets {
		bounds = append(bounds, bound(uint32(offset), s)...)
		streamType := uint16(StreamWorksheet)
		if s.Kind == 2 {
			streamType = StreamChart
		}
		body := Concat(BOF(version, streamType), Concat(s.Records...), EOF())
		bodies = append(bodies, body...)
		offset += len(body)
	}
	return Concat(head, bounds, EOF(), bodies)
}

// File wraps the workbook stream in a compound file under streamName.
func (w Workbook) File(streamName string) []byte {
	return CFB{Nodes: []Node{{Name: streamName, Data: w.Bytes()}}}.Build().Data
}
