package xlrd

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Phase is the position of a decoder within the workbook stream.
type Phase int

const (
	BeforeGlobals Phase = iota
	InGlobals
	AwaitingSheet
	InSheet
	Done
)

func (p Phase) String() string {
	switch p {
	case BeforeGlobals:
		return "before_globals"
	case InGlobals:
		return "globals"
	case AwaitingSheet:
		return "awaiting_sheet"
	case InSheet:
		return "sheet"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Context is the substream state a record is decoded in. It is a value:
// Advance returns the next state and leaves the receiver unchanged.
type Context struct {
	Phase Phase

	// Sheet is the bound sheet index being decoded, or -1.
	Sheet int

	// Depth counts BOF records nested inside the current substream.
	Depth int

	// BIFF is the version from the globals BOF: 50 or 80.
	BIFF int

	Codepage int
	Encoding encoding.Encoding

	// SST is the shared string table, set once the globals SST is decoded.
	SST []string

	encodingFixed bool
}

// NewContext returns the state for the start of a workbook stream.
func NewContext() Context {
	return Context{Phase: BeforeGlobals, Sheet: -1, Encoding: charmap.ISO8859_1}
}

// withEncodingOverride pins the byte string encoding regardless of CODEPAGE records.
func (ctx Context) withEncodingOverride(enc encoding.Encoding) Context {
	ctx.Encoding = enc
	ctx.encodingFixed = true
	return ctx
}

// atSheet returns the state for decoding bound sheet i, positioned just
// before its BOF.
func (ctx Context) atSheet(i int) Context {
	ctx.Phase = AwaitingSheet
	ctx.Sheet = i
	ctx.Depth = 0
	return ctx
}

// Advance returns the context that follows d.
func (ctx Context) Advance(d Decoded) (Context, error) {
	if bof, ok := d.(BOF); ok {
		switch ctx.Phase {
		case BeforeGlobals:
			if bof.StreamType != XL_WORKBOOK_GLOBALS {
				return ctx, NewXLRDError(ErrFormat, "first substream has type 0x%04x, want workbook globals", bof.StreamType)
			}
			if bof.BIFF != 50 && bof.BIFF != 80 {
				return ctx, NewXLRDError(ErrFormat, "BIFF version %s is not supported", BiffTextFromNum(bof.BIFF))
			}
			ctx.Phase = InGlobals
			ctx.BIFF = bof.BIFF
		case AwaitingSheet, Done:
			if bof.StreamType != XL_WORKSHEET {
				return ctx, NewXLRDError(ErrSheetTableInconsistent, "sheet %d starts with a BOF of type 0x%04x, want worksheet", ctx.Sheet, bof.StreamType)
			}
			ctx.Phase = InSheet
			ctx.Depth = 0
		default:
			ctx.Depth++
		}
		return ctx, nil
	}

	switch ctx.Phase {
	case BeforeGlobals:
		return ctx, NewXLRDError(ErrFormat, "workbook stream does not start with a BOF record")
	case AwaitingSheet, Done:
		return ctx, NewXLRDError(ErrSheetTableInconsistent, "sheet %d does not start with a BOF record", ctx.Sheet)
	}

	switch d := d.(type) {
	case EOF:
		switch {
		case ctx.Depth > 0:
			ctx.Depth--
		case ctx.Phase == InGlobals:
			ctx.Phase = AwaitingSheet
		default:
			ctx.Phase = Done
		}
	case Codepage:
		ctx.Codepage = d.Codepage
		if !ctx.encodingFixed && ctx.BIFF < 80 {
			_, ctx.Encoding = deriveEncoding(d.Codepage)
		}
	case SST:
		ctx.SST = d.Strings
	}
	return ctx, nil
}

// substream names the substream a record belongs to: a BOF belongs to the
// substream it opens and an EOF to the one it closes.
func substream(before, after Context, d Decoded) Phase {
	if _, ok := d.(EOF); ok {
		return before.Phase
	}
	return after.Phase
}

// Decoded is one of the typed record variants produced by Decode.
type Decoded interface {
	decoded()
}

// BOF begins a substream.
type BOF struct {
	Version    uint16
	StreamType uint16
	// BIFF is the version as 21, 30, 40, 50 or 80; 0 if unrecognised.
	BIFF int
}

// EOF ends a substream.
type EOF struct{}

// BoundSheet is one entry of the globals sheet table.
type BoundSheet struct {
	// Offset is the stream position of the sheet's BOF record.
	Offset     int64
	Visibility int
	Kind       int
	Name       string
}

// SST is the shared string table.
type SST struct {
	// TotalRefs is the number of references to the table in the workbook.
	TotalRefs int
	Strings   []string
}

// DateMode selects the 1900 (0) or 1904 (1) date system.
type DateMode struct {
	Mode int
}

// Codepage names the character set of byte strings.
type Codepage struct {
	Codepage int
}

// FilePass marks an encrypted workbook.
type FilePass struct{}

// Dimensions is the declared used range of a sheet; the last bounds are exclusive.
type Dimensions struct {
	FirstRow, LastRow int
	FirstCol, LastCol int
}

// MergedCells lists merged ranges as (rlo, rhi, clo, chi) with exclusive upper bounds.
type MergedCells struct {
	Ranges [][4]int
}

// CellRecord carries the cells of one cell record.
type CellRecord struct {
	Cells []Cell
}

// StringResult is the text result of the preceding formula.
type StringResult struct {
	Text string
}

// Opaque is a record with no decoder.
type Opaque struct {
	Record Record
}

func (BOF) decoded()          {}
func (EOF) decoded()          {}
func (BoundSheet) decoded()   {}
func (SST) decoded()          {}
func (DateMode) decoded()     {}
func (Codepage) decoded()     {}
func (Format) decoded()       {}
func (XF) decoded()           {}
func (FilePass) decoded()     {}
func (Dimensions) decoded()   {}
func (MergedCells) decoded()  {}
func (CellRecord) decoded()   {}
func (StringResult) decoded() {}
func (Opaque) decoded()       {}

type decodeFunc func(ctx Context, rec Record) (Decoded, error)

var decoders = map[uint16]decodeFunc{
	0x0009:         decodeBOF,
	0x0209:         decodeBOF,
	0x0409:         decodeBOF,
	XL_BOF:         decodeBOF,
	XL_EOF:         func(Context, Record) (Decoded, error) { return EOF{}, nil },
	XL_BOUNDSHEET:  decodeBoundSheet,
	XL_SST:         decodeSST,
	XL_DATEMODE:    decodeDateMode,
	XL_CODEPAGE:    decodeCodepage,
	XL_FORMAT:      decodeFormat,
	XL_XF:          decodeXF,
	XL_FILEPASS:    func(Context, Record) (Decoded, error) { return FilePass{}, nil },
	XL_DIMENSION:   decodeDimensions,
	XL_MERGEDCELLS: decodeMergedCells,
	XL_NUMBER:      decodeNumber,
	XL_RK:          decodeRK,
	XL_RK2:         decodeRK,
	XL_MULRK:       decodeMulRK,
	XL_BOOLERR:     decodeBoolErr,
	XL_BLANK:       decodeBlank,
	XL_MULBLANK:    decodeMulBlank,
	XL_LABEL:       decodeLabel,
	XL_RSTRING:     decodeLabel,
	XL_LABELSST:    decodeLabelSST,
	XL_FORMULA:     decodeFormulaCell,
	XL_STRING:      decodeString,
}

// Decode turns rec into its typed variant. Records without a decoder come
// back as Opaque. A recoverable error may accompany a partial result.
func Decode(ctx Context, rec Record) (Decoded, error) {
	fn, ok := decoders[rec.Code]
	if !ok {
		return Opaque{Record: rec}, nil
	}
	d, err := fn(ctx, rec)
	if err != nil && d == nil {
		return Opaque{Record: rec}, fmt.Errorf("%s at %d: %w", RecordName(rec.Code), rec.Offset, err)
	}
	if err != nil {
		err = fmt.Errorf("%s at %d: %w", RecordName(rec.Code), rec.Offset, err)
	}
	return d, err
}

var bofVersions = map[uint16]int{
	0x0009: 21,
	0x0209: 30,
	0x0409: 40,
}

func decodeBOF(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	version, err := c.u16()
	if err != nil {
		return nil, err
	}
	streamType, err := c.u16()
	if err != nil {
		return nil, err
	}
	bof := BOF{Version: version, StreamType: streamType}
	if rec.Code != XL_BOF {
		bof.BIFF = bofVersions[rec.Code]
		return bof, nil
	}
	switch version {
	case 0x0600:
		bof.BIFF = 80
	case 0x0500:
		bof.BIFF = 50
	case 0x0400:
		bof.BIFF = 45
	}
	return bof, nil
}

func decodeBoundSheet(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	offset, err := c.u32()
	if err != nil {
		return nil, err
	}
	vis, err := c.u8()
	if err != nil {
		return nil, err
	}
	kind, err := c.u8()
	if err != nil {
		return nil, err
	}
	name, err := c.text(ctx, 1)
	if err != nil {
		return nil, err
	}
	return BoundSheet{Offset: int64(offset), Visibility: int(vis), Kind: int(kind), Name: name}, nil
}

func decodeDateMode(ctx Context, rec Record) (Decoded, error) {
	mode, err := newCursor(rec).u16()
	if err != nil {
		return nil, err
	}
	if mode > 1 {
		return DateMode{}, NewXLRDError(ErrFormat, "datemode %d", mode)
	}
	return DateMode{Mode: int(mode)}, nil
}

func decodeCodepage(ctx Context, rec Record) (Decoded, error) {
	cp, err := newCursor(rec).u16()
	if err != nil {
		return nil, err
	}
	return Codepage{Codepage: int(cp)}, nil
}

func decodeFormat(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	key, err := c.u16()
	if err != nil {
		return nil, err
	}
	lenBytes := 2
	if ctx.BIFF < 80 {
		lenBytes = 1
	}
	s, err := c.text(ctx, lenBytes)
	if err != nil {
		return nil, err
	}
	return *newFormat(int(key), s), nil
}

func decodeXF(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	font, err := c.u16()
	if err != nil {
		return nil, err
	}
	format, err := c.u16()
	if err != nil {
		return nil, err
	}
	flags, err := c.u16()
	if err != nil {
		return nil, err
	}
	return XF{
		FontIndex:        int(font),
		FormatKey:        int(format),
		Locked:           flags&0x0001 != 0,
		Hidden:           flags&0x0002 != 0,
		IsStyle:          flags&0x0004 != 0,
		ParentStyleIndex: int(flags >> 4),
	}, nil
}

func decodeDimensions(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	var d Dimensions
	if ctx.BIFF >= 80 {
		r0, err := c.u32()
		if err != nil {
			return nil, err
		}
		r1, err := c.u32()
		if err != nil {
			return nil, err
		}
		d.FirstRow, d.LastRow = int(r0), int(r1)
	} else {
		r0, err := c.u16()
		if err != nil {
			return nil, err
		}
		r1, err := c.u16()
		if err != nil {
			return nil, err
		}
		d.FirstRow, d.LastRow = int(r0), int(r1)
	}
	c0, err := c.u16()
	if err != nil {
		return nil, err
	}
	c1, err := c.u16()
	if err != nil {
		return nil, err
	}
	d.FirstCol, d.LastCol = int(c0), int(c1)
	return d, nil
}

func decodeMergedCells(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	n, err := c.u16()
	if err != nil {
		return nil, err
	}
	out := MergedCells{Ranges: make([][4]int, 0, n)}
	for i := 0; i < int(n); i++ {
		var r [4]uint16
		for j := range r {
			if r[j], err = c.u16(); err != nil {
				return out, err
			}
		}
		out.Ranges = append(out.Ranges, [4]int{int(r[0]), int(r[1]) + 1, int(r[2]), int(r[3]) + 1})
	}
	return out, nil
}
