package xlrd

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Error kinds. Recoverable kinds are collected on the Book and Sheet; the
// others abort Open.
var (
	// ErrFormat means the workbook stream is not BIFF5/BIFF8 or lacks its globals BOF.
	ErrFormat = errors.New("unsupported workbook format")
	// ErrTruncatedRecord means a record runs past the end of the stream or its fields.
	ErrTruncatedRecord = errors.New("truncated record")
	// ErrDanglingStringRef means a cell refers past the end of the shared string table.
	ErrDanglingStringRef = errors.New("dangling shared string reference")
	// ErrSheetTableInconsistent means a BOUNDSHEET entry does not lead to a sheet substream.
	ErrSheetTableInconsistent = errors.New("sheet table inconsistent")
	// ErrWorkbookStreamMissing means the container has neither a Workbook nor a Book stream.
	ErrWorkbookStreamMissing = errors.New("workbook stream missing")
	// ErrEncrypted means the workbook carries a FILEPASS record.
	ErrEncrypted = errors.New("workbook is encrypted")
	// ErrSheetNotFound means no worksheet has the requested name or index.
	ErrSheetNotFound = errors.New("sheet not found")
)

// XLRDError represents an error that occurred while reading an Excel file.
type XLRDError struct {
	Kind    error
	Message string
}

func (e *XLRDError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *XLRDError) Unwrap() error {
	return e.Kind
}

// NewXLRDError creates a new XLRDError of the given kind.
func NewXLRDError(kind error, format string, args ...interface{}) *XLRDError {
	return &XLRDError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Cell types
const (
	XL_CELL_EMPTY   = 0
	XL_CELL_TEXT    = 1
	XL_CELL_NUMBER  = 2
	XL_CELL_DATE    = 3
	XL_CELL_BOOLEAN = 4
	XL_CELL_ERROR   = 5
	XL_CELL_BLANK   = 6 // for use in debugging, gathering stats, etc
)

var biffTextFromNum = map[int]string{
	0:  "(not BIFF)",
	20: "2.0",
	21: "2.1",
	30: "3",
	40: "4S",
	45: "4W",
	50: "5",
	70: "7",
	80: "8",
	85: "8X",
}

// BiffTextFromNum returns a text representation of a BIFF version number.
func BiffTextFromNum(num int) string {
	if text, ok := biffTextFromNum[num]; ok {
		return text
	}
	return fmt.Sprintf("Unknown(%d)", num)
}

// ErrorTextFromCode maps an Excel error code to its display text.
var ErrorTextFromCode = map[byte]string{
	0x00: "#NULL!",  // Intersection of two cell ranges is empty
	0x07: "#DIV/0!", // Division by zero
	0x0F: "#VALUE!", // Wrong type of operand
	0x17: "#REF!",   // Illegal or deleted cell reference
	0x1D: "#NAME?",  // Wrong function or range name
	0x24: "#NUM!",   // Value range overflow
	0x2A: "#N/A",    // Argument or function not available
}

// Substream types found in BOF records.
const (
	XL_WORKBOOK_GLOBALS    = 0x5
	XL_WORKBOOK_GLOBALS_4W = 0x100
	XL_VB_MODULE           = 0x6
	XL_WORKSHEET           = 0x10
	XL_CHART               = 0x20
	XL_MACROSHEET          = 0x40
)

// BOUNDSHEET sheet types.
const (
	XL_BOUNDSHEET_WORKSHEET = 0x00
	XL_BOUNDSHEET_MACRO     = 0x01
	XL_BOUNDSHEET_CHART     = 0x02
	XL_BOUNDSHEET_VB_MODULE = 0x06
)

// BIFF record codes.
const (
	XL_ARRAY       = 0x0221
	XL_BLANK       = 0x0201
	XL_BOF         = 0x0809
	XL_BOOLERR     = 0x0205
	XL_BOUNDSHEET  = 0x0085
	XL_CODEPAGE    = 0x0042
	XL_COLINFO     = 0x007D
	XL_CONTINUE    = 0x003C
	XL_COUNTRY     = 0x008C
	XL_DATEMODE    = 0x0022
	XL_DEFCOLWIDTH = 0x0055
	XL_DIMENSION   = 0x0200
	XL_EOF         = 0x000A
	XL_EXTSST      = 0x00FF
	XL_FILEPASS    = 0x002F
	XL_FONT        = 0x0031
	XL_FORMAT      = 0x041E
	XL_FORMULA     = 0x0006
	XL_HLINK       = 0x01B8
	XL_INDEX       = 0x020B
	XL_LABEL       = 0x0204
	XL_LABELSST    = 0x00FD
	XL_MERGEDCELLS = 0x00E5
	XL_MSO_DRAWING = 0x00EC
	XL_MULBLANK    = 0x00BE
	XL_MULRK       = 0x00BD
	XL_NAME        = 0x0018
	XL_NOTE        = 0x001C
	XL_NUMBER      = 0x0203
	XL_OBJ         = 0x005D
	XL_PALETTE     = 0x0092
	XL_RK          = 0x027E
	XL_RK2         = 0x007E
	XL_ROW         = 0x0208
	XL_RSTRING     = 0x00D6
	XL_SHRFMLA     = 0x04BC
	XL_SST         = 0x00FC
	XL_STRING      = 0x0207
	XL_STYLE       = 0x0293
	XL_SUPBOOK     = 0x01AE
	XL_TABLEOP     = 0x0236
	XL_TXO         = 0x01B6
	XL_WINDOW2     = 0x023E
	XL_WRITEACCESS = 0x005C
	XL_XF          = 0x00E0
)

var recordNames = map[uint16]string{
	XL_ARRAY:       "ARRAY",
	XL_BLANK:       "BLANK",
	XL_BOF:         "BOF",
	XL_BOOLERR:     "BOOLERR",
	XL_BOUNDSHEET:  "BOUNDSHEET",
	XL_CODEPAGE:    "CODEPAGE",
	XL_COLINFO:     "COLINFO",
	XL_CONTINUE:    "CONTINUE",
	XL_COUNTRY:     "COUNTRY",
	XL_DATEMODE:    "DATEMODE",
	XL_DEFCOLWIDTH: "DEFCOLWIDTH",
	XL_DIMENSION:   "DIMENSION",
	XL_EOF:         "EOF",
	XL_EXTSST:      "EXTSST",
	XL_FILEPASS:    "FILEPASS",
	XL_FONT:        "FONT",
	XL_FORMAT:      "FORMAT",
	XL_FORMULA:     "FORMULA",
	XL_HLINK:       "HLINK",
	XL_INDEX:       "INDEX",
	XL_LABEL:       "LABEL",
	XL_LABELSST:    "LABELSST",
	XL_MERGEDCELLS: "MERGEDCELLS",
	XL_MSO_DRAWING: "MSODRAWING",
	XL_MULBLANK:    "MULBLANK",
	XL_MULRK:       "MULRK",
	XL_NAME:        "NAME",
	XL_NOTE:        "NOTE",
	XL_NUMBER:      "NUMBER",
	XL_OBJ:         "OBJ",
	XL_PALETTE:     "PALETTE",
	XL_RK:          "RK",
	XL_RK2:         "RK",
	XL_ROW:         "ROW",
	XL_RSTRING:     "RSTRING",
	XL_SHRFMLA:     "SHRFMLA",
	XL_SST:         "SST",
	XL_STRING:      "STRING",
	XL_STYLE:       "STYLE",
	XL_SUPBOOK:     "SUPBOOK",
	XL_TABLEOP:     "TABLEOP",
	XL_TXO:         "TXO",
	XL_WINDOW2:     "WINDOW2",
	XL_WRITEACCESS: "WRITEACCESS",
	XL_XF:          "XF",
}

// RecordName returns the conventional name of a record code, or UNKNOWN.
func RecordName(code uint16) string {
	if name, ok := recordNames[code]; ok {
		return name
	}
	return "UNKNOWN"
}

var cellOpcodeSet = map[int]bool{
	XL_BLANK:    true,
	XL_BOOLERR:  true,
	XL_FORMULA:  true,
	XL_LABEL:    true,
	XL_LABELSST: true,
	XL_MULBLANK: true,
	XL_MULRK:    true,
	XL_NUMBER:   true,
	XL_RK:       true,
	XL_RK2:      true,
	XL_RSTRING:  true,
}

// IsCellOpcode checks if the given code is a cell opcode.
func IsCellOpcode(c int) bool {
	return cellOpcodeSet[c]
}

// Colname returns the spreadsheet column name for a 0-based column index: A, B, ..., Z, AA, ...
func Colname(colx int) string {
	name := ""
	for colx >= 0 {
		name = string(rune('A'+colx%26)) + name
		colx = colx/26 - 1
	}
	return name
}

// HexCharDump writes dlen bytes of data from ofs as hex and characters,
// 16 bytes per line. Offsets are shown relative to base unless unnumbered.
func HexCharDump(data []byte, ofs, dlen, base int, w io.Writer, unnumbered bool) {
	end := min(ofs+dlen, len(data))
	for pos := ofs; pos < end; pos += 16 {
		line := data[pos:min(pos+16, end)]
		hex := make([]string, len(line))
		var chars strings.Builder
		for i, c := range line {
			hex[i] = fmt.Sprintf("%02x", c)
			switch {
			case c == 0:
				chars.WriteByte('~')
			case c < 32 || c > 126:
				chars.WriteByte('?')
			default:
				chars.WriteByte(c)
			}
		}
		if unnumbered {
			fmt.Fprintf(w, "     %-48s %s\n", strings.Join(hex, " "), chars.String())
		} else {
			fmt.Fprintf(w, "%5x: %-48s %s\n", base+pos-ofs, strings.Join(hex, " "), chars.String())
		}
	}
}
