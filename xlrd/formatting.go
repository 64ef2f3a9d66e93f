package xlrd

import "strings"

// Format classes.
const (
	FUN = iota // unknown
	FDT        // date
	FNU        // number
	FGE        // general
	FTX        // text
)

// Format represents number format information.
type Format struct {
	// FormatKey is the key that XF records use to refer to this format.
	FormatKey int

	// Type is the format class (FUN, FDT, FNU, FGE, FTX).
	Type int

	// FormatString is the format string.
	FormatString string
}

// XF represents the part of an extended format record needed to classify
// cell values.
type XF struct {
	// FontIndex is the index into the font list.
	FontIndex int

	// FormatKey is the format key.
	FormatKey int

	// Locked indicates if the cell is locked.
	Locked bool

	// Hidden indicates if the formula is hidden.
	Hidden bool

	// IsStyle is true for style XFs, false for cell XFs.
	IsStyle bool

	// ParentStyleIndex is the parent style XF index.
	ParentStyleIndex int
}

// builtinFormats lists the format strings Excel does not store in FORMAT records.
var builtinFormats = map[int]string{
	0x00: "General",
	0x01: "0",
	0x02: "0.00",
	0x03: "#,##0",
	0x04: "#,##0.00",
	0x05: "$#,##0_);($#,##0)",
	0x06: "$#,##0_);[Red]($#,##0)",
	0x07: "$#,##0.00_);($#,##0.00)",
	0x08: "$#,##0.00_);[Red]($#,##0.00)",
	0x09: "0%",
	0x0a: "0.00%",
	0x0b: "0.00E+00",
	0x0c: "# ?/?",
	0x0d: "# ??/??",
	0x0e: "m/d/yy",
	0x0f: "d-mmm-yy",
	0x10: "d-mmm",
	0x11: "mmm-yy",
	0x12: "h:mm AM/PM",
	0x13: "h:mm:ss AM/PM",
	0x14: "h:mm",
	0x15: "h:mm:ss",
	0x16: "m/d/yy h:mm",
	0x25: "#,##0_);(#,##0)",
	0x26: "#,##0_);[Red](#,##0)",
	0x27: "#,##0.00_);(#,##0.00)",
	0x28: "#,##0.00_);[Red](#,##0.00)",
	0x29: "_(* #,##0_);_(* (#,##0);_(* \"-\"_);_(@_)",
	0x2a: "_($* #,##0_);_($* (#,##0);_($* \"-\"_);_(@_)",
	0x2b: "_(* #,##0.00_);_(* (#,##0.00);_(* \"-\"??_);_(@_)",
	0x2c: "_($* #,##0.00_);_($* (#,##0.00);_($* \"-\"??_);_(@_)",
	0x2d: "mm:ss",
	0x2e: "[h]:mm:ss",
	0x2f: "mm:ss.0",
	0x30: "##0.0E+0",
	0x31: "@",
}

var nonDateFormats = map[string]bool{
	"0.00E+00": true,
	"##0.0E+0": true,
	"General":  true,
	"GENERAL":  true,
	"general":  true,
	"@":        true,
}

// IsDateFormatString reports whether a number format displays a date or a
// time: it uses one of the ymdhs placeholders and none of the digit
// placeholders 0 # ?. Quoted literals, [bracketed] sections and the
// character after \ _ or * are ignored.
func IsDateFormatString(formatStr string) bool {
	if nonDateFormats[formatStr] {
		return false
	}
	var date, digits, escaped bool
	var until rune
	for _, c := range formatStr {
		switch {
		case escaped:
			escaped = false
		case until != 0:
			if c == until {
				until = 0
			}
		case c == '"':
			until = '"'
		case c == '[':
			until = ']'
		case c == '\\' || c == '_' || c == '*':
			escaped = true
		case strings.ContainsRune("yYmMdDhHsS", c):
			date = true
		case strings.ContainsRune("0#?", c):
			digits = true
		}
	}
	return date && !digits
}

func classifyFormat(key int, formatStr string) int {
	switch {
	case key == 0 || nonDateFormats[formatStr]:
		if formatStr == "@" {
			return FTX
		}
		return FGE
	case IsDateFormatString(formatStr):
		return FDT
	default:
		return FNU
	}
}

func newFormat(key int, formatStr string) *Format {
	return &Format{FormatKey: key, Type: classifyFormat(key, formatStr), FormatString: formatStr}
}

// builtinFormatMap returns fresh Format entries for the builtin keys.
func builtinFormatMap() map[int]*Format {
	m := make(map[int]*Format, len(builtinFormats))
	for k, s := range builtinFormats {
		m[k] = newFormat(k, s)
	}
	return m
}
