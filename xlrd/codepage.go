package xlrd

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

type codepageEncoding struct {
	name string
	enc  encoding.Encoding
}

// EncodingFromCodepage maps CODEPAGE record values to decoders.
var EncodingFromCodepage = map[int]codepageEncoding{
	367:   {"ascii", charmap.Windows1252},
	437:   {"cp437", charmap.CodePage437},
	850:   {"cp850", charmap.CodePage850},
	852:   {"cp852", charmap.CodePage852},
	855:   {"cp855", charmap.CodePage855},
	858:   {"cp858", charmap.CodePage858},
	860:   {"cp860", charmap.CodePage860},
	862:   {"cp862", charmap.CodePage862},
	863:   {"cp863", charmap.CodePage863},
	865:   {"cp865", charmap.CodePage865},
	866:   {"cp866", charmap.CodePage866},
	874:   {"cp874", charmap.Windows874},
	932:   {"cp932", japanese.ShiftJIS},
	936:   {"cp936", simplifiedchinese.GBK},
	949:   {"cp949", korean.EUCKR},
	950:   {"cp950", traditionalchinese.Big5},
	1200:  {"utf_16_le", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	1250:  {"cp1250", charmap.Windows1250},
	1251:  {"cp1251", charmap.Windows1251},
	1252:  {"cp1252", charmap.Windows1252},
	1253:  {"cp1253", charmap.Windows1253},
	1254:  {"cp1254", charmap.Windows1254},
	1255:  {"cp1255", charmap.Windows1255},
	1256:  {"cp1256", charmap.Windows1256},
	1257:  {"cp1257", charmap.Windows1257},
	1258:  {"cp1258", charmap.Windows1258},
	10000: {"mac_roman", charmap.Macintosh},
	10007: {"mac_cyrillic", charmap.MacintoshCyrillic},
	20866: {"koi8_r", charmap.KOI8R},
	21866: {"koi8_u", charmap.KOI8U},
	28591: {"latin_1", charmap.ISO8859_1},
	32768: {"mac_roman", charmap.Macintosh},
	32769: {"cp1252", charmap.Windows1252},
}

var encodingAliases = map[string]string{
	"utf_16_le": "utf-16le",
	"latin_1":   "iso-8859-1",
	"mac_roman": "macintosh",
}

// lookupEncoding resolves an encoding override such as "cp1251",
// "windows-1252" or "utf_16_le".
func lookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := encodingAliases[name]; ok {
		name = alias
	}
	enc, err := htmlindex.Get(name)
	if err == nil {
		return enc, nil
	}
	if enc, err2 := htmlindex.Get(strings.ReplaceAll(name, "_", "-")); err2 == nil {
		return enc, nil
	}
	return nil, err
}

// deriveEncoding picks the decoder for byte strings given a CODEPAGE value.
// Unknown codepages fall back to Latin-1.
func deriveEncoding(codepage int) (string, encoding.Encoding) {
	if ce, ok := EncodingFromCodepage[codepage]; ok {
		return ce.name, ce.enc
	}
	return "latin_1", charmap.ISO8859_1
}
