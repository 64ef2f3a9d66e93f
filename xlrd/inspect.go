package xlrd

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yamitzky/xlsreader/cfb"
)

// FileFormatDescriptions maps every InspectFormat result to a readable name.
var FileFormatDescriptions = map[string]string{
	"xls":  "Excel 97-2003 workbook (BIFF in a compound file)",
	"xlsb": "Excel binary workbook",
	"xlsx": "Excel Open XML workbook",
	"ods":  "OpenDocument spreadsheet",
	"zip":  "ZIP archive of unknown content",
	"":     "unrecognised file",
}

var zipMagic = []byte("PK\x03\x04")

// InspectFormat sniffs content, or the file at path when content is nil, and
// returns a key of FileFormatDescriptions. Only "xls" can be opened by this
// package; the others are named so callers can report them. A leading ~ in
// path stands for the home directory.
func InspectFormat(path string, content []byte) (string, error) {
	if content != nil {
		return sniff(bytes.NewReader(content), int64(len(content)))
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, rest)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	return sniff(f, fi.Size())
}

func sniff(r io.ReaderAt, size int64) (string, error) {
	var magic [len(cfb.Signature)]byte
	if n, _ := r.ReadAt(magic[:], 0); n < len(magic) {
		return "", nil
	}
	switch {
	case magic == cfb.Signature:
		return "xls", nil
	case !bytes.HasPrefix(magic[:], zipMagic):
		return "", nil
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", err
	}
	// Member names are matched case-insensitively with either separator.
	members := make(map[string]struct{}, len(zr.File))
	for _, f := range zr.File {
		members[strings.ToLower(strings.ReplaceAll(f.Name, "\\", "/"))] = struct{}{}
	}
	for _, candidate := range []struct{ member, format string }{
		{"xl/workbook.xml", "xlsx"},
		{"xl/workbook.bin", "xlsb"},
		{"content.xml", "ods"},
	} {
		if _, ok := members[candidate.member]; ok {
			return candidate.format, nil
		}
	}
	return "zip", nil
}
