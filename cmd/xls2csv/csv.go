package main

import (
	"io"
	"strings"
	"unicode/utf8"
)

type quotingMode int

const (
	quotingNone quotingMode = iota
	quotingMinimal
	quotingNonNumeric
	quotingAll
)

var quotingModes = map[string]quotingMode{
	"none":       quotingNone,
	"minimal":    quotingMinimal,
	"nonnumeric": quotingNonNumeric,
	"all":        quotingAll,
}

type csvFormat struct {
	comma   rune
	eol     string
	quoting quotingMode
}

type field struct {
	text    string
	numeric bool
}

// needsQuotes reports whether f must be quoted under mode q.
func (q quotingMode) needsQuotes(f field, comma rune) bool {
	switch q {
	case quotingAll:
		return true
	case quotingNonNumeric:
		return !f.numeric
	case quotingMinimal:
		return strings.ContainsRune(f.text, comma) || strings.ContainsAny(f.text, "\"\r\n")
	}
	return false
}

// rowWriter writes CSV rows. encoding/csv has no per-field quoting policy.
type rowWriter struct {
	w      io.Writer
	format csvFormat
	buf    []byte
}

func (rw *rowWriter) write(row []field) error {
	rw.buf = rw.buf[:0]
	for i, f := range row {
		if i > 0 {
			rw.buf = utf8.AppendRune(rw.buf, rw.format.comma)
		}
		rw.buf = rw.appendField(rw.buf, f)
	}
	rw.buf = append(rw.buf, rw.format.eol...)
	_, err := rw.w.Write(rw.buf)
	return err
}

func (rw *rowWriter) appendField(dst []byte, f field) []byte {
	if !rw.format.quoting.needsQuotes(f, rw.format.comma) {
		return append(dst, f.text...)
	}
	dst = append(dst, '"')
	for _, part := range strings.SplitAfter(f.text, `"`) {
		dst = append(dst, part...)
		if strings.HasSuffix(part, `"`) {
			dst = append(dst, '"')
		}
	}
	return append(dst, '"')
}
