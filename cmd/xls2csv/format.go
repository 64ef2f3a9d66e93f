package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/yamitzky/xlsreader/xlrd"
)

type cellFormat struct {
	dateFormat  string
	floatFormat string
	escape      bool
}

var controlEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`)

// render formats c as a CSV field. Numbers with a date format become dates.
func (cf cellFormat) render(book *xlrd.Book, c xlrd.Cell) field {
	switch v := c.Value().(type) {
	case float64:
		if book.IsDateCell(c) {
			if s, ok := formatDate(v, book.Datemode, cf.dateFormat); ok {
				return field{text: cf.text(s)}
			}
		}
		if cf.floatFormat != "" {
			return field{text: cf.text(fmt.Sprintf(cf.floatFormat, v)), numeric: true}
		}
		return field{text: strconv.FormatFloat(v, 'g', -1, 64), numeric: true}
	case bool:
		return field{text: strings.ToUpper(strconv.FormatBool(v))}
	case byte:
		if s, ok := xlrd.ErrorTextFromCode[v]; ok {
			return field{text: s}
		}
		return field{text: "#ERROR"}
	case string:
		return field{text: cf.text(v)}
	}
	return field{}
}

func (cf cellFormat) text(s string) string {
	if cf.escape {
		return controlEscaper.Replace(s)
	}
	return s
}

// formatDate renders an Excel serial date, as a time of day when it has no
// date part and as a plain date when it has no time part.
func formatDate(v float64, datemode int, format string) (string, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	t, err := xlrd.XldateAsDatetime(v, datemode)
	if err != nil {
		return "", false
	}
	switch {
	case format != "":
		return strftime(t, format), true
	case v < 1:
		return t.Format(time.TimeOnly), true
	case v == math.Trunc(v):
		return t.Format(time.DateOnly), true
	}
	return t.Format(time.DateTime), true
}

var strftimeLayouts = map[byte]string{
	'Y': "2006", 'y': "06", 'm': "01", 'd': "02",
	'H': "15", 'I': "03", 'M': "04", 'S': "05", 'p': "PM",
	'b': "Jan", 'B': "January", 'a': "Mon", 'A': "Monday",
}

// strftime formats t with the C strftime directives in strftimeLayouts.
// Unknown directives are copied through.
func strftime(t time.Time, format string) string {
	var b strings.Builder
	for rest := format; rest != ""; {
		i := strings.IndexByte(rest, '%')
		if i < 0 || i == len(rest)-1 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		verb := rest[i+1]
		rest = rest[i+2:]
		if verb == '%' {
			b.WriteByte('%')
		} else if layout, ok := strftimeLayouts[verb]; ok {
			b.WriteString(t.Format(layout))
		} else {
			b.WriteByte('%')
			b.WriteByte(verb)
		}
	}
	return b.String()
}
