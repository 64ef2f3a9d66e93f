package xlrd

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/yamitzky/xlsreader/cfb"
)

func openWorkbookRecords(r io.ReaderAt, size int64) (*RecordReader, error) {
	cf, err := cfb.Open(r, size, nil)
	if err != nil {
		return nil, err
	}
	stream, err := workbookStream(cf)
	if err != nil {
		return nil, err
	}
	return NewRecordReader(stream, stream.Size()), nil
}

// Dump writes the BIFF records of the workbook in r in char and hex
// format for debugging. With unnumbered set, offsets are omitted so that
// dumps can be diffed.
func Dump(r io.ReaderAt, size int64, w io.Writer, unnumbered bool) error {
	rr, err := openWorkbookRecords(r, size)
	if err != nil {
		return err
	}
	for rec, err := range rr.All() {
		if err != nil {
			fmt.Fprintf(w, "*** %v\n", err)
			return nil
		}
		if unnumbered {
			fmt.Fprintf(w, "%04x %s len = %04x (%d)\n", rec.Code, RecordName(rec.Code), len(rec.Data), len(rec.Data))
		} else {
			fmt.Fprintf(w, "%5x: %04x %s len = %04x (%d)\n", rec.Offset, rec.Code, RecordName(rec.Code), len(rec.Data), len(rec.Data))
		}
		HexCharDump(rec.Data, 0, len(rec.Data), int(rec.Offset)+4, w, unnumbered)
	}
	return nil
}

// CountRecords summarises the workbook's BIFF records as one
// "count name" line per record name, most frequent first.
func CountRecords(r io.ReaderAt, size int64, w io.Writer) error {
	rr, err := openWorkbookRecords(r, size)
	if err != nil {
		return err
	}
	counts := make(map[string]int)
	for rec, err := range rr.All() {
		if err != nil {
			fmt.Fprintf(w, "*** %v\n", err)
			break
		}
		counts[RecordName(rec.Code)]++
	}
	names := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
	})
	for _, name := range names {
		fmt.Fprintf(w, "%8d %s\n", counts[name], name)
	}
	return nil
}
