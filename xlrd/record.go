package xlrd

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
)

// Record is one logical BIFF record: a header and its payload with any
// CONTINUE records appended.
type Record struct {
	// Offset is the stream position of the record header.
	Offset int64

	// Code is the record type.
	Code uint16

	// Data is the merged payload.
	Data []byte

	// Borders lists the payload offsets at which each CONTINUE payload began.
	Borders []int
}

func (r Record) String() string {
	return fmt.Sprintf("%s (0x%04x) at %d, %d bytes", RecordName(r.Code), r.Code, r.Offset, len(r.Data))
}

// RecordReader reads logical records from a workbook stream.
type RecordReader struct {
	r    io.ReaderAt
	size int64
	pos  int64
	hdr  [4]byte
}

// NewRecordReader returns a reader over the first size bytes of r.
func NewRecordReader(r io.ReaderAt, size int64) *RecordReader {
	return &RecordReader{r: r, size: size}
}

// Pos returns the stream position of the next record header.
func (rr *RecordReader) Pos() int64 {
	return rr.pos
}

// SeekTo moves to an absolute stream offset.
func (rr *RecordReader) SeekTo(off int64) {
	rr.pos = off
}

// Reset moves back to the start of the stream.
func (rr *RecordReader) Reset() {
	rr.pos = 0
}

func (rr *RecordReader) header(off int64) (uint16, int, error) {
	if off+4 > rr.size {
		return 0, 0, NewXLRDError(ErrTruncatedRecord, "record header at %d runs past stream end %d", off, rr.size)
	}
	if _, err := rr.r.ReadAt(rr.hdr[:], off); err != nil {
		return 0, 0, NewXLRDError(ErrTruncatedRecord, "record header at %d: %v", off, err)
	}
	return binary.LittleEndian.Uint16(rr.hdr[:]), int(binary.LittleEndian.Uint16(rr.hdr[2:])), nil
}

func (rr *RecordReader) payload(dst []byte, off int64, n int) ([]byte, error) {
	if off+int64(n) > rr.size {
		return dst, NewXLRDError(ErrTruncatedRecord, "payload of %d bytes at %d runs past stream end %d", n, off, rr.size)
	}
	if n == 0 {
		return dst, nil
	}
	start := len(dst)
	dst = append(dst, make([]byte, n)...)
	if _, err := rr.r.ReadAt(dst[start:], off); err != nil {
		return dst, NewXLRDError(ErrTruncatedRecord, "payload at %d: %v", off, err)
	}
	return dst, nil
}

// Next returns the record at the current position and advances past it and
// any CONTINUE records that follow. It returns io.EOF at the end of the stream.
func (rr *RecordReader) Next() (Record, error) {
	if rr.pos >= rr.size {
		return Record{}, io.EOF
	}
	code, n, err := rr.header(rr.pos)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Offset: rr.pos, Code: code}
	if rec.Data, err = rr.payload(nil, rr.pos+4, n); err != nil {
		return Record{}, err
	}
	rr.pos += 4 + int64(n)

	for rr.pos+4 <= rr.size {
		code, n, err := rr.header(rr.pos)
		if err != nil {
			return Record{}, err
		}
		if code != XL_CONTINUE {
			break
		}
		rec.Borders = append(rec.Borders, len(rec.Data))
		if rec.Data, err = rr.payload(rec.Data, rr.pos+4, n); err != nil {
			return Record{}, err
		}
		rr.pos += 4 + int64(n)
	}
	return rec, nil
}

// From yields the records starting at off. Iteration stops after the first
// error. Each call starts a fresh pass.
func (rr *RecordReader) From(off int64) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		it := &RecordReader{r: rr.r, size: rr.size, pos: off}
		for {
			rec, err := it.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// All yields every record from the start of the stream.
func (rr *RecordReader) All() iter.Seq2[Record, error] {
	return rr.From(0)
}
