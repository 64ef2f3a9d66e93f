// Package cfb reads OLE2 compound files: the sector-based container that
// multiplexes named streams into one file.
package cfb

import (
	"bytes"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Options configures Open.
type Options struct {
	// Logger receives diagnostics. Nil discards them.
	Logger log.Logger
}

// File is an opened compound file. It is immutable after Open and safe
// for concurrent use.
type File struct {
	Header Header

	r          io.ReaderAt
	size       int64
	sectorSize int64
	numSectors uint32
	cutoff     uint32
	fat        Table
	miniFAT    Table
	entries    []Entry
	ministream *Stream
	logger     log.Logger
}

// OpenBytes opens a compound file held in memory.
func OpenBytes(data []byte, opts *Options) (*File, error) {
	return Open(bytes.NewReader(data), int64(len(data)), opts)
}

// Open reads the header, allocation tables and directory of the compound
// file in r, which is size bytes long.
func Open(r io.ReaderAt, size int64, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	raw := make([]byte, HeaderSize)
	if n, err := r.ReadAt(raw, 0); n < HeaderSize {
		return nil, newCompDocError(ErrFormat, "read header: got %d bytes: %v", n, err)
	}
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	f := &File{
		Header:     *h,
		r:          r,
		size:       size,
		sectorSize: h.SectorSize(),
		cutoff:     h.MiniStreamCutoff,
		logger:     logger,
	}
	if size > f.sectorSize {
		f.numSectors = uint32((size - f.sectorSize + f.sectorSize - 1) / f.sectorSize)
	}
	if (h.MajorVersion == 3 && h.SectorShift != 9) || (h.MajorVersion == 4 && h.SectorShift != 12) {
		level.Warn(logger).Log("msg", "sector size does not match major version", "major", h.MajorVersion, "sector_size", f.sectorSize)
	}
	if (size-f.sectorSize)%f.sectorSize != 0 {
		level.Debug(logger).Log("msg", "file ends inside a sector", "size", size)
	}

	if err := f.loadFAT(); err != nil {
		return nil, err
	}
	if err := f.loadMiniFAT(); err != nil {
		return nil, err
	}
	if err := f.loadDirectory(); err != nil {
		return nil, err
	}

	root := &f.entries[0]
	if root.Size > 0 {
		ms, err := f.openEntry(root)
		if err != nil {
			return nil, err
		}
		f.ministream = ms
	}

	level.Debug(logger).Log("msg", "opened compound file", "sectors", f.numSectors, "sector_size", f.sectorSize,
		"fat_slots", len(f.fat), "minifat_slots", len(f.miniFAT), "entries", len(f.entries))
	return f, nil
}

// SectorSize returns the size of a regular sector in bytes.
func (f *File) SectorSize() int64 {
	return f.sectorSize
}

// NumSectors returns the number of sectors after the header.
func (f *File) NumSectors() uint32 {
	return f.numSectors
}

// MiniStreamCutoff returns the size below which streams live in the mini stream.
func (f *File) MiniStreamCutoff() uint32 {
	return f.cutoff
}
