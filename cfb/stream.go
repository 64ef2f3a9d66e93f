package cfb

import (
	"errors"
	"io"
)

// Stream is a bounded, random-access view of one stream in the container.
// ReadAt keeps no state between calls and may be used concurrently.
type Stream struct {
	name       string
	size       int64
	sectorSize int64
	chain      []uint32
	dev        io.ReaderAt
	base       int64
}

var _ io.ReaderAt = (*Stream)(nil)

// Name returns the directory name of the stream.
func (s *Stream) Name() string {
	return s.name
}

// Size returns the declared size of the stream in bytes.
func (s *Stream) Size() int64 {
	return s.size
}

// ReadAt reads len(p) bytes starting at off. Reads never go past Size;
// a short read returns io.EOF. A final sector cut short by the end of the
// file reads as zero padded, as in ReadSector.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("cfb: negative offset")
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := len(p)
	if avail := s.size - off; int64(want) > avail {
		p = p[:avail]
	}
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		within := pos % s.sectorSize
		chunk := min(int64(len(p)-n), s.sectorSize-within)
		sid := s.chain[pos/s.sectorSize]
		start := s.base + int64(sid)*s.sectorSize
		m, err := s.dev.ReadAt(p[n:n+int(chunk)], start+within)
		if m < int(chunk) && err == io.EOF && s.sectorStarted(start, m, within) {
			clear(p[n+m : n+int(chunk)])
			m, err = int(chunk), nil
		}
		n += m
		if m < int(chunk) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return n, newCompDocError(ErrCorrupt, "stream %q: sector %d: %v", s.name, sid, err)
		}
	}
	if n < want {
		return n, io.EOF
	}
	return n, nil
}

// sectorStarted reports whether the device holds any byte of the sector at
// start, given that m bytes were read at start+within.
func (s *Stream) sectorStarted(start int64, m int, within int64) bool {
	if m > 0 {
		return true
	}
	if within == 0 {
		return false
	}
	var b [1]byte
	n, _ := s.dev.ReadAt(b[:], start)
	return n == 1
}

// Bytes reads the whole stream into memory.
func (s *Stream) Bytes() ([]byte, error) {
	buf := make([]byte, s.size)
	if _, err := s.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// Open resolves path and returns a view of the stream it names.
func (f *File) Open(path ...string) (*Stream, error) {
	e, err := f.Resolve(path...)
	if err != nil {
		return nil, err
	}
	if e.Kind != KindStream {
		return nil, newCompDocError(ErrNotAStream, "%q is a %s", e.Name, e.Kind)
	}
	return f.openEntry(e)
}

func (f *File) openEntry(e *Entry) (*Stream, error) {
	if e.Kind == KindRoot || e.Size >= int64(f.cutoff) {
		return f.newStream(e, f.fat, f.sectorSize, f.r, f.sectorSize, f.numSectors)
	}
	mini := f.Header.MiniSectorSize()
	if e.Size == 0 {
		return &Stream{name: e.Name, sectorSize: mini}, nil
	}
	if f.ministream == nil {
		return nil, newCompDocError(ErrCorrupt, "stream %q needs the mini stream, which is empty", e.Name)
	}
	limit := uint32((f.ministream.Size() + mini - 1) / mini)
	return f.newStream(e, f.miniFAT, mini, f.ministream, 0, limit)
}

func (f *File) newStream(e *Entry, table Table, sectorSize int64, dev io.ReaderAt, base int64, limit uint32) (*Stream, error) {
	need := (e.Size + sectorSize - 1) / sectorSize
	if need > int64(limit) {
		return nil, newCompDocError(ErrCorrupt, "stream %q declares %d bytes, more than the %d sectors available", e.Name, e.Size, limit)
	}
	chain := make([]uint32, 0, need)
	if need > 0 {
		for sid, err := range f.Chain(e.StartSector, table) {
			if err != nil {
				return nil, err
			}
			if sid >= limit {
				return nil, newCompDocError(ErrCorrupt, "stream %q uses sector %d beyond %d", e.Name, sid, limit)
			}
			chain = append(chain, sid)
			if int64(len(chain)) == need {
				break
			}
		}
	}
	if int64(len(chain)) < need {
		return nil, newCompDocError(ErrCorrupt, "stream %q: chain of %d sectors is too short for %d bytes", e.Name, len(chain), e.Size)
	}
	return &Stream{
		name:       e.Name,
		size:       e.Size,
		sectorSize: sectorSize,
		chain:      chain,
		dev:        dev,
		base:       base,
	}, nil
}
