package cfb

import (
	"encoding/binary"
	"io"
	"iter"
)

// Table is an allocation table: one slot per sector holding the next
// sector index of the chain or a sentinel.
type Table []uint32

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) has(i uint32) bool {
	return b[i/64]&(1<<(i%64)) != 0
}

func (b bitset) set(i uint32) {
	b[i/64] |= 1 << (i % 64)
}

// ReadSector returns the bytes of regular sector sid. A final sector cut
// short by the end of the file is zero padded.
func (f *File) ReadSector(sid uint32) ([]byte, error) {
	if sid >= f.numSectors {
		return nil, newCompDocError(ErrCorrupt, "sector %d out of range [0, %d)", sid, f.numSectors)
	}
	buf := make([]byte, f.sectorSize)
	n, err := f.r.ReadAt(buf, f.sectorOffset(sid))
	if err != nil && !(err == io.EOF && n > 0) {
		return nil, newCompDocError(ErrCorrupt, "read sector %d: %v", sid, err)
	}
	return buf, nil
}

func (f *File) sectorOffset(sid uint32) int64 {
	return (int64(sid) + 1) * f.sectorSize
}

// Chain yields the sector indices of the chain starting at start, in
// order, until EndOfChain. A cycle or an index outside the table yields
// an ErrCorrupt error and ends the sequence. Each range restarts from start.
func (f *File) Chain(start uint32, table Table) iter.Seq2[uint32, error] {
	return func(yield func(uint32, error) bool) {
		visited := newBitset(len(table))
		for sid := start; sid != EndOfChain; sid = table[sid] {
			if sid >= uint32(len(table)) {
				yield(0, newCompDocError(ErrCorrupt, "chain from %d reaches invalid sector 0x%x", start, sid))
				return
			}
			if visited.has(sid) {
				yield(0, newCompDocError(ErrCorrupt, "chain from %d revisits sector %d", start, sid))
				return
			}
			visited.set(sid)
			if !yield(sid, nil) {
				return
			}
		}
	}
}

// FAT returns a copy of the main allocation table.
func (f *File) FAT() Table {
	return append(Table(nil), f.fat...)
}

// MiniFAT returns a copy of the mini-stream allocation table.
func (f *File) MiniFAT() Table {
	return append(Table(nil), f.miniFAT...)
}

func (f *File) loadFAT() error {
	h := f.Header
	if h.NumFATSectors > f.numSectors {
		return newCompDocError(ErrCorrupt, "%d FAT sectors declared in a file of %d sectors", h.NumFATSectors, f.numSectors)
	}
	sids := make([]uint32, 0, h.NumFATSectors)
	for _, sid := range h.DIFAT {
		if sid == FreeSect || sid == EndOfChain {
			continue
		}
		sids = append(sids, sid)
	}

	perSector := int(f.sectorSize/4) - 1
	seen := newBitset(int(f.numSectors))
	sid := h.FirstDIFATSector
	for i := uint32(0); i < h.NumDIFATSectors; i++ {
		if sid >= f.numSectors {
			return newCompDocError(ErrCorrupt, "DIFAT sector %d out of range", sid)
		}
		if seen.has(sid) {
			return newCompDocError(ErrCorrupt, "DIFAT chain revisits sector %d", sid)
		}
		seen.set(sid)
		buf, err := f.ReadSector(sid)
		if err != nil {
			return err
		}
		for j := 0; j < perSector; j++ {
			if v := binary.LittleEndian.Uint32(buf[j*4:]); v != FreeSect {
				sids = append(sids, v)
			}
		}
		sid = binary.LittleEndian.Uint32(buf[perSector*4:])
	}

	if uint32(len(sids)) < h.NumFATSectors {
		return newCompDocError(ErrCorrupt, "found %d FAT sectors, header declares %d", len(sids), h.NumFATSectors)
	}
	sids = sids[:h.NumFATSectors]

	f.fat = make(Table, 0, len(sids)*int(f.sectorSize/4))
	for _, sid := range sids {
		buf, err := f.ReadSector(sid)
		if err != nil {
			return err
		}
		f.fat = appendSlots(f.fat, buf)
	}
	return nil
}

func (f *File) loadMiniFAT() error {
	h := f.Header
	if h.NumMiniFATSectors == 0 || h.FirstMiniFATSector == EndOfChain {
		return nil
	}
	for sid, err := range f.Chain(h.FirstMiniFATSector, f.fat) {
		if err != nil {
			return err
		}
		buf, err := f.ReadSector(sid)
		if err != nil {
			return err
		}
		f.miniFAT = appendSlots(f.miniFAT, buf)
	}
	return nil
}

func appendSlots(t Table, buf []byte) Table {
	for i := 0; i+4 <= len(buf); i += 4 {
		t = append(t, binary.LittleEndian.Uint32(buf[i:]))
	}
	return t
}
