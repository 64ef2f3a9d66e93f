// Package xlstest builds compound files and BIFF record streams in memory
// for tests.
package xlstest

import (
	"encoding/binary"
	"sort"
	"strings"
	"unicode/utf16"
)

const (
	freeSect   uint32 = 0xFFFFFFFF
	endOfChain uint32 = 0xFFFFFFFE
	fatSect    uint32 = 0xFFFFFFFD
	difSect    uint32 = 0xFFFFFFFC
	noStream   uint32 = 0xFFFFFFFF
)

// Node is a stream, or a storage when Storage is set, placed in a compound file.
type Node struct {
	Name     string
	Data     []byte
	Storage  bool
	Children []Node
}

// CFB describes a compound file to build.
type CFB struct {
	// SectorShift is 9 (512-byte sectors) or 12 (4096). Zero means 9.
	SectorShift uint16
	// MiniCutoff is the mini stream cutoff. Zero means 4096.
	MiniCutoff uint32
	// HeaderDIFAT limits the FAT sector locations kept in the header;
	// the rest go to DIFAT sectors. Zero means 109.
	HeaderDIFAT int
	Nodes       []Node
}

// Layout is a built compound file plus where things ended up.
type Layout struct {
	Data       []byte
	SectorSize int
	FATSectors []uint32
	DirStart   uint32
	// Starts maps slash-separated paths to start sectors; Mini marks paths
	// stored in the mini stream.
	Starts map[string]uint32
	Mini   map[string]bool
}

type dirent struct {
	name               string
	kind               byte
	child, left, right uint32
	start              uint32
	size               uint64
}

// Build lays out the compound file.
func (c CFB) Build() *Layout {
	shift := c.SectorShift
	if shift == 0 {
		shift = 9
	}
	cutoff := c.MiniCutoff
	if cutoff == 0 {
		cutoff = 4096
	}
	headerDIFAT := c.HeaderDIFAT
	if headerDIFAT <= 0 || headerDIFAT > 109 {
		headerDIFAT = 109
	}
	ss := 1 << shift
	l := &Layout{SectorSize: ss, Starts: map[string]uint32{}, Mini: map[string]bool{}}

	var sectors [][]byte
	var fat []uint32
	allocChain := func(data []byte) uint32 {
		if len(data) == 0 {
			return endOfChain
		}
		n := (len(data) + ss - 1) / ss
		start := len(sectors)
		for i := 0; i < n; i++ {
			sec := make([]byte, ss)
			copy(sec, data[i*ss:])
			sectors = append(sectors, sec)
			if i < n-1 {
				fat = append(fat, uint32(start+i+1))
			} else {
				fat = append(fat, endOfChain)
			}
		}
		return uint32(start)
	}

	var ministream []byte
	var minifat []uint32
	allocMini := func(data []byte) uint32 {
		n := (len(data) + 63) / 64
		start := len(minifat)
		for i := 0; i < n; i++ {
			if i < n-1 {
				minifat = append(minifat, uint32(start+i+1))
			} else {
				minifat = append(minifat, endOfChain)
			}
		}
		padded := make([]byte, n*64)
		copy(padded, data)
		ministream = append(ministream, padded...)
		return uint32(start)
	}

	entries := []dirent{{name: "Root Entry", kind: 5, child: noStream, left: noStream, right: noStream}}
	var add func(parent int, nodes []Node, prefix string)
	add = func(parent int, nodes []Node, prefix string) {
		sorted := append([]Node(nil), nodes...)
		sort.SliceStable(sorted, func(i, j int) bool { return lessName(sorted[i].Name, sorted[j].Name) })
		ids := make([]int, len(sorted))
		for i, n := range sorted {
			ids[i] = len(entries)
			e := dirent{name: n.Name, kind: 2, child: noStream, left: noStream, right: noStream, start: endOfChain}
			path := prefix + n.Name
			if n.Storage {
				e.kind = 1
				e.start = 0
			} else if len(n.Data) > 0 {
				e.size = uint64(len(n.Data))
				if uint32(len(n.Data)) < cutoff {
					e.start = allocMini(n.Data)
					l.Mini[path] = true
				} else {
					e.start = allocChain(n.Data)
				}
				l.Starts[path] = e.start
			}
			entries = append(entries, e)
		}
		if len(ids) > 0 {
			entries[parent].child = uint32(ids[0])
		}
		for i := 0; i+1 < len(ids); i++ {
			entries[ids[i]].right = uint32(ids[i+1])
		}
		for i, n := range sorted {
			if n.Storage {
				add(ids[i], n.Children, prefix+n.Name+"/")
			}
		}
	}
	add(0, c.Nodes, "")

	entries[0].start = allocChain(ministream)
	entries[0].size = uint64(len(ministream))

	miniFATStart, miniFATCount := endOfChain, 0
	if len(minifat) > 0 {
		buf := make([]byte, 4*len(minifat))
		for i, v := range minifat {
			binary.LittleEndian.PutUint32(buf[i*4:], v)
		}
		miniFATStart = allocChain(buf)
		miniFATCount = (len(buf) + ss - 1) / ss
	}

	perSector := ss / DirEntrySize
	nDir := (len(entries) + perSector - 1) / perSector
	dir := make([]byte, nDir*ss)
	for i := 0; i < nDir*perSector; i++ {
		off := i * DirEntrySize
		if i >= len(entries) {
			binary.LittleEndian.PutUint32(dir[off+68:], noStream)
			binary.LittleEndian.PutUint32(dir[off+72:], noStream)
			binary.LittleEndian.PutUint32(dir[off+76:], noStream)
			continue
		}
		putEntry(dir[off:off+DirEntrySize], entries[i])
	}
	l.DirStart = allocChain(dir)

	slots := ss / 4
	nFAT, nDIF := 0, 0
	for {
		nFAT++
		if nFAT > headerDIFAT {
			nDIF = (nFAT - headerDIFAT + slots - 2) / (slots - 1)
		}
		if nFAT*slots >= len(sectors)+nFAT+nDIF {
			break
		}
	}
	difStart := len(sectors)
	fatStart := difStart + nDIF
	for i := 0; i < nDIF; i++ {
		fat = append(fat, difSect)
	}
	for i := 0; i < nFAT; i++ {
		fat = append(fat, fatSect)
		l.FATSectors = append(l.FATSectors, uint32(fatStart+i))
	}
	for len(fat) < nFAT*slots {
		fat = append(fat, freeSect)
	}

	difat := make([]uint32, 109)
	for i := range difat {
		difat[i] = freeSect
	}
	for i := 0; i < nFAT && i < headerDIFAT; i++ {
		difat[i] = l.FATSectors[i]
	}
	rest := []uint32{}
	if nFAT > headerDIFAT {
		rest = l.FATSectors[headerDIFAT:]
	}
	for i := 0; i < nDIF; i++ {
		sec := make([]byte, ss)
		for j := 0; j < slots-1; j++ {
			v := freeSect
			if k := i*(slots-1) + j; k < len(rest) {
				v = rest[k]
			}
			binary.LittleEndian.PutUint32(sec[j*4:], v)
		}
		next := endOfChain
		if i+1 < nDIF {
			next = uint32(difStart + i + 1)
		}
		binary.LittleEndian.PutUint32(sec[(slots-1)*4:], next)
		sectors = append(sectors, sec)
	}
	for i := 0; i < nFAT; i++ {
		sec := make([]byte, ss)
		for j := 0; j < slots; j++ {
			binary.LittleEndian.PutUint32(sec[j*4:], fat[i*slots+j])
		}
		sectors = append(sectors, sec)
	}

	header := make([]byte, ss)
	copy(header, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le := binary.LittleEndian
	le.PutUint16(header[24:], 0x3E)
	if shift == 12 {
		le.PutUint16(header[26:], 4)
		le.PutUint32(header[40:], uint32(nDir))
	} else {
		le.PutUint16(header[26:], 3)
	}
	le.PutUint16(header[28:], 0xFFFE)
	le.PutUint16(header[30:], shift)
	le.PutUint16(header[32:], 6)
	le.PutUint32(header[44:], uint32(nFAT))
	le.PutUint32(header[48:], l.DirStart)
	le.PutUint32(header[56:], cutoff)
	le.PutUint32(header[60:], miniFATStart)
	le.PutUint32(header[64:], uint32(miniFATCount))
	if nDIF > 0 {
		le.PutUint32(header[68:], uint32(difStart))
	} else {
		le.PutUint32(header[68:], endOfChain)
	}
	le.PutUint32(header[72:], uint32(nDIF))
	for i, v := range difat {
		le.PutUint32(header[76+i*4:], v)
	}

	l.Data = header
	for _, sec := range sectors {
		l.Data = append(l.Data, sec...)
	}
	return l
}

// DirEntrySize is the size of one directory entry.
const DirEntrySize = 128

func putEntry(b []byte, e dirent) {
	units := utf16.Encode([]rune(e.name))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[i*2:], u)
	}
	binary.LittleEndian.PutUint16(b[64:], uint16((len(units)+1)*2))
	b[66] = e.kind
	b[67] = 1
	binary.LittleEndian.PutUint32(b[68:], e.left)
	binary.LittleEndian.PutUint32(b[72:], e.right)
	binary.LittleEndian.PutUint32(b[76:], e.child)
	binary.LittleEndian.PutUint32(b[116:], e.start)
	binary.LittleEndian.PutUint64(b[120:], e.size)
}

func lessName(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	if len(ua) != len(ub) {
		return len(ua) < len(ub)
	}
	return strings.ToUpper(a) < strings.ToUpper(b)
}

// SetFAT overwrites the FAT slot of sector sid.
func (l *Layout) SetFAT(sid, value uint32) {
	slots := uint32(l.SectorSize / 4)
	sec := l.FATSectors[sid/slots]
	off := (int(sec)+1)*l.SectorSize + int(sid%slots)*4
	binary.LittleEndian.PutUint32(l.Data[off:], value)
}

// DirEntryOffset returns the file offset of directory entry id.
func (l *Layout) DirEntryOffset(id int) int {
	return (int(l.DirStart)+1)*l.SectorSize + id*DirEntrySize
}

// SetDirLink overwrites the left (0), right (1) or child (2) link of directory entry id.
func (l *Layout) SetDirLink(id, which int, value uint32) {
	binary.LittleEndian.PutUint32(l.Data[l.DirEntryOffset(id)+68+which*4:], value)
}
