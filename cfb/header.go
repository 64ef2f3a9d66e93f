package cfb

import (
	"bytes"
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

// Sector sentinels found in allocation tables.
const (
	MaxRegSect uint32 = 0xFFFFFFFA
	DIFSect    uint32 = 0xFFFFFFFC
	FATSect    uint32 = 0xFFFFFFFD
	EndOfChain uint32 = 0xFFFFFFFE
	FreeSect   uint32 = 0xFFFFFFFF

	// NoStream marks an absent sibling or child in a directory entry.
	NoStream uint32 = 0xFFFFFFFF
)

const (
	HeaderSize        = 512
	DirEntrySize      = 128
	NumHeaderDIFAT    = 109
	DefaultMiniCutoff = 4096

	byteOrderMark = 0xFFFE
)

// Signature is the magic cookie in the first 8 bytes of every compound file.
var Signature = [8]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Header is the 512-byte structure at the start of a compound file.
type Header struct {
	Signature          [8]byte
	CLSID              [16]byte
	MinorVersion       uint16
	MajorVersion       uint16
	ByteOrder          uint16
	SectorShift        uint16
	MiniSectorShift    uint16
	Reserved           [6]byte
	NumDirSectors      uint32
	NumFATSectors      uint32
	FirstDirSector     uint32
	TransactionSig     uint32
	MiniStreamCutoff   uint32
	FirstMiniFATSector uint32
	NumMiniFATSectors  uint32
	FirstDIFATSector   uint32
	NumDIFATSectors    uint32
	DIFAT              [NumHeaderDIFAT]uint32
}

// SectorSize returns the size of a regular sector in bytes.
func (h *Header) SectorSize() int64 {
	return 1 << h.SectorShift
}

// MiniSectorSize returns the size of a mini-stream sector in bytes.
func (h *Header) MiniSectorSize() int64 {
	return 1 << h.MiniSectorShift
}

func parseHeader(raw []byte) (*Header, error) {
	if len(raw) < HeaderSize {
		return nil, newCompDocError(ErrFormat, "file is %d bytes, shorter than a header", len(raw))
	}
	if !bytes.Equal(raw[:8], Signature[:]) {
		return nil, newCompDocError(ErrFormat, "bad signature % x", raw[:8])
	}
	h := new(Header)
	if err := restruct.Unpack(raw[:HeaderSize], binary.LittleEndian, h); err != nil {
		return nil, newCompDocError(ErrFormat, "unpack header: %v", err)
	}
	if h.ByteOrder != byteOrderMark {
		return nil, newCompDocError(ErrFormat, "bad byte order mark 0x%04x", h.ByteOrder)
	}
	if h.SectorShift != 9 && h.SectorShift != 12 {
		return nil, newCompDocError(ErrFormat, "sector size 2^%d not supported", h.SectorShift)
	}
	if h.MiniSectorShift == 0 || h.MiniSectorShift >= h.SectorShift {
		return nil, newCompDocError(ErrFormat, "mini sector size 2^%d not supported", h.MiniSectorShift)
	}
	return h, nil
}
