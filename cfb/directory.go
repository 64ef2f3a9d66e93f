package cfb

import (
	"cmp"
	"encoding/binary"
	"iter"
	"unicode"
	"unicode/utf16"

	"github.com/go-restruct/restruct"
)

// EntryKind is the object type of a directory entry.
type EntryKind uint8

const (
	KindEmpty   EntryKind = 0
	KindStorage EntryKind = 1
	KindStream  EntryKind = 2
	KindRoot    EntryKind = 5
)

func (k EntryKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindStorage:
		return "storage"
	case KindStream:
		return "stream"
	case KindRoot:
		return "root"
	}
	return "unknown"
}

// Entry is one directory entry. Entries live in an arena addressed by ID;
// Left, Right and Child are the raw sibling-tree links, Parent and
// Children are derived from them.
type Entry struct {
	ID          int
	Name        string
	Kind        EntryKind
	CLSID       [16]byte
	StartSector uint32
	Size        int64
	Left        uint32
	Right       uint32
	Child       uint32
	Parent      int

	children []int
}

// IsStorage reports whether the entry can have children.
func (e *Entry) IsStorage() bool {
	return e.Kind == KindStorage || e.Kind == KindRoot
}

type rawEntry struct {
	Name     [64]byte
	NameLen  uint16
	Kind     uint8
	Color    uint8
	Left     uint32
	Right    uint32
	Child    uint32
	CLSID    [16]byte
	State    uint32
	Created  uint64
	Modified uint64
	Start    uint32
	Size     uint64
}

func (f *File) loadDirectory() error {
	var raw []byte
	for sid, err := range f.Chain(f.Header.FirstDirSector, f.fat) {
		if err != nil {
			return err
		}
		buf, err := f.ReadSector(sid)
		if err != nil {
			return err
		}
		raw = append(raw, buf...)
	}
	if len(raw) < DirEntrySize {
		return newCompDocError(ErrCorrupt, "empty directory")
	}

	f.entries = make([]Entry, 0, len(raw)/DirEntrySize)
	for off := 0; off+DirEntrySize <= len(raw); off += DirEntrySize {
		var re rawEntry
		if err := restruct.Unpack(raw[off:off+DirEntrySize], binary.LittleEndian, &re); err != nil {
			return newCompDocError(ErrCorrupt, "unpack directory entry %d: %v", len(f.entries), err)
		}
		size := int64(re.Size)
		if f.Header.MajorVersion == 3 {
			size &= 0xFFFFFFFF
		}
		f.entries = append(f.entries, Entry{
			ID:          len(f.entries),
			Name:        decodeName(re.Name[:], re.NameLen),
			Kind:        EntryKind(re.Kind),
			CLSID:       re.CLSID,
			StartSector: re.Start,
			Size:        size,
			Left:        re.Left,
			Right:       re.Right,
			Child:       re.Child,
			Parent:      -1,
		})
	}
	if f.entries[0].Kind != KindRoot {
		return newCompDocError(ErrCorrupt, "first directory entry is a %s, not the root", f.entries[0].Kind)
	}
	return f.buildTree()
}

// decodeName decodes a UTF-16LE entry name; n counts bytes including the terminating NUL.
func decodeName(b []byte, n uint16) string {
	units := int(n)/2 - 1
	if units <= 0 {
		return ""
	}
	if units > 31 {
		units = 31
	}
	u := make([]uint16, units)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u))
}

func (f *File) buildTree() error {
	visited := newBitset(len(f.entries))
	visited.set(0)
	queue := []int{0}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := f.siblings(f.entries[id].Child, visited)
		if err != nil {
			return err
		}
		for _, c := range children {
			f.entries[c].Parent = id
			if f.entries[c].Kind == KindStorage {
				queue = append(queue, c)
			}
		}
		f.entries[id].children = children
	}
	return nil
}

// siblings returns the in-order traversal of the sibling tree rooted at id.
func (f *File) siblings(id uint32, visited bitset) ([]int, error) {
	var out []int
	var stack []uint32
	for id != NoStream || len(stack) > 0 {
		for id != NoStream {
			if id >= uint32(len(f.entries)) {
				return nil, newCompDocError(ErrCorrupt, "directory link to entry %d out of range", id)
			}
			if visited.has(id) {
				return nil, newCompDocError(ErrCorrupt, "directory entry %d linked twice", id)
			}
			visited.set(id)
			stack = append(stack, id)
			id = f.entries[id].Left
		}
		id = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := &f.entries[id]
		if e.Kind != KindStorage && e.Kind != KindStream {
			return nil, newCompDocError(ErrCorrupt, "directory entry %d of kind %s linked into the tree", id, e.Kind)
		}
		out = append(out, int(id))
		id = e.Right
	}
	return out, nil
}

// Root returns the root storage entry.
func (f *File) Root() *Entry {
	e := f.entries[0]
	return &e
}

// Children returns the entries directly below the storage with the given ID.
func (f *File) Children(id int) []*Entry {
	if id < 0 || id >= len(f.entries) {
		return nil
	}
	out := make([]*Entry, 0, len(f.entries[id].children))
	for _, c := range f.entries[id].children {
		e := f.entries[c]
		out = append(out, &e)
	}
	return out
}

// Resolve walks path from the root and returns the named entry.
func (f *File) Resolve(path ...string) (*Entry, error) {
	cur := 0
	for i, name := range path {
		if !f.entries[cur].IsStorage() {
			return nil, newCompDocError(ErrNotAStorage, "%q is a stream", f.entries[cur].Name)
		}
		next := -1
		for _, c := range f.entries[cur].children {
			if compareNames(f.entries[c].Name, name) == 0 {
				next = c
				break
			}
		}
		if next < 0 {
			return nil, newCompDocError(ErrNotFound, "no entry %q in %v", name, path[:i])
		}
		cur = next
	}
	e := f.entries[cur]
	return &e, nil
}

// Walk yields every entry reachable from the root with its slash-separated path,
// parents before children.
func (f *File) Walk() iter.Seq2[string, *Entry] {
	return func(yield func(string, *Entry) bool) {
		var walk func(id int, prefix string) bool
		walk = func(id int, prefix string) bool {
			for _, c := range f.entries[id].children {
				e := f.entries[c]
				path := prefix + e.Name
				if !yield(path, &e) {
					return false
				}
				if e.IsStorage() && !walk(c, path+"/") {
					return false
				}
			}
			return true
		}
		walk(0, "")
	}
}

// compareNames orders names the way the directory does: shorter names
// first, then by upper-cased UTF-16 code units.
func compareNames(a, b string) int {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	if len(ua) != len(ub) {
		return cmp.Compare(len(ua), len(ub))
	}
	for i := range ua {
		if c := cmp.Compare(upperUnit(ua[i]), upperUnit(ub[i])); c != 0 {
			return c
		}
	}
	return 0
}

func upperUnit(u uint16) uint16 {
	if utf16.IsSurrogate(rune(u)) {
		return u
	}
	r := unicode.ToUpper(rune(u))
	if r > 0xFFFF {
		return u
	}
	return uint16(r)
}
