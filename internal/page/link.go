package page

// MaxNameLen is the fixed capacity of a link's name slot, NUL-padded.
const MaxNameLen = 128

// LinkSize is the on-disk size of one (name, inode offset) link record.
const LinkSize = MaxNameLen + 4

// Link is a decoded directory entry: a name and the inode it names.
type Link struct {
	Name        string
	InodeOffset Offset
}

// DecodeLink reads a link record from b[at:at+LinkSize].
func DecodeLink(b []byte, at int) Link {
	return Link{
		Name:        GetName(b[at : at+MaxNameLen]),
		InodeOffset: getOffset(b, at+MaxNameLen),
	}
}

// EncodeLink writes a link record into b[at:at+LinkSize]. It panics if name
// does not fit in MaxNameLen bytes; callers validate name length earlier so
// that the caller-visible failure is EINVAL, not a panic.
func EncodeLink(b []byte, at int, l Link) {
	if len(l.Name) > MaxNameLen {
		panic("page: link name too long")
	}
	PutName(b[at:at+MaxNameLen], l.Name)
	putOffset(b, at+MaxNameLen, l.InodeOffset)
}

// LinkEmpty reports whether the slot at b[at:] holds no link (zeroed name,
// sentinel inode offset).
func LinkEmpty(b []byte, at int) bool {
	return getOffset(b, at+MaxNameLen) == None
}

// ClearLink blanks a link slot.
func ClearLink(b []byte, at int) {
	EncodeLink(b, at, Link{InodeOffset: None})
}
