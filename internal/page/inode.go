package page

// InodeSize is the on-disk size of one inode ("entity") record.
const InodeSize = 32

const (
	inoRefCount = 0
	inoFlags    = 4
	inoHead     = 8
	inoTail     = 12
	inoHeadCur  = 16
	inoTailEnd  = 20
	inoOwnerUID = 24
	inoMode     = 28
)

// Inode flag bits.
const (
	InodeIsDir     uint32 = 1 << 0
	InodeIsRegular uint32 = 1 << 1
)

// Inode is a decoded view of an inode record. Callers obtain the backing
// bytes via a page borrow and decode/encode explicitly; there is no live
// aliasing beyond the current operation, since a transaction's patch table
// can relocate the underlying bytes between borrows.
type Inode struct {
	RefCount   uint32
	Flags      uint32
	Head       Offset
	Tail       Offset
	HeadCursor uint32
	TailEnd    uint32
	OwnerUID   int32
	Mode       uint32
}

// Free reports whether the slot holding this inode is unused.
func (in Inode) Free() bool { return in.RefCount == 0 }

// IsDir reports whether the inode describes a directory.
func (in Inode) IsDir() bool { return in.Flags&InodeIsDir != 0 }

// IsRegular reports whether the inode describes a regular file.
func (in Inode) IsRegular() bool { return in.Flags&InodeIsRegular != 0 }

// DecodeInode reads an inode record from b[at:at+InodeSize].
func DecodeInode(b []byte, at int) Inode {
	return Inode{
		RefCount:   getU32(b, at+inoRefCount),
		Flags:      getU32(b, at+inoFlags),
		Head:       getOffset(b, at+inoHead),
		Tail:       getOffset(b, at+inoTail),
		HeadCursor: getU32(b, at+inoHeadCur),
		TailEnd:    getU32(b, at+inoTailEnd),
		OwnerUID:   getI32(b, at+inoOwnerUID),
		Mode:       getU32(b, at+inoMode),
	}
}

// EncodeInode writes an inode record into b[at:at+InodeSize].
func EncodeInode(b []byte, at int, in Inode) {
	putU32(b, at+inoRefCount, in.RefCount)
	putU32(b, at+inoFlags, in.Flags)
	putOffset(b, at+inoHead, in.Head)
	putOffset(b, at+inoTail, in.Tail)
	putU32(b, at+inoHeadCur, in.HeadCursor)
	putU32(b, at+inoTailEnd, in.TailEnd)
	putI32(b, at+inoOwnerUID, in.OwnerUID)
	putU32(b, at+inoMode, in.Mode)
}

// ZeroInode returns an empty (free, no owner) inode record.
func ZeroInode() Inode {
	return Inode{Head: None, Tail: None, OwnerUID: -1}
}
