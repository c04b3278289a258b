package page

// A directory page carries the common chain header, then a fixed pool of
// inode slots (entities that live "in" this directory page), then a fixed
// array of name->inode links. Both arrays have per-page fixed capacity; a
// directory or its inode pool overflows into a freshly allocated, chained
// directory page.
const (
	DirInodePoolLen = 8
	DirLinksLen     = 28

	dirInodePoolOff = headerSize
	dirLinksOff     = dirInodePoolOff + DirInodePoolLen*InodeSize
)

// DirInodeSlot returns the byte offset of inode pool slot i within a
// directory page.
func DirInodeSlot(i int) int { return dirInodePoolOff + i*InodeSize }

// DirLinkSlot returns the byte offset of link slot i within a directory
// page.
func DirLinkSlot(i int) int { return dirLinksOff + i*LinkSize }

// InitDirPage formats a fresh directory page: chain header plus all-free
// inode and link slots.
func InitDirPage(p []byte) {
	InitChainPage(p, KindDirectory)
	for i := 0; i < DirInodePoolLen; i++ {
		EncodeInode(p, DirInodeSlot(i), ZeroInode())
	}
	for i := 0; i < DirLinksLen; i++ {
		ClearLink(p, DirLinkSlot(i))
	}
}
