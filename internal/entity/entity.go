// Package entity manages the inode pool embedded in directory pages and
// the name->inode link chains that make each directory page list its
// children, the way memfs's inode table and per-directory entry slice
// manage theirs, but laid out across position-independent, chained pages
// instead of Go slices.
//
// Every Manager operates on a buffer slice that already names the active
// half (callers above this package resolve the backup flag once and hand
// down just that half); offsets in and out of this package are therefore
// always relative to that slice's own byte 0, which is always its root
// page.
//
// Every directory-mutating method takes the offset of the directory's own
// inode record (not a decoded copy), since that record's Head/Tail may
// need to change when the directory's page chain grows, and the record
// could live in the fixed root-inode slot or in an arbitrary pool slot
// inside some other directory's page -- only the caller knows which, and
// this package always writes changes straight back to that same offset.
package entity

import (
	"context"
	"errors"

	"github.com/cozis/cozyfs/common"
	"github.com/cozis/cozyfs/internal/page"
	"github.com/cozis/cozyfs/internal/txn"
)

// ErrNotFound is returned when a name has no entry in a directory, or when
// DecRef is asked to operate on an already-free inode slot.
var ErrNotFound = errors.New("entity: not found")

// ErrExists is returned when AddChild or CreateEntity is asked to reuse an
// existing name.
var ErrExists = errors.New("entity: name already exists")

// ErrNoSpace is returned when the active half has no more pages to hand
// out, either from the free list or by growing toward its total page
// count.
var ErrNoSpace = errors.New("entity: no free pages left")

// ErrDirNotEmpty is returned by RemoveEntity when asked to remove a
// directory that still has at least one child link.
var ErrDirNotEmpty = errors.New("entity: directory not empty")

// Manager is the entry point for every inode/directory operation within
// one transaction.
type Manager struct {
	tx *txn.Txn
}

// New wraps a transaction with inode/directory-pool operations.
func New(tx *txn.Txn) *Manager {
	return &Manager{tx: tx}
}

func withinPage(off page.Offset) int {
	return int(off) - int(off.Base())
}

// ReadInode decodes the inode record living at off, wherever it is (the
// root page's single root-directory slot, or a pool slot inside some
// directory page).
func (m *Manager) ReadInode(off page.Offset) page.Inode {
	buf := m.tx.Read(off)
	return page.DecodeInode(buf, withinPage(off))
}

func (m *Manager) writeInode(ctx context.Context, off page.Offset, in page.Inode) error {
	buf, err := m.tx.Writable(ctx, off)
	if err != nil {
		return err
	}
	page.EncodeInode(buf, withinPage(off), in)
	return nil
}

// rootBuf returns a writable view of page 0, the root page of the active
// half this Manager's transaction is bound to.
func (m *Manager) rootBuf(ctx context.Context) ([]byte, error) {
	return m.tx.Writable(ctx, 0)
}

// AllocPage hands out one fresh page: the head of the on-disk free list if
// non-empty, otherwise the next never-used page below the total page
// count. The page's contents are not cleared: a recycled page still carries
// its free-page header, so the caller must call InitChainPage with the
// right kind.
func (m *Manager) AllocPage(ctx context.Context) (page.Offset, error) {
	root, err := m.rootBuf(ctx)
	if err != nil {
		return page.None, err
	}

	if head := page.FreeListHead(root); head != page.None {
		freeBuf, err := m.tx.Writable(ctx, head)
		if err != nil {
			return page.None, err
		}
		next := page.Next(freeBuf)
		page.SetFreeListHead(root, next)
		return head, nil
	}

	inUse := page.InUsePages(root)
	if inUse >= page.TotalPages(root) {
		return page.None, ErrNoSpace
	}
	off := page.Offset(inUse) * page.Offset(page.Size)
	page.SetInUsePages(root, inUse+1)
	return off, nil
}

// FreePage returns a page to the head of the on-disk free list.
func (m *Manager) FreePage(ctx context.Context, off page.Offset) error {
	root, err := m.rootBuf(ctx)
	if err != nil {
		return err
	}
	buf, err := m.tx.Writable(ctx, off)
	if err != nil {
		return err
	}
	page.InitChainPage(buf, page.KindFree)
	page.SetNext(buf, page.FreeListHead(root))
	page.SetFreeListHead(root, off)
	return nil
}

// reserveDirPage allocates one fresh page and stages it in a queue, so a
// caller that cannot finish wiring it in (a failed write further down the
// call chain) can return it to the free list instead of leaking it.
func (m *Manager) reserveDirPage(ctx context.Context) (page.Offset, common.Queue[page.Offset], error) {
	q := common.NewLinkedListQueue[page.Offset]()
	off, err := m.AllocPage(ctx)
	if err != nil {
		return page.None, q, err
	}
	q.Push(off)
	return off, q, nil
}

func (m *Manager) releaseQueue(ctx context.Context, q common.Queue[page.Offset]) {
	for !q.IsEmpty() {
		_ = m.FreePage(ctx, q.Pop())
	}
}

// appendDirPage allocates a fresh directory page and links it onto the
// tail of dirInodeOff's page chain, persisting the updated Head/Tail back
// to dirInodeOff. Returns the new page's offset.
func (m *Manager) appendDirPage(ctx context.Context, dirInodeOff page.Offset) (page.Offset, error) {
	newOff, q, err := m.reserveDirPage(ctx)
	if err != nil {
		return page.None, err
	}

	newBuf, err := m.tx.Writable(ctx, newOff)
	if err != nil {
		m.releaseQueue(ctx, q)
		return page.None, err
	}
	page.InitDirPage(newBuf)

	dirInode := m.ReadInode(dirInodeOff)
	if dirInode.Head == page.None {
		dirInode.Head = newOff
		dirInode.Tail = newOff
	} else {
		tailBuf, err := m.tx.Writable(ctx, dirInode.Tail)
		if err != nil {
			m.releaseQueue(ctx, q)
			return page.None, err
		}
		page.SetNext(tailBuf, newOff)
		page.SetPrev(newBuf, dirInode.Tail)
		dirInode.Tail = newOff
	}
	if err := m.writeInode(ctx, dirInodeOff, dirInode); err != nil {
		m.releaseQueue(ctx, q)
		return page.None, err
	}
	return newOff, nil
}

// forEachDirPage walks a directory's page chain from head to the sentinel,
// calling fn with each page's offset and a read-only view of its bytes.
// Iteration stops early if fn returns false.
func (m *Manager) forEachDirPage(head page.Offset, fn func(off page.Offset, buf []byte) bool) {
	for off := head; off != page.None; {
		buf := m.tx.Read(off)
		if !fn(off, buf) {
			return
		}
		off = page.Next(buf)
	}
}

// LookupChild scans a directory's link chain for name, returning the
// offset of the child's inode record.
func (m *Manager) LookupChild(dirInodeOff page.Offset, name string) (page.Offset, bool) {
	head := m.ReadInode(dirInodeOff).Head
	var found page.Offset = page.None
	ok := false
	m.forEachDirPage(head, func(off page.Offset, buf []byte) bool {
		for i := 0; i < page.DirLinksLen; i++ {
			at := page.DirLinkSlot(i)
			if page.LinkEmpty(buf, at) {
				continue
			}
			l := page.DecodeLink(buf, at)
			if l.Name == name {
				found = l.InodeOffset
				ok = true
				return false
			}
		}
		return true
	})
	return found, ok
}

// AddChild links name -> childInode into dirInodeOff's chain, reusing the
// first empty link slot found in any already-chained page, or appending a
// fresh directory page if every chained page is full.
func (m *Manager) AddChild(ctx context.Context, dirInodeOff page.Offset, name string, childInode page.Offset) error {
	if _, ok := m.LookupChild(dirInodeOff, name); ok {
		return ErrExists
	}

	head := m.ReadInode(dirInodeOff).Head
	slotOff, found := page.Offset(0), false
	m.forEachDirPage(head, func(off page.Offset, buf []byte) bool {
		for i := 0; i < page.DirLinksLen; i++ {
			at := page.DirLinkSlot(i)
			if page.LinkEmpty(buf, at) {
				slotOff = off + page.Offset(at)
				found = true
				return false
			}
		}
		return true
	})

	if !found {
		newOff, err := m.appendDirPage(ctx, dirInodeOff)
		if err != nil {
			return err
		}
		slotOff = newOff + page.Offset(page.DirLinkSlot(0))
	}

	buf, err := m.tx.Writable(ctx, slotOff)
	if err != nil {
		return err
	}
	page.EncodeLink(buf, withinPage(slotOff), page.Link{Name: name, InodeOffset: childInode})
	return nil
}

// lastUsedLink finds the last occupied link slot anywhere in the chain, so
// RemoveChild can swap it into the slot being vacated rather than leaving a
// hole in the middle of a page's array.
func (m *Manager) lastUsedLink(head page.Offset) (off page.Offset, ok bool) {
	m.forEachDirPage(head, func(pageOff page.Offset, buf []byte) bool {
		for i := 0; i < page.DirLinksLen; i++ {
			at := page.DirLinkSlot(i)
			if !page.LinkEmpty(buf, at) {
				off = pageOff + page.Offset(at)
				ok = true
			}
		}
		return true
	})
	return off, ok
}

// RemoveChild unlinks name from dirInodeOff's chain. The vacated slot is
// filled by swapping in whichever link slot was last in chain order, so
// that scans never need to skip interior holes; if the removed slot was
// itself the last one, it is simply cleared.
func (m *Manager) RemoveChild(ctx context.Context, dirInodeOff page.Offset, name string) error {
	head := m.ReadInode(dirInodeOff).Head

	var target page.Offset = page.None
	m.forEachDirPage(head, func(off page.Offset, buf []byte) bool {
		for i := 0; i < page.DirLinksLen; i++ {
			at := page.DirLinkSlot(i)
			if page.LinkEmpty(buf, at) {
				continue
			}
			if page.DecodeLink(buf, at).Name == name {
				target = off + page.Offset(at)
				return false
			}
		}
		return true
	})
	if target == page.None {
		return ErrNotFound
	}

	last, ok := m.lastUsedLink(head)
	if !ok {
		return ErrNotFound
	}

	if last != target {
		lastBuf := m.tx.Read(last)
		lastLink := page.DecodeLink(lastBuf, withinPage(last))
		targetBuf, err := m.tx.Writable(ctx, target)
		if err != nil {
			return err
		}
		page.EncodeLink(targetBuf, withinPage(target), lastLink)
		last = target
	}

	lastBuf, err := m.tx.Writable(ctx, last)
	if err != nil {
		return err
	}
	page.ClearLink(lastBuf, withinPage(last))
	return nil
}

// CreateEntity allocates a fresh inode slot inside dirInodeOff's own page
// chain (reusing the first free slot, or appending a new directory page if
// every chained page's inode pool is full), initializes it, and links name
// to it. It returns the new inode's offset.
func (m *Manager) CreateEntity(ctx context.Context, dirInodeOff page.Offset, name string, flags uint32, ownerUID int32) (page.Offset, error) {
	if _, ok := m.LookupChild(dirInodeOff, name); ok {
		return page.None, ErrExists
	}

	head := m.ReadInode(dirInodeOff).Head
	slotOff, found := page.Offset(0), false
	m.forEachDirPage(head, func(off page.Offset, buf []byte) bool {
		for i := 0; i < page.DirInodePoolLen; i++ {
			at := page.DirInodeSlot(i)
			if page.DecodeInode(buf, at).Free() {
				slotOff = off + page.Offset(at)
				found = true
				return false
			}
		}
		return true
	})

	if !found {
		newOff, err := m.appendDirPage(ctx, dirInodeOff)
		if err != nil {
			return page.None, err
		}
		slotOff = newOff + page.Offset(page.DirInodeSlot(0))
	}

	in := page.ZeroInode()
	in.RefCount = 1
	in.Flags = flags
	in.OwnerUID = ownerUID
	if err := m.writeInode(ctx, slotOff, in); err != nil {
		return page.None, err
	}

	if err := m.AddChild(ctx, dirInodeOff, name, slotOff); err != nil {
		return page.None, err
	}
	return slotOff, nil
}

// HasChildren reports whether a directory's link chain has at least one
// occupied slot.
func (m *Manager) HasChildren(dirInodeOff page.Offset) bool {
	head := m.ReadInode(dirInodeOff).Head
	found := false
	m.forEachDirPage(head, func(_ page.Offset, buf []byte) bool {
		for i := 0; i < page.DirLinksLen; i++ {
			if !page.LinkEmpty(buf, page.DirLinkSlot(i)) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// ListChildren calls fn once for every live link directly under
// dirInodeOff, in chain order.
func (m *Manager) ListChildren(dirInodeOff page.Offset, fn func(name string, inodeOff page.Offset)) {
	head := m.ReadInode(dirInodeOff).Head
	m.forEachDirPage(head, func(_ page.Offset, buf []byte) bool {
		for i := 0; i < page.DirLinksLen; i++ {
			at := page.DirLinkSlot(i)
			if page.LinkEmpty(buf, at) {
				continue
			}
			l := page.DecodeLink(buf, at)
			fn(l.Name, l.InodeOffset)
		}
		return true
	})
}

// RemoveEntity unlinks name from dirInodeOff's chain and drops the
// target's reference count, refusing to remove a directory that still has
// children.
func (m *Manager) RemoveEntity(ctx context.Context, dirInodeOff page.Offset, name string) error {
	childOff, ok := m.LookupChild(dirInodeOff, name)
	if !ok {
		return ErrNotFound
	}
	child := m.ReadInode(childOff)
	if child.IsDir() && m.HasChildren(childOff) {
		return ErrDirNotEmpty
	}
	if err := m.RemoveChild(ctx, dirInodeOff, name); err != nil {
		return err
	}
	return m.DecRef(ctx, childOff)
}

// IncRef bumps an inode's link count, used when hard-linking an existing
// entity under a new name.
func (m *Manager) IncRef(ctx context.Context, off page.Offset) error {
	in := m.ReadInode(off)
	in.RefCount++
	return m.writeInode(ctx, off, in)
}

// DecRef drops an inode's link count by one. Once it reaches zero, every
// page in the inode's own content chain (its file data, or an empty
// directory's now-unreferenced page chain) is returned to the free list
// and the slot itself is cleared.
func (m *Manager) DecRef(ctx context.Context, off page.Offset) error {
	in := m.ReadInode(off)
	if in.RefCount == 0 {
		return ErrNotFound
	}
	in.RefCount--
	if in.RefCount > 0 {
		return m.writeInode(ctx, off, in)
	}

	for p := in.Head; p != page.None; {
		buf := m.tx.Read(p)
		next := page.Next(buf)
		if err := m.FreePage(ctx, p); err != nil {
			return err
		}
		p = next
	}
	return m.writeInode(ctx, off, page.ZeroInode())
}

// SetOwner overwrites an inode's owning account id. Nothing downstream
// checks this value against the caller's account; it is recorded for
// Stat to report, not enforced.
func (m *Manager) SetOwner(ctx context.Context, off page.Offset, ownerUID int32) error {
	in := m.ReadInode(off)
	in.OwnerUID = ownerUID
	return m.writeInode(ctx, off, in)
}

// SetMode overwrites an inode's permission bits. As with SetOwner, no
// operation in this package consults the value.
func (m *Manager) SetMode(ctx context.Context, off page.Offset, mode uint32) error {
	in := m.ReadInode(off)
	in.Mode = mode
	return m.writeInode(ctx, off, in)
}
