// Package handle implements the open file-descriptor table: an inline
// array in the root page, overflowing into a chain of handle-overflow
// pages, addressed by a descriptor that packs a slot index with a
// generation counter so a closed-then-reopened slot can never be
// mistaken for the handle that last held it.
package handle

import (
	"context"
	"errors"

	"github.com/cozis/cozyfs/internal/page"
	"github.com/cozis/cozyfs/internal/txn"
)

// ErrBadHandle is returned when a descriptor's generation no longer
// matches the slot it names, or the slot index is out of range.
var ErrBadHandle = errors.New("handle: stale or invalid descriptor")

// ErrTableFull is returned when every inline and overflow slot is in use
// and the active half has no more pages to grow the overflow chain.
var ErrTableFull = errors.New("handle: no free descriptor slots")

// PageAllocator is the subset of internal/entity's Manager this package
// needs to grow the overflow chain and keep an open file's inode alive
// for as long as a handle refers to it; internal/entity's Manager
// satisfies it directly.
type PageAllocator interface {
	AllocPage(ctx context.Context) (page.Offset, error)
	FreePage(ctx context.Context, off page.Offset) error
	IncRef(ctx context.Context, off page.Offset) error
	DecRef(ctx context.Context, off page.Offset) error
}

// Descriptor is an opaque, packed (generation, index) pair returned by
// Open and required by every other operation on that handle.
type Descriptor uint32

func pack(generation uint16, index uint32) Descriptor {
	return Descriptor(uint32(generation)<<16 | index)
}

func (d Descriptor) generation() uint16 { return uint16(d >> 16) }
func (d Descriptor) index() uint32      { return uint32(d) & 0xFFFF }

// Manager is the entry point for every handle-table operation within one
// transaction.
type Manager struct {
	tx    *txn.Txn
	pages PageAllocator
}

// New wraps a transaction with handle-table operations.
func New(tx *txn.Txn, pages PageAllocator) *Manager {
	return &Manager{tx: tx, pages: pages}
}

func (m *Manager) rootBuf(ctx context.Context) ([]byte, error) {
	return m.tx.Writable(ctx, 0)
}

// slotLocation resolves a global slot index to the offset of its
// HandleSlot record, walking the overflow chain as needed. ok is false if
// the index falls beyond every page currently in the chain.
func (m *Manager) slotLocation(index uint32) (off page.Offset, ok bool) {
	if index < page.InlineHandleCount {
		return page.Offset(page.RootInlineHandleSlot(int(index))), true
	}

	root := m.tx.Read(0)
	remaining := index - page.InlineHandleCount
	pageOff := page.HandleOverflowHead(root)
	for pageOff != page.None {
		buf := m.tx.Read(pageOff)
		if remaining < page.HandleOverflowLen {
			return pageOff + page.Offset(page.HandleOverflowSlot(int(remaining))), true
		}
		remaining -= page.HandleOverflowLen
		pageOff = page.Next(buf)
	}
	return page.None, false
}

func (m *Manager) readSlot(index uint32) (page.HandleSlot, bool) {
	off, ok := m.slotLocation(index)
	if !ok {
		return page.HandleSlot{}, false
	}
	buf := m.tx.Read(off)
	return page.DecodeHandleSlot(buf, int(off)-int(off.Base())), true
}

func (m *Manager) writeSlot(ctx context.Context, index uint32, hs page.HandleSlot) error {
	off, ok := m.slotLocation(index)
	if !ok {
		return ErrBadHandle
	}
	buf, err := m.tx.Writable(ctx, off)
	if err != nil {
		return err
	}
	page.EncodeHandleSlot(buf, int(off)-int(off.Base()), hs)
	return nil
}

// growOverflow appends one fresh handle-overflow page to the chain,
// returning the index of its first slot.
func (m *Manager) growOverflow(ctx context.Context) (uint32, error) {
	root, err := m.rootBuf(ctx)
	if err != nil {
		return 0, err
	}

	newOff, err := m.pages.AllocPage(ctx)
	if err != nil {
		return 0, ErrTableFull
	}
	newBuf, err := m.tx.Writable(ctx, newOff)
	if err != nil {
		return 0, err
	}
	page.InitHandleOverflowPage(newBuf)

	firstIndex := page.InlineHandleCount

	head := page.HandleOverflowHead(root)
	if head == page.None {
		page.SetHandleOverflowHead(root, newOff)
		return uint32(firstIndex), nil
	}

	count := 1
	tailOff := head
	for {
		tailBuf := m.tx.Read(tailOff)
		next := page.Next(tailBuf)
		if next == page.None {
			break
		}
		tailOff = next
		count++
	}
	tailBuf, err := m.tx.Writable(ctx, tailOff)
	if err != nil {
		return 0, err
	}
	page.SetNext(tailBuf, newOff)
	page.SetPrev(newBuf, tailOff)
	return uint32(firstIndex + count*page.HandleOverflowLen), nil
}

// Open allocates the first free slot (inline, then overflow, growing the
// overflow chain by one page if every existing slot is in use), stamps it
// with inode and a fresh generation, and returns its descriptor. It also
// bumps inode's reference count, so the handle itself counts as a
// reference alongside any directory link: content is only ever freed
// once both links and open handles have dropped to zero.
func (m *Manager) Open(ctx context.Context, inode page.Offset) (Descriptor, error) {
	var index uint32
	found := false
	for i := uint32(0); i < page.InlineHandleCount; i++ {
		if hs, ok := m.readSlot(i); ok && !hs.Used {
			index, found = i, true
			break
		}
	}

	if !found {
		root := m.tx.Read(0)
		remaining := uint32(0)
		pageOff := page.HandleOverflowHead(root)
		base := uint32(page.InlineHandleCount)
		for pageOff != page.None {
			buf := m.tx.Read(pageOff)
			for i := 0; i < page.HandleOverflowLen; i++ {
				at := page.HandleOverflowSlot(i)
				hs := page.DecodeHandleSlot(buf, at)
				if !hs.Used {
					index, found = base+remaining+uint32(i), true
					break
				}
			}
			if found {
				break
			}
			remaining += page.HandleOverflowLen
			pageOff = page.Next(buf)
		}
	}

	if !found {
		newIndex, err := m.growOverflow(ctx)
		if err != nil {
			return 0, err
		}
		index = newIndex
	}

	if err := m.pages.IncRef(ctx, inode); err != nil {
		return 0, err
	}

	existing, _ := m.readSlot(index)
	gen := page.NextGeneration(existing.Generation)
	hs := page.HandleSlot{Used: true, Generation: gen, InodeOff: inode, Cursor: 0}
	if err := m.writeSlot(ctx, index, hs); err != nil {
		return 0, err
	}
	return pack(gen, index), nil
}

// lookup validates a descriptor against its slot's current generation.
func (m *Manager) lookup(d Descriptor) (page.HandleSlot, error) {
	hs, ok := m.readSlot(d.index())
	if !ok || !hs.Used || hs.Generation != d.generation() {
		return page.HandleSlot{}, ErrBadHandle
	}
	return hs, nil
}

// Stat returns the current slot contents for a valid descriptor: the
// inode it refers to and the caller's byte cursor.
func (m *Manager) Stat(d Descriptor) (inode page.Offset, cursor uint32, err error) {
	hs, err := m.lookup(d)
	if err != nil {
		return page.None, 0, err
	}
	return hs.InodeOff, hs.Cursor, nil
}

// Seek overwrites a valid descriptor's byte cursor.
func (m *Manager) Seek(ctx context.Context, d Descriptor, cursor uint32) error {
	hs, err := m.lookup(d)
	if err != nil {
		return err
	}
	hs.Cursor = cursor
	return m.writeSlot(ctx, d.index(), hs)
}

// Close marks a valid descriptor's slot unused and drops the reference
// Open took on its inode, freeing the inode's content once that was the
// last reference (no remaining directory links and no other open
// handle). The generation counter is left untouched until the next Open
// reuses the slot, so a Close is never observably reverted by a
// concurrent stale use of the old descriptor.
func (m *Manager) Close(ctx context.Context, d Descriptor) error {
	hs, err := m.lookup(d)
	if err != nil {
		return err
	}
	inode := hs.InodeOff
	hs.Used = false
	hs.InodeOff = page.None
	hs.Cursor = 0
	if err := m.writeSlot(ctx, d.index(), hs); err != nil {
		return err
	}
	return m.pages.DecRef(ctx, inode)
}
