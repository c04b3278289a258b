package handle

import (
	"context"
	"testing"

	"github.com/cozis/cozyfs/internal/entity"
	"github.com/cozis/cozyfs/internal/page"
	"github.com/cozis/cozyfs/internal/txn"
)

type heapAlloc struct{ pageSize int }

func (h *heapAlloc) Alloc() ([]byte, error) { return make([]byte, h.pageSize), nil }
func (h *heapAlloc) Free(buf []byte)        {}

func newManager(t *testing.T, totalPages int) (*Manager, *entity.Manager, []byte) {
	t.Helper()
	buf := make([]byte, totalPages*page.Size)
	page.InitRootPage(buf[:page.Size], uint32(totalPages))
	tx := txn.New(buf, page.Size, &heapAlloc{pageSize: page.Size}, 64)
	em := entity.New(tx)
	return New(tx, em), em, buf
}

func TestOpenAssignsInlineSlotAndStat(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	inode := page.Offset(page.RootInodeOffset)
	d, err := m.Open(ctx, inode)
	if err != nil {
		t.Fatal(err)
	}

	got, cursor, err := m.Stat(d)
	if err != nil {
		t.Fatal(err)
	}
	if got != inode || cursor != 0 {
		t.Fatalf("stat: got (%v,%v), want (%v,0)", got, cursor, inode)
	}
}

func TestSeekPersistsCursor(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	d, err := m.Open(ctx, page.Offset(page.RootInodeOffset))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Seek(ctx, d, 128); err != nil {
		t.Fatal(err)
	}
	_, cursor, err := m.Stat(d)
	if err != nil {
		t.Fatal(err)
	}
	if cursor != 128 {
		t.Fatalf("expected cursor 128, got %d", cursor)
	}
}

func TestCloseInvalidatesDescriptor(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	d, err := m.Open(ctx, page.Offset(page.RootInodeOffset))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx, d); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Stat(d); err != ErrBadHandle {
		t.Fatalf("expected ErrBadHandle after close, got %v", err)
	}
}

func TestCloseThenReopenBumpsGenerationAndInvalidatesOldDescriptor(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	d1, err := m.Open(ctx, page.Offset(page.RootInodeOffset))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx, d1); err != nil {
		t.Fatal(err)
	}

	d2, err := m.Open(ctx, page.Offset(page.RootInodeOffset))
	if err != nil {
		t.Fatal(err)
	}
	if d1.index() != d2.index() {
		t.Fatalf("expected the closed slot to be reused, got distinct indices %d != %d", d1.index(), d2.index())
	}
	if d1.generation() == d2.generation() {
		t.Fatal("expected generation to change across reuse")
	}

	if _, _, err := m.Stat(d1); err != ErrBadHandle {
		t.Fatalf("old descriptor must no longer validate, got %v", err)
	}
	if _, _, err := m.Stat(d2); err != nil {
		t.Fatalf("new descriptor must validate, got %v", err)
	}
}

func TestOpenGrowsOverflowChainOnceInlineSlotsExhausted(t *testing.T) {
	ctx := context.Background()
	m, _, buf := newManager(t, page.InlineHandleCount/page.HandleOverflowLen+8)

	root := buf[:page.Size]
	if page.HandleOverflowHead(root) != page.None {
		t.Fatal("expected no overflow chain before any slots are exhausted")
	}

	var last Descriptor
	for i := 0; i < page.InlineHandleCount+1; i++ {
		d, err := m.Open(ctx, page.Offset(page.RootInodeOffset))
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		last = d
	}

	if last.index() < uint32(page.InlineHandleCount) {
		t.Fatalf("expected the slot beyond inline capacity to land in overflow, got index %d", last.index())
	}
	if page.HandleOverflowHead(m.tx.Read(0)) == page.None {
		t.Fatal("expected an overflow page to have been allocated")
	}

	inode, _, err := m.Stat(last)
	if err != nil {
		t.Fatal(err)
	}
	if inode != page.Offset(page.RootInodeOffset) {
		t.Fatalf("unexpected inode on overflow slot: %v", inode)
	}
}

func TestOpenIncrementsRefCountAndCloseDecrementsIt(t *testing.T) {
	ctx := context.Background()
	m, em, _ := newManager(t, 4)

	inode := page.Offset(page.RootInodeOffset)
	before := em.ReadInode(inode).RefCount

	d, err := m.Open(ctx, inode)
	if err != nil {
		t.Fatal(err)
	}
	if got := em.ReadInode(inode).RefCount; got != before+1 {
		t.Fatalf("expected Open to bump refcount to %d, got %d", before+1, got)
	}

	if err := m.Close(ctx, d); err != nil {
		t.Fatal(err)
	}
	if got := em.ReadInode(inode).RefCount; got != before {
		t.Fatalf("expected Close to drop refcount back to %d, got %d", before, got)
	}
}

func TestStatRejectsOutOfRangeDescriptor(t *testing.T) {
	m, _, _ := newManager(t, 4)
	bogus := pack(1, 999999)
	if _, _, err := m.Stat(bogus); err != ErrBadHandle {
		t.Fatalf("expected ErrBadHandle, got %v", err)
	}
}
