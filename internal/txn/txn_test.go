package txn

import (
	"context"
	"testing"

	"github.com/cozis/cozyfs/internal/page"
)

// heapAlloc is a trivial HostAlloc backed by the Go heap, good enough for
// exercising the patch table without a real shared-memory allocator.
type heapAlloc struct {
	pageSize int
	live     int
}

func (h *heapAlloc) Alloc() ([]byte, error) {
	h.live++
	return make([]byte, h.pageSize), nil
}

func (h *heapAlloc) Free(buf []byte) { h.live-- }

func TestWritableCopiesOriginalOnFirstTouch(t *testing.T) {
	buf := make([]byte, 2*page.Size)
	for i := range buf[:page.Size] {
		buf[i] = 0xAB
	}
	alloc := &heapAlloc{pageSize: page.Size}
	tx := New(buf, page.Size, alloc, 8)

	p, err := tx.Writable(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p[0] != 0xAB {
		t.Fatal("patch page must start as a copy of the original page")
	}
	if buf[0] != 0xAB {
		t.Fatal("writable patch must not alias the original buffer")
	}
	p[0] = 0xCD
	if buf[0] != 0xAB {
		t.Fatal("writing the patch must not be visible in the original buffer before commit")
	}
}

func TestWritableIsIdempotentPerPage(t *testing.T) {
	buf := make([]byte, page.Size)
	alloc := &heapAlloc{pageSize: page.Size}
	tx := New(buf, page.Size, alloc, 8)

	p1, _ := tx.Writable(context.Background(), 10)
	p2, _ := tx.Writable(context.Background(), 20)
	if &p1[0] != &p2[0] {
		t.Fatal("two offsets in the same page must share one patch buffer")
	}
	if tx.PatchCount() != 1 {
		t.Fatalf("expected 1 distinct patch page, got %d", tx.PatchCount())
	}
}

func TestReadReflectsPatchOnceWritten(t *testing.T) {
	buf := make([]byte, page.Size)
	alloc := &heapAlloc{pageSize: page.Size}
	tx := New(buf, page.Size, alloc, 8)

	before := tx.Read(0)
	if &before[0] != &buf[0] {
		t.Fatal("unpatched read must return the original buffer")
	}

	p, _ := tx.Writable(context.Background(), 0)
	p[5] = 0x42

	after := tx.Read(0)
	if after[5] != 0x42 {
		t.Fatal("read after a write must observe the patch")
	}
}

func TestCommitCopiesBackAndFreesPatches(t *testing.T) {
	buf := make([]byte, 2*page.Size)
	alloc := &heapAlloc{pageSize: page.Size}
	tx := New(buf, page.Size, alloc, 8)

	p, _ := tx.Writable(context.Background(), page.Size)
	p[100] = 0x99

	tx.Commit()

	if buf[page.Size+100] != 0x99 {
		t.Fatal("commit must copy the patch back over the original page")
	}
	if alloc.live != 0 {
		t.Fatalf("commit must free every patch page, %d still live", alloc.live)
	}
	if tx.Dirty() {
		t.Fatal("transaction must be clean after commit")
	}
}

func TestRollbackDiscardsPatches(t *testing.T) {
	buf := make([]byte, page.Size)
	for i := range buf {
		buf[i] = 0x11
	}
	alloc := &heapAlloc{pageSize: page.Size}
	tx := New(buf, page.Size, alloc, 8)

	p, _ := tx.Writable(context.Background(), 0)
	p[0] = 0x99

	tx.Rollback()

	if buf[0] != 0x11 {
		t.Fatal("rollback must leave the original buffer untouched")
	}
	if alloc.live != 0 {
		t.Fatalf("rollback must free every patch page, %d still live", alloc.live)
	}
	if tx.Dirty() {
		t.Fatal("transaction must be clean after rollback")
	}
}

func TestWritableFailsImmediatelyAtCapacity(t *testing.T) {
	buf := make([]byte, 4*page.Size)
	alloc := &heapAlloc{pageSize: page.Size}
	tx := New(buf, page.Size, alloc, 2)

	if _, err := tx.Writable(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tx.Writable(context.Background(), page.Size); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := tx.Writable(context.Background(), 2*page.Size); err != ErrPatchTableFull {
		t.Fatalf("expected ErrPatchTableFull once the patch table is at capacity, got %v", err)
	}
}
