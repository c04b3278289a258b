// Package txn implements the copy-on-write patch table that sits between a
// session's mutating operations and the shared buffer: a page is never
// modified in place until commit, so a rollback or a timed-out session
// leaves the buffer exactly as it was found.
package txn

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/cozis/cozyfs/internal/page"
)

// ErrPatchTableFull is returned by Writable when every patch slot is
// already in use. The caller's public entry point maps this to ENOMEM.
var ErrPatchTableFull = errors.New("txn: patch table full")

// HostAlloc is the host MALLOC/FREE callback pair this package needs, each
// call producing or releasing one page-sized buffer.
type HostAlloc interface {
	Alloc() ([]byte, error)
	Free(buf []byte)
}

// Txn tracks the patch pages for one in-progress transaction. It is not
// safe for concurrent use; callers serialize access through the buffer's
// lock.
type Txn struct {
	buf      []byte
	pageSize int
	alloc    HostAlloc
	sem      *semaphore.Weighted
	patches  map[page.Offset][]byte
	order    []page.Offset
}

// New returns a fresh, empty transaction over buf. maxPatches bounds how
// many pages may be patched at once, gating the host allocator against a
// single session exhausting it.
func New(buf []byte, pageSize int, alloc HostAlloc, maxPatches int64) *Txn {
	return &Txn{
		buf:      buf,
		pageSize: pageSize,
		alloc:    alloc,
		sem:      semaphore.NewWeighted(maxPatches),
		patches:  make(map[page.Offset][]byte),
	}
}

// Writable returns a mutable, page-sized view for the page containing off.
// The first call for a given page copies the original bytes into a fresh
// host-allocated replacement and registers it in the patch table; later
// calls for the same page return that same replacement, so all writes
// within one transaction to one page land in the same buffer. A patch
// table at capacity fails immediately with ErrPatchTableFull rather than
// blocking for a slot to free up, since nothing ever frees one mid-
// transaction.
func (tx *Txn) Writable(ctx context.Context, off page.Offset) ([]byte, error) {
	base := off.Base()
	if p, ok := tx.patches[base]; ok {
		return p, nil
	}
	if !tx.sem.TryAcquire(1) {
		return nil, ErrPatchTableFull
	}
	p, err := tx.alloc.Alloc()
	if err != nil {
		tx.sem.Release(1)
		return nil, err
	}
	copy(p, tx.buf[int(base):int(base)+tx.pageSize])
	tx.patches[base] = p
	tx.order = append(tx.order, base)
	return p, nil
}

// Read returns the current view of the page containing off: the patch if
// this transaction has already written to it, otherwise the shared
// buffer's bytes directly.
func (tx *Txn) Read(off page.Offset) []byte {
	base := off.Base()
	if p, ok := tx.patches[base]; ok {
		return p
	}
	return tx.buf[int(base) : int(base)+tx.pageSize]
}

// Dirty reports whether any page has been patched.
func (tx *Txn) Dirty() bool { return len(tx.order) > 0 }

// PatchCount reports how many distinct pages are currently patched.
func (tx *Txn) PatchCount() int { return len(tx.order) }

// Commit copies every patch page back over its original location, in the
// order the pages were first touched, then frees the patch pages and
// releases their semaphore slots. The caller is responsible for triggering
// a backup and releasing the lock afterward.
func (tx *Txn) Commit() {
	for _, base := range tx.order {
		p := tx.patches[base]
		copy(tx.buf[int(base):int(base)+tx.pageSize], p)
		tx.alloc.Free(p)
		tx.sem.Release(1)
	}
	tx.reset()
}

// Rollback discards every patch page without copying it back, leaving the
// buffer exactly as it was before the transaction began. Used both for an
// explicit rollback and for a session that times out mid-transaction.
func (tx *Txn) Rollback() {
	for _, base := range tx.order {
		tx.alloc.Free(tx.patches[base])
		tx.sem.Release(1)
	}
	tx.reset()
}

func (tx *Txn) reset() {
	tx.patches = make(map[page.Offset][]byte)
	tx.order = nil
}
