// Package cozyfs implements a position-independent, in-memory hierarchical
// file system that lives entirely inside a caller-supplied contiguous byte
// buffer: mmap it, share it across processes, and every offset inside
// still resolves correctly regardless of where the buffer was mapped.
package cozyfs

import (
	"context"
	"time"

	"github.com/cozis/cozyfs/internal/entity"
	"github.com/cozis/cozyfs/internal/handle"
	"github.com/cozis/cozyfs/internal/page"
)

// HostCallbacks is the pluggable surface a caller provides to bridge this
// package's buffer-local logic onto real system resources: allocating the
// scratch pages a transaction's patch table needs, parking/waking a
// blocked acquirer, syncing a memory-mapped buffer to its backing file,
// and reading wall-clock time. internal/hostutil.Default implements this
// with a heap allocator, a sync.Cond waiter, and the real clock, for
// single-process embedding and tests.
type HostCallbacks interface {
	// Malloc returns a fresh, page-sized scratch buffer for one patch
	// table slot.
	Malloc(size int) ([]byte, error)
	// Free releases a buffer previously returned by Malloc.
	Free(buf []byte) error
	// Wait parks the caller while *addr == observed, waking on a Wake
	// call targeting the same address, a spontaneous wake, or timeout
	// (timeout < 0 meaning wait indefinitely). It reports false only on
	// a genuine timeout.
	Wait(addr *uint64, observed uint64, timeout time.Duration) (bool, error)
	// Wake releases every waiter parked on addr.
	Wake(addr *uint64) (bool, error)
	// Sync flushes the buffer to its backing store, if any; a purely
	// in-memory host may treat this as a no-op returning nil.
	Sync() error
	// Time returns the current wall-clock time.
	Time() (time.Time, error)
}

// hostAdapter bridges the public HostCallbacks surface onto the narrower
// internal interfaces (internal/txn.HostAlloc, internal/lock.Waiter,
// internal/lock.Clock / internal/backup.Clock), each of which predates
// this package and has no error-return channel of its own for Free/Wait/
// Wake/Now. Since this package serializes every session operation behind
// one InvariantMutex, a single "sticky last error" pair is enough: the
// first HostCallbacks failure during one call into the internal layers is
// recorded here and surfaced by the session after the call returns.
type hostAdapter struct {
	host    HostCallbacks
	lastOp  Op
	lastErr error
}

func newHostAdapter(host HostCallbacks) *hostAdapter {
	return &hostAdapter{host: host}
}

func (h *hostAdapter) record(op Op, err error) {
	if err != nil && h.lastErr == nil {
		h.lastOp = op
		h.lastErr = err
	}
}

// takeErr returns and clears any host callback error recorded since the
// last call, for the session to map to an ESYS* errno.
func (h *hostAdapter) takeErr() (Op, error) {
	op, err := h.lastOp, h.lastErr
	h.lastOp, h.lastErr = 0, nil
	return op, err
}

// Alloc implements internal/txn.HostAlloc.
func (h *hostAdapter) Alloc() ([]byte, error) {
	buf, err := h.host.Malloc(page.Size)
	if err != nil {
		h.record(OpMalloc, err)
		return nil, err
	}
	return buf, nil
}

// Free implements internal/txn.HostAlloc. Errors have no channel to
// propagate through here; they are recorded for the caller to retrieve.
func (h *hostAdapter) Free(buf []byte) {
	if err := h.host.Free(buf); err != nil {
		h.record(OpFree, err)
	}
}

// Wait implements internal/lock.Waiter.
func (h *hostAdapter) Wait(addr *uint64, observed uint64, timeout time.Duration) bool {
	ok, err := h.host.Wait(addr, observed, timeout)
	if err != nil {
		h.record(OpWait, err)
		return false
	}
	return ok
}

// Wake implements internal/lock.Waiter.
func (h *hostAdapter) Wake(addr *uint64) bool {
	ok, err := h.host.Wake(addr)
	if err != nil {
		h.record(OpWake, err)
		return false
	}
	return ok
}

// Now implements internal/lock.Clock and internal/backup.Clock.
func (h *hostAdapter) Now() time.Time {
	t, err := h.host.Time()
	if err != nil {
		h.record(OpTime, err)
		return time.Time{}
	}
	return t
}

// Init formats buf as a fresh, empty CozyFS buffer: a single root
// directory, an empty handle table, and (if enableBackup is set) two
// equal halves with the second seeded as an immediate valid backup of the
// first. refreshOnly skips formatting and only clears the lock word,
// for re-attaching to a buffer a previous process left locked after a
// clean shutdown raced its own unlock.
func Init(buf []byte, enableBackup bool, refreshOnly bool) error {
	if refreshOnly {
		page.SetLockWord(buf[:page.Size], 0)
		return nil
	}

	if !enableBackup {
		page.InitRootPage(buf[:page.Size], uint32(len(buf)/page.Size))
		page.SetBackupFlag(buf[:page.Size], -1)
		return nil
	}

	if len(buf)%2 != 0 {
		return EINVAL
	}
	halfSize := len(buf) / 2
	if halfSize < page.Size {
		return EINVAL
	}
	totalPages := uint32(halfSize / page.Size)

	page.InitRootPage(buf[:page.Size], totalPages)
	copy(buf[halfSize:halfSize+page.Size], buf[:page.Size])
	page.SetBackupFlag(buf[:page.Size], 0)
	return nil
}

// translateEntityErr maps internal/entity's sentinel errors onto the
// public Errno taxonomy. A nil err maps to nil.
func translateEntityErr(err error) error {
	switch err {
	case nil:
		return nil
	case entity.ErrNotFound:
		return ENOENT
	case entity.ErrExists:
		return EINVAL
	case entity.ErrNoSpace:
		return ENOMEM
	case entity.ErrUserExists:
		return EINVAL
	case entity.ErrUserNotFound:
		return ENOENT
	case entity.ErrDirNotEmpty:
		return EINVAL
	default:
		return err
	}
}

func translateHandleErr(err error) error {
	switch err {
	case nil:
		return nil
	case handle.ErrBadHandle:
		return EBADF
	case handle.ErrTableFull:
		return ENFILE
	default:
		return err
	}
}

// contextOrBackground returns ctx, or context.Background() if ctx is nil,
// so public entry points remain usable from callers that do not thread a
// context at all.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
