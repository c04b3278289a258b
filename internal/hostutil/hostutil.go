// Package hostutil provides a reference, in-process implementation of
// every host callback the core engine needs: a page allocator, a
// futex-style wait/wake pair, and the wall clock. It is suitable for
// single-process embedding and for tests; a caller sharing the buffer
// across OS processes needs a host allocator and wait/wake backed by
// shared memory and a real futex instead, with the same shapes.
package hostutil

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cozis/cozyfs/clock"
)

// HeapAlloc hands out page-sized buffers from the Go heap, satisfying
// internal/txn's HostAlloc. It does not pool; each patch is a fresh
// make([]byte, ...) left for the garbage collector to reclaim once freed.
type HeapAlloc struct {
	PageSize int
}

// NewHeapAlloc returns a HeapAlloc for the given page size.
func NewHeapAlloc(pageSize int) *HeapAlloc {
	return &HeapAlloc{PageSize: pageSize}
}

// Alloc returns a zeroed, page-sized buffer.
func (h *HeapAlloc) Alloc() ([]byte, error) {
	return make([]byte, h.PageSize), nil
}

// Free is a no-op; the buffer is left for garbage collection.
func (h *HeapAlloc) Free(buf []byte) {}

// CondWaiter implements internal/lock's Waiter with a single process-wide
// condition variable. Since this process holds the buffer's lock word
// itself (no cross-process shared memory involved), one cond shared by
// every address is simpler than a per-address registry and broadcasts
// harmlessly wake every other in-process waiter, who simply re-check
// their own observed value and go back to sleep.
type CondWaiter struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// NewCondWaiter returns a ready-to-use CondWaiter.
func NewCondWaiter() *CondWaiter {
	w := &CondWaiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Wait blocks while *addr == observed, waking on a Wake call, a timer
// firing after timeout, or a spurious wake (the caller re-checks the
// word itself and calls Wait again if still stale). timeout < 0 means
// wait indefinitely; timeout == 0 polls once without blocking.
func (w *CondWaiter) Wait(addr *uint64, observed uint64, timeout time.Duration) bool {
	if atomic.LoadUint64(addr) != observed {
		return true
	}
	if timeout == 0 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if atomic.LoadUint64(addr) != observed {
		return true
	}

	if timeout < 0 {
		w.cond.Wait()
		return true
	}

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer timer.Stop()

	w.cond.Wait()
	return time.Now().Before(deadline)
}

// Wake releases every waiter parked in this process.
func (w *CondWaiter) Wake(addr *uint64) bool {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
	return true
}

// RealClock is the default TIME host callback, delegating to the actual
// wall clock.
func RealClock() clock.Clock {
	return clock.New()
}

// Default composes HeapAlloc, CondWaiter, and the real wall clock into a
// single value whose method set structurally satisfies the root
// package's HostCallbacks interface, for single-process embedding and
// for tests that want a real (not faked) host without wiring the three
// pieces up by hand each time. internal/hostutil never imports the root
// package, so this satisfaction is purely structural: HostCallbacks is
// never named here.
type Default struct {
	alloc  *HeapAlloc
	waiter *CondWaiter
	clock  clock.Clock
}

// NewDefault returns a ready-to-use Default for the given page size.
func NewDefault(pageSize int) *Default {
	return &Default{
		alloc:  NewHeapAlloc(pageSize),
		waiter: NewCondWaiter(),
		clock:  clock.New(),
	}
}

// Malloc returns a zeroed, page-sized buffer; size is expected to equal
// the page size this Default was constructed with.
func (d *Default) Malloc(size int) ([]byte, error) {
	return d.alloc.Alloc()
}

// Free is a no-op; the buffer is left for garbage collection.
func (d *Default) Free(buf []byte) error {
	d.alloc.Free(buf)
	return nil
}

// Wait delegates to the shared CondWaiter.
func (d *Default) Wait(addr *uint64, observed uint64, timeout time.Duration) (bool, error) {
	return d.waiter.Wait(addr, observed, timeout), nil
}

// Wake delegates to the shared CondWaiter.
func (d *Default) Wake(addr *uint64) (bool, error) {
	return d.waiter.Wake(addr), nil
}

// Sync is a no-op: a heap-backed buffer has no backing file to flush. A
// caller layering mmapfile underneath should supply its own Sync instead
// of using Default directly.
func (d *Default) Sync() error {
	return nil
}

// Time delegates to the real wall clock.
func (d *Default) Time() (time.Time, error) {
	return d.clock.Now(), nil
}
