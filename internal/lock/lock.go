// Package lock implements the single timeout-based mutual-exclusion word
// that coordinates writers across processes attached to the same buffer,
// including the crash-detection fence required when a prior holder's
// ticket had already expired.
package lock

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cozis/cozyfs/internal/page"
)

// Waiter is the host WAIT/WAKE callback pair this package needs. Wait parks
// the caller while *addr == observed, waking on a Wake call targeting the
// same address, a spontaneous wake, or timeout (timeout < 0 meaning
// infinite); it returns false only on a genuine timeout. Wake releases
// every waiter parked on addr.
type Waiter interface {
	Wait(addr *uint64, observed uint64, timeout time.Duration) bool
	Wake(addr *uint64) bool
}

// Clock is the narrow time source this package needs; it is satisfied both
// by this module's own clock.Clock and by github.com/jacobsa/timeutil.Clock.
type Clock interface {
	Now() time.Time
}

// Ticket is the expiry timestamp (milliseconds since the Unix epoch) a
// successful Acquire stores into the lock word.
type Ticket uint64

// wordPtr returns the address of the lock word inside a root page borrow,
// for use with sync/atomic. The lock word is one of the root page's
// volatile fields: it is never copied between halves by backup/restore.
func wordPtr(root []byte) *uint64 {
	return (*uint64)(unsafe.Pointer(&root[page.RootLockWordOffset]))
}

// Load does a relaxed (non-synchronizing) read of the lock word, one of
// the few buffer reads allowed without holding the lock.
func Load(root []byte) uint64 {
	return atomic.LoadUint64(wordPtr(root))
}

// AcquireResult reports the outcome of a successful Acquire.
type AcquireResult struct {
	Ticket Ticket
	// CrashDetected is true when the previous lock word value was a
	// still-outstanding (non-zero) ticket, meaning the prior holder did not
	// release cleanly: its release store, if any, was never observed, and
	// the buffer may be torn.
	CrashDetected bool
}

// Acquire reads host time, attempts a compare-and-swap from whatever is
// currently in the word (free or expired) to a new future expiry, and
// retries through the host wait primitive while the word is held and not
// yet expired, until waitTimeout elapses.
func Acquire(root []byte, clock Clock, waiter Waiter, waitTimeout, holdTimeout time.Duration) (AcquireResult, bool) {
	deadline := clock.Now().Add(waitTimeout)
	infinite := waitTimeout < 0
	w := wordPtr(root)

	for {
		now := clock.Now()
		nowMs := uint64(now.UnixMilli())
		cur := atomic.LoadUint64(w)

		if cur < nowMs {
			newTicket := nowMs + uint64(holdTimeout.Milliseconds())
			if atomic.CompareAndSwapUint64(w, cur, newTicket) {
				res := AcquireResult{Ticket: Ticket(newTicket), CrashDetected: cur != 0}
				if res.CrashDetected {
					// Fence: a crashed prior holder's release store was
					// never issued, so nothing it "happens-before" can be
					// assumed. The CAS above is already acq-rel; this
					// extra load makes the ordering explicit at the call
					// site, ahead of a restore-from-backup.
					atomic.LoadUint64(w)
				}
				return res, true
			}
			// Lost the race; somebody else's CAS went first. Retry
			// immediately rather than waiting.
			continue
		}

		if !infinite && clock.Now().After(deadline) {
			return AcquireResult{}, false
		}

		var timeout time.Duration
		if infinite {
			timeout = -1
		} else {
			untilExpiry := time.Duration(cur-nowMs) * time.Millisecond
			timeout = min(untilExpiry, time.Until(deadline))
			if timeout < 0 {
				timeout = 0
			}
		}
		waiter.Wait(w, cur, timeout)

		if !infinite && clock.Now().After(deadline) {
			return AcquireResult{}, false
		}
	}
}

// Release is a release-ordered CAS from our ticket back to 0. If the word
// no longer holds our ticket, it already expired and was stolen by another
// acquirer; the caller's session must treat this as ETIMEDOUT rather than
// touching shared state further.
func Release(root []byte, waiter Waiter, held Ticket) bool {
	w := wordPtr(root)
	ok := atomic.CompareAndSwapUint64(w, uint64(held), 0)
	if ok {
		waiter.Wake(w)
	}
	return ok
}

// Refresh extends our ticket to a later expiry, used during idle callbacks
// or long transactions. Failure means our ticket already expired (lost to
// another acquirer); the caller must transition its session to TIMEOUT
// without touching shared state.
func Refresh(root []byte, clock Clock, held Ticket, holdTimeout time.Duration) (Ticket, bool) {
	w := wordPtr(root)
	newTicket := uint64(clock.Now().UnixMilli()) + uint64(holdTimeout.Milliseconds())
	if !atomic.CompareAndSwapUint64(w, uint64(held), newTicket) {
		return 0, false
	}
	return Ticket(newTicket), true
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
