// Package backup implements the dual-region atomic backup mechanism: the
// buffer may be halved into an active region and a point-in-time snapshot,
// selected by a single atomic flag, so that a crashed lock holder's
// possibly-torn active half can be recovered from the other.
package backup

import (
	"errors"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cozis/cozyfs/internal/page"
)

// ErrNoBackupMode is returned by Restore when backup mode is disabled.
var ErrNoBackupMode = errors.New("backup: no backup mode enabled")

// Clock is the narrow time source this package needs.
type Clock interface {
	Now() time.Time
}

// flagPtr returns the address of the backup-flag field. This field (along
// with the lock word and last-backup-time) physically exists only once, at
// a fixed location at the very start of the buffer, regardless of which
// half is logically active -- otherwise a reader could not find it without
// already knowing which half to trust.
func flagPtr(buf []byte) *int32 {
	return (*int32)(unsafe.Pointer(&buf[page.RootBackupFlagOffset]))
}

// VolatileRoot returns the fixed, always-valid page holding the lock word,
// backup flag and last-backup-time, independent of which half is active.
func VolatileRoot(buf []byte) []byte {
	return buf[:page.Size]
}

// Flag does a relaxed read of the backup-flag field, one of the two fields
// allowed to be read without holding the lock.
func Flag(buf []byte) int32 {
	return atomic.LoadInt32(flagPtr(buf))
}

// ActiveOffset returns the buffer offset of the currently active half's
// root page, given the half size (0 when backup mode is disabled, in which
// case the whole buffer is one region starting at offset 0).
func ActiveOffset(buf []byte, halfSize int) int {
	flag := Flag(buf)
	if flag <= 0 {
		return 0
	}
	return halfSize
}

// InactiveOffset returns the buffer offset of the current snapshot half's
// root page. Only meaningful when backup mode is enabled.
func InactiveOffset(buf []byte, halfSize int) int {
	return halfSize - ActiveOffset(buf, halfSize)
}

// copyNonVolatile copies one half's bytes onto another, skipping the
// volatile byte range within the destination's root page so that a
// cross-half copy never disturbs the lock word / backup flag / last-backup
// time living at that range.
func copyNonVolatile(buf []byte, halfSize, dstOff, srcOff int) {
	copy(buf[dstOff:dstOff+page.RootVolatileOffset], buf[srcOff:srcOff+page.RootVolatileOffset])
	tailStart := page.RootVolatileOffset + page.RootVolatileLength
	copy(buf[dstOff+tailStart:dstOff+halfSize], buf[srcOff+tailStart:srcOff+halfSize])
}

// Perform must be called while the caller holds the lock, after a
// successful mutation. If backup mode is off, or the throttle interval has
// not yet elapsed since the last successful backup, it is a no-op and
// returns false.
func Perform(buf []byte, halfSize int, clock Clock, minInterval time.Duration) bool {
	vol := VolatileRoot(buf)
	flag := Flag(buf)
	if flag == -1 {
		return false
	}

	nowMs := clock.Now().UnixMilli()
	last := page.LastBackupTimeMillis(vol)
	if last != 0 && time.Duration(nowMs-last)*time.Millisecond < minInterval {
		return false
	}

	oldOff := int(flag) * halfSize
	newFlag := int32(1) - flag
	newOff := int(newFlag) * halfSize

	// Flip first (release ordering): any attacher that now observes the
	// new flag is serialized behind the lock, so there is no reader that
	// can see a half mid-copy.
	atomic.StoreInt32(flagPtr(buf), newFlag)

	copyNonVolatile(buf, halfSize, newOff, oldOff)
	page.SetLastBackupTimeMillis(vol, nowMs)
	return true
}

// Restore must be called immediately after Acquire reports a crashed prior
// holder. It copies the inactive (last known-good) half's non-volatile
// bytes over the active (possibly torn) half, preserving the volatile
// fields.
func Restore(buf []byte, halfSize int) error {
	flag := Flag(buf)
	if flag == -1 {
		return ErrNoBackupMode
	}
	activeOff := int(flag) * halfSize
	inactiveOff := halfSize - activeOff
	copyNonVolatile(buf, halfSize, activeOff, inactiveOff)
	return nil
}
