package entity

import (
	"context"

	"github.com/cozis/cozyfs/internal/page"
)

// FileSize returns the logical byte length of a regular file's content
// chain: the sum, across every page from Head to Tail, of that page's
// valid byte range (HeadCursor..PayloadSize for the head page, 0..TailEnd
// for the tail page, the full payload for everything in between).
func (m *Manager) FileSize(inodeOff page.Offset) uint64 {
	in := m.ReadInode(inodeOff)
	if in.Head == page.None {
		return 0
	}
	var total uint64
	for p := in.Head; p != page.None; {
		buf := m.tx.Read(p)
		lo, hi := 0, page.PayloadSize
		if p == in.Head {
			lo = int(in.HeadCursor)
		}
		if p == in.Tail {
			hi = int(in.TailEnd)
		}
		if hi > lo {
			total += uint64(hi - lo)
		}
		p = page.Next(buf)
	}
	return total
}

// ReadFile copies bytes from inodeOff's content chain into dst, starting
// at cursor bytes past the current front of the file (byte 0 of cursor
// space is the first not-yet-consumed byte, not the page's physical
// start). restart forces the read to start from the front regardless of
// cursor. consume additionally drops every byte this call returns from
// the front of the file, so a later read at cursor 0 never sees them
// again; it implies restart, since "the front" is only a meaningful
// concept starting from byte zero. Returns the number of bytes copied and
// the cursor value the caller's handle should record for its next call.
func (m *Manager) ReadFile(ctx context.Context, inodeOff page.Offset, dst []byte, cursor uint32, restart, consume bool) (n int, newCursor uint32, err error) {
	start := cursor
	if restart || consume {
		start = 0
	}

	in := m.ReadInode(inodeOff)
	n = m.copyFileBytes(in, dst, start)
	newCursor = start + uint32(n)

	if consume && n > 0 {
		if err = m.consumeFileBytes(ctx, inodeOff, uint32(n)); err != nil {
			return 0, 0, err
		}
		newCursor = 0
	}
	return n, newCursor, nil
}

// copyFileBytes copies min(len(dst), available-start) bytes from in's
// content chain, beginning start bytes past the current front, into dst.
func (m *Manager) copyFileBytes(in page.Inode, dst []byte, start uint32) int {
	if in.Head == page.None {
		return 0
	}
	skip := uint64(start)
	copied := 0
	for p := in.Head; p != page.None && copied < len(dst); {
		buf := m.tx.Read(p)
		payload := page.FileDataPayload(buf)
		lo, hi := 0, len(payload)
		if p == in.Head {
			lo = int(in.HeadCursor)
		}
		if p == in.Tail {
			hi = int(in.TailEnd)
		}
		avail := payload[lo:hi]

		if skip > 0 {
			if skip >= uint64(len(avail)) {
				skip -= uint64(len(avail))
				p = page.Next(buf)
				continue
			}
			avail = avail[skip:]
			skip = 0
		}

		k := copy(dst[copied:], avail)
		copied += k
		if k < len(avail) {
			break
		}
		p = page.Next(buf)
	}
	return copied
}

// consumeFileBytes advances in.HeadCursor (and frees pages that become
// fully consumed) by n bytes, persisting the updated inode record. The
// page holding the file's tail is never freed here, even if it becomes
// empty, so a later Write still has somewhere to append.
func (m *Manager) consumeFileBytes(ctx context.Context, inodeOff page.Offset, n uint32) error {
	in := m.ReadInode(inodeOff)
	remaining := n
	for remaining > 0 && in.Head != page.None {
		buf := m.tx.Read(in.Head)
		hi := page.PayloadSize
		if in.Head == in.Tail {
			hi = int(in.TailEnd)
		}
		avail := uint32(hi) - in.HeadCursor

		if remaining < avail {
			in.HeadCursor += remaining
			remaining = 0
			break
		}
		remaining -= avail

		if in.Head == in.Tail {
			in.HeadCursor = uint32(hi)
			break
		}

		next := page.Next(buf)
		if err := m.FreePage(ctx, in.Head); err != nil {
			return err
		}
		if next != page.None {
			nextBuf, err := m.tx.Writable(ctx, next)
			if err != nil {
				return err
			}
			page.SetPrev(nextBuf, page.None)
		}
		in.Head = next
		in.HeadCursor = 0
	}
	return m.writeInode(ctx, inodeOff, in)
}

// WriteFile appends all of src to inodeOff's content chain, allocating
// and chaining fresh file-data pages as the current tail fills. Cursor
// semantics for write are independent of any handle's read cursor: writes
// always land at the file's logical tail.
func (m *Manager) WriteFile(ctx context.Context, inodeOff page.Offset, src []byte) (int, error) {
	in := m.ReadInode(inodeOff)
	written := 0

	for written < len(src) {
		if in.Head == page.None {
			off, err := m.AllocPage(ctx)
			if err != nil {
				return written, err
			}
			buf, err := m.tx.Writable(ctx, off)
			if err != nil {
				return written, err
			}
			page.InitFileDataPage(buf)
			in.Head, in.Tail, in.HeadCursor, in.TailEnd = off, off, 0, 0
		}

		tailBuf, err := m.tx.Writable(ctx, in.Tail)
		if err != nil {
			return written, err
		}
		payload := page.FileDataPayload(tailBuf)
		if int(in.TailEnd) == len(payload) {
			newOff, err := m.AllocPage(ctx)
			if err != nil {
				return written, err
			}
			newBuf, err := m.tx.Writable(ctx, newOff)
			if err != nil {
				return written, err
			}
			page.InitFileDataPage(newBuf)
			page.SetNext(tailBuf, newOff)
			page.SetPrev(newBuf, in.Tail)
			in.Tail = newOff
			in.TailEnd = 0
			continue
		}

		k := copy(payload[in.TailEnd:], src[written:])
		in.TailEnd += uint32(k)
		written += k
	}

	return written, m.writeInode(ctx, inodeOff, in)
}
