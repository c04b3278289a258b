// Package page implements the position-independent, fixed-size page layout
// that backs every persistent structure in a CozyFS buffer: the root page,
// directory pages, file-data pages, handle-overflow pages, user pages, and
// free pages. Every accessor here works directly against a byte slice
// (a "page borrow") so the same code operates identically whether the slice
// points into the attached buffer or into a session's copy-on-write patch.
package page

import "encoding/binary"

// Size is the fixed page size in bytes.
const Size = 4096

// Offset is a 32-bit byte offset from the base of the attached buffer. It is
// the only form of inter-page reference in persistent state; no host
// addresses ever appear on disk or in shared memory.
type Offset uint32

// None is the sentinel offset meaning "no page" / "no link".
const None Offset = 0xFFFFFFFF

// Valid reports whether o is not the sentinel.
func (o Offset) Valid() bool {
	return o != None
}

// Aligned reports whether o sits on a page boundary, as every offset
// naming a page must.
func (o Offset) Aligned() bool {
	return uint32(o)%Size == 0
}

// Base returns the page-aligned offset containing o.
func (o Offset) Base() Offset {
	return Offset(uint32(o) - uint32(o)%Size)
}

func getU32(b []byte, at int) uint32 { return binary.LittleEndian.Uint32(b[at:]) }
func putU32(b []byte, at int, v uint32) { binary.LittleEndian.PutUint32(b[at:], v) }

func getU64(b []byte, at int) uint64 { return binary.LittleEndian.Uint64(b[at:]) }
func putU64(b []byte, at int, v uint64) { binary.LittleEndian.PutUint64(b[at:], v) }

func getI32(b []byte, at int) int32 { return int32(getU32(b, at)) }
func putI32(b []byte, at int, v int32) { putU32(b, at, uint32(v)) }

func getI64(b []byte, at int) int64 { return int64(getU64(b, at)) }
func putI64(b []byte, at int, v int64) { putU64(b, at, uint64(v)) }

func getOffset(b []byte, at int) Offset { return Offset(getU32(b, at)) }
func putOffset(b []byte, at int, v Offset) { putU32(b, at, uint32(v)) }

// PutName writes s into a fixed dst slot, NUL-padding or truncating. It
// never writes more than len(dst) bytes.
func PutName(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := copy(dst, s)
	_ = n
}

// GetName reads a NUL-terminated (or fully-occupied) name out of src.
func GetName(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}
