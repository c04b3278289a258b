package page

// Kind identifies the role of a page.
type Kind uint8

const (
	KindFree Kind = iota
	KindRoot
	KindDirectory
	KindFileData
	KindHandleOverflow
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindRoot:
		return "root"
	case KindDirectory:
		return "directory"
	case KindFileData:
		return "file-data"
	case KindHandleOverflow:
		return "handle-overflow"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Common chained-page header: every page kind except the root carries this
// at byte 0, giving a doubly (or, for free pages, singly) linked chain of
// same-kind pages. Root pages use only the Kind byte of this layout; their
// Prev/Next fields are unused.
const headerSize = 12

const (
	offKind = 0
	offPrev = 4
	offNext = 8
)

// KindOf reads the page kind from the first byte of any page.
func KindOf(p []byte) Kind {
	return Kind(p[offKind])
}

// SetKind writes the page kind into the first byte of any page.
func SetKind(p []byte, k Kind) {
	p[offKind] = byte(k)
}

// Prev returns the previous-page offset of a chained page (sentinel if head).
func Prev(p []byte) Offset { return getOffset(p, offPrev) }

// SetPrev sets the previous-page offset of a chained page.
func SetPrev(p []byte, o Offset) { putOffset(p, offPrev, o) }

// Next returns the next-page offset of a chained page (sentinel if tail).
func Next(p []byte) Offset { return getOffset(p, offNext) }

// SetNext sets the next-page offset of a chained page.
func SetNext(p []byte, o Offset) { putOffset(p, offNext, o) }

// InitChainPage zeroes a fresh page and stamps its kind with both links set
// to the sentinel, ready to be linked into (or used as the sole member of) a
// chain.
func InitChainPage(p []byte, k Kind) {
	for i := range p {
		p[i] = 0
	}
	SetKind(p, k)
	SetPrev(p, None)
	SetNext(p, None)
}
