package page

import "testing"

func TestOffsetSentinel(t *testing.T) {
	if None.Valid() {
		t.Fatal("sentinel offset must not be valid")
	}
	if !Offset(0).Valid() {
		t.Fatal("offset 0 (the root page) must be valid")
	}
}

func TestOffsetBase(t *testing.T) {
	cases := []struct {
		in, want Offset
	}{
		{0, 0},
		{1, 0},
		{Size - 1, 0},
		{Size, Size},
		{Size + 17, Size},
	}
	for _, c := range cases {
		if got := c.in.Base(); got != c.want {
			t.Errorf("Offset(%d).Base() = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestInodeRoundTrip(t *testing.T) {
	buf := make([]byte, InodeSize)
	in := Inode{
		RefCount:   3,
		Flags:      InodeIsRegular,
		Head:       Size,
		Tail:       2 * Size,
		HeadCursor: 12,
		TailEnd:    99,
		OwnerUID:   -1,
	}
	EncodeInode(buf, 0, in)
	got := DecodeInode(buf, 0)
	if got != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, in)
	}
}

func TestLinkRoundTripAndEmpty(t *testing.T) {
	buf := make([]byte, LinkSize)
	ClearLink(buf, 0)
	if !LinkEmpty(buf, 0) {
		t.Fatal("freshly cleared link slot should read as empty")
	}

	l := Link{Name: "hello.txt", InodeOffset: 3 * Size}
	EncodeLink(buf, 0, l)
	if LinkEmpty(buf, 0) {
		t.Fatal("populated link slot should not read as empty")
	}
	got := DecodeLink(buf, 0)
	if got != l {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, l)
	}
}

func TestLinkNameTooLongPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for oversized name")
		}
	}()
	buf := make([]byte, LinkSize)
	name := make([]byte, MaxNameLen+1)
	EncodeLink(buf, 0, Link{Name: string(name)})
}

func TestHandleSlotRoundTrip(t *testing.T) {
	buf := make([]byte, HandleSlotSize)
	hs := HandleSlot{Used: true, Generation: 0xBEEF, InodeOff: 5 * Size, Cursor: 123456}
	EncodeHandleSlot(buf, 0, hs)
	got := DecodeHandleSlot(buf, 0)
	if got != hs {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, hs)
	}
}

func TestNextGenerationSkipsReservedValues(t *testing.T) {
	if g := NextGeneration(0); g == 0 {
		t.Fatal("generation must never wrap to 0")
	}
	if g := NextGeneration(0xFFFE); g == 0xFFFF {
		t.Fatal("generation must never land on the reserved all-ones value")
	}
}

func TestUserRoundTrip(t *testing.T) {
	buf := make([]byte, UserRecordSize)
	u := User{AccountID: 42, Name: "alice"}
	EncodeUser(buf, 0, u)
	got := DecodeUser(buf, 0)
	if got != u {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, u)
	}
}

func TestInitRootPageLayout(t *testing.T) {
	root := make([]byte, Size)
	InitRootPage(root, 16)

	if KindOf(root) != KindRoot {
		t.Fatal("expected root kind")
	}
	if LockWord(root) != 0 {
		t.Fatal("fresh lock word must be 0 (free)")
	}
	if BackupFlag(root) != -1 {
		t.Fatal("fresh backup flag must be -1 (no backup mode)")
	}
	if TotalPages(root) != 16 {
		t.Fatal("total pages not recorded")
	}
	if InUsePages(root) != 1 {
		t.Fatal("root page itself should count as one page in use")
	}
	ri := RootInode(root)
	if !ri.IsDir() || ri.RefCount != 1 {
		t.Fatalf("unexpected root inode: %+v", ri)
	}
	for i := 0; i < InlineHandleCount; i++ {
		hs := DecodeHandleSlot(root, RootInlineHandleSlot(i))
		if hs.Used {
			t.Fatalf("slot %d should start unused", i)
		}
	}
}

func TestInitDirPageAllSlotsFree(t *testing.T) {
	p := make([]byte, Size)
	InitDirPage(p)
	if KindOf(p) != KindDirectory {
		t.Fatal("expected directory kind")
	}
	for i := 0; i < DirInodePoolLen; i++ {
		if !DecodeInode(p, DirInodeSlot(i)).Free() {
			t.Fatalf("inode slot %d should start free", i)
		}
	}
	for i := 0; i < DirLinksLen; i++ {
		if !LinkEmpty(p, DirLinkSlot(i)) {
			t.Fatalf("link slot %d should start empty", i)
		}
	}
}

func TestRootVolatileRegionStaysWithinPage(t *testing.T) {
	if RootVolatileOffset+RootVolatileLength > rootHandleArray {
		t.Fatal("volatile region must not overlap the generation/free-list fields")
	}
}
