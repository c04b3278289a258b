package entity

import (
	"bytes"
	"context"
	"testing"

	"github.com/cozis/cozyfs/internal/page"
)

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, 8)

	off, err := m.CreateEntity(ctx, rootInodeOff(), "f", page.InodeIsRegular, -1)
	if err != nil {
		t.Fatal(err)
	}

	want := []byte("hello, cozyfs")
	n, err := m.WriteFile(ctx, off, want)
	if err != nil || n != len(want) {
		t.Fatalf("WriteFile: n=%d err=%v", n, err)
	}
	if size := m.FileSize(off); size != uint64(len(want)) {
		t.Fatalf("expected file size %d, got %d", len(want), size)
	}

	dst := make([]byte, len(want))
	n, cursor, err := m.ReadFile(ctx, off, dst, 0, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(want) || cursor != uint32(len(want)) {
		t.Fatalf("unexpected read result: n=%d cursor=%d", n, cursor)
	}
	if !bytes.Equal(dst, want) {
		t.Fatalf("round trip mismatch: got %q want %q", dst, want)
	}
}

func TestWriteFileSpansMultipleDataPages(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, 32)

	off, err := m.CreateEntity(ctx, rootInodeOff(), "big", page.InodeIsRegular, -1)
	if err != nil {
		t.Fatal(err)
	}

	want := bytes.Repeat([]byte("x"), 3*page.PayloadSize+17)
	n, err := m.WriteFile(ctx, off, want)
	if err != nil || n != len(want) {
		t.Fatalf("WriteFile: n=%d err=%v", n, err)
	}

	dst := make([]byte, len(want))
	n, _, err = m.ReadFile(ctx, off, dst, 0, true, false)
	if err != nil || n != len(want) {
		t.Fatalf("ReadFile: n=%d err=%v", n, err)
	}
	if !bytes.Equal(dst, want) {
		t.Fatal("round trip mismatch across multiple data pages")
	}
}

func TestReadFileShortReadAtEOF(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, 8)

	off, _ := m.CreateEntity(ctx, rootInodeOff(), "f", page.InodeIsRegular, -1)
	m.WriteFile(ctx, off, []byte("abc"))

	dst := make([]byte, 10)
	n, _, err := m.ReadFile(ctx, off, dst, 0, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected short read of 3 bytes, got %d", n)
	}
}

func TestReadFileConsumeRemovesBytesFromFront(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, 8)

	off, _ := m.CreateEntity(ctx, rootInodeOff(), "f", page.InodeIsRegular, -1)
	m.WriteFile(ctx, off, []byte("abcdef"))

	dst := make([]byte, 3)
	n, cursor, err := m.ReadFile(ctx, off, dst, 0, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || string(dst) != "abc" || cursor != 0 {
		t.Fatalf("unexpected consume result: n=%d dst=%q cursor=%d", n, dst, cursor)
	}
	if size := m.FileSize(off); size != 3 {
		t.Fatalf("expected 3 bytes remaining after consume, got %d", size)
	}

	rest := make([]byte, 3)
	n, _, err = m.ReadFile(ctx, off, rest, 0, true, false)
	if err != nil || n != 3 || string(rest) != "def" {
		t.Fatalf("unexpected remaining content: n=%d rest=%q err=%v", n, rest, err)
	}
}

func TestConsumeAcrossPageBoundaryFreesHeadPage(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, 32)

	off, _ := m.CreateEntity(ctx, rootInodeOff(), "big", page.InodeIsRegular, -1)
	content := bytes.Repeat([]byte("y"), page.PayloadSize+50)
	m.WriteFile(ctx, off, content)

	dst := make([]byte, page.PayloadSize+10)
	n, _, err := m.ReadFile(ctx, off, dst, 0, true, true)
	if err != nil || n != len(dst) {
		t.Fatalf("ReadFile: n=%d err=%v", n, err)
	}

	if size := m.FileSize(off); size != uint64(len(content)-len(dst)) {
		t.Fatalf("expected %d bytes remaining, got %d", len(content)-len(dst), size)
	}

	in := m.ReadInode(off)
	if in.Head == page.None {
		t.Fatal("expected a remaining head page after partial consume")
	}
}

func TestWriteAfterFullConsumeAppendsIntoDrainedTailPage(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, 8)

	off, _ := m.CreateEntity(ctx, rootInodeOff(), "f", page.InodeIsRegular, -1)
	m.WriteFile(ctx, off, []byte("abc"))

	dst := make([]byte, 3)
	if _, _, err := m.ReadFile(ctx, off, dst, 0, true, true); err != nil {
		t.Fatal(err)
	}
	if size := m.FileSize(off); size != 0 {
		t.Fatalf("expected empty file after full consume, got size %d", size)
	}

	if _, err := m.WriteFile(ctx, off, []byte("xyz")); err != nil {
		t.Fatal(err)
	}

	out := make([]byte, 3)
	n, _, err := m.ReadFile(ctx, off, out, 0, true, false)
	if err != nil || n != 3 || string(out) != "xyz" {
		t.Fatalf("unexpected post-consume write/read: n=%d out=%q err=%v", n, out, err)
	}
}
