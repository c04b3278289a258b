package pathutil

import (
	"reflect"
	"testing"
)

func TestParseRoot(t *testing.T) {
	got, err := Parse("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no components for root, got %v", got)
	}
}

func TestParseStripsLeadingSlashAndSplits(t *testing.T) {
	got, err := Parse("/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseAcceptsMissingLeadingSlash(t *testing.T) {
	got, err := Parse("a/b")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestParseRejectsEmptyComponent(t *testing.T) {
	if _, err := Parse("/a//b"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := Parse("/a/"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for trailing slash, got %v", err)
	}
}

func TestParseDropsDotComponents(t *testing.T) {
	got, err := Parse("/x/./y")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("got %v", got)
	}
}

func TestParseDotDotPopsStack(t *testing.T) {
	got, err := Parse("/x/y/..")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("got %v", got)
	}
}

func TestParseDotDotPastEmptyFails(t *testing.T) {
	if _, err := Parse("/.."); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := Parse("/x/../.."); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseRejectsTooManyComponents(t *testing.T) {
	path := ""
	for i := 0; i < MaxComponents+1; i++ {
		path += "/a"
	}
	if _, err := Parse(path); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseAtMaxComponentsSucceeds(t *testing.T) {
	path := ""
	for i := 0; i < MaxComponents; i++ {
		path += "/a"
	}
	got, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxComponents {
		t.Fatalf("expected %d components, got %d", MaxComponents, len(got))
	}
}

func TestSplitReturnsParentAndName(t *testing.T) {
	parent, name, err := Split("/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(parent, []string{"a", "b"}) || name != "c" {
		t.Fatalf("got parent=%v name=%q", parent, name)
	}
}

func TestSplitRejectsRoot(t *testing.T) {
	if _, _, err := Split("/"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
