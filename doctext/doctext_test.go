package doctext

import "testing"

func TestNewNormalizesPageNumbers(t *testing.T) {
	d := New("abc123", []Page{
		{Page: 99, Text: "first", Source: SourcePlain},
		{Page: 1, Text: "second", Source: SourcePlain},
	})
	if d.PageCount != 2 {
		t.Fatalf("page_count = %d, want 2", d.PageCount)
	}
	if d.Pages[0].Page != 1 || d.Pages[1].Page != 2 {
		t.Fatalf("pages not renumbered: %+v", d.Pages)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestSubstringUnicodeOffsets(t *testing.T) {
	// "café" has 4 runes but 5 bytes (é is 2 bytes in UTF-8).
	d := New("doc1", []Page{{Text: "café bar"}})
	got, err := d.Substring(1, 0, 4)
	if err != nil {
		t.Fatalf("Substring: %v", err)
	}
	if got != "café" {
		t.Fatalf("Substring = %q, want %q", got, "café")
	}
}

func TestSubstringOutOfRange(t *testing.T) {
	d := New("doc1", []Page{{Text: "short"}})
	if _, err := d.Substring(1, 0, 100); err == nil {
		t.Fatal("expected error for out-of-range offsets")
	}
	if _, err := d.Substring(2, 0, 1); err == nil {
		t.Fatal("expected error for out-of-range page")
	}
}

func TestIsEmpty(t *testing.T) {
	blank := New("doc1", []Page{{Text: "   \n\t  "}, {Text: ""}})
	if !blank.IsEmpty() {
		t.Fatal("expected IsEmpty() to be true for whitespace-only pages")
	}
	nonBlank := New("doc2", []Page{{Text: "  hello  "}})
	if nonBlank.IsEmpty() {
		t.Fatal("expected IsEmpty() to be false")
	}
}

func TestValidateRejectsMismatchedPageCount(t *testing.T) {
	d := &DocText{DocID: "x", PageCount: 3, Pages: []Page{{Page: 1}}}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for mismatched page_count")
	}
}

func TestStripFormFeeds(t *testing.T) {
	in := "page one\fpage two"
	want := "page onepage two"
	if got := NormalizePageText(in); got != want {
		t.Fatalf("NormalizePageText = %q, want %q", got, want)
	}
}
