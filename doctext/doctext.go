// Package doctext implements the canonical per-document text representation
// (doc_text_v1, spec.md §3) produced by ingestion providers (C2) and
// consumed by classification (C4) and extraction (C5). A pages.json file is
// immutable once written: a refresh writes a new file under a new run and
// the doc's default pointer is updated atomically, never mutated in place.
package doctext

import "fmt"

// SchemaVersion is the schema_version value stamped into every doc_text_v1
// artifact written by this package.
const SchemaVersion = "doc_text_v1"

// Source enumerates how a page's text was produced.
type Source string

const (
	SourceDocumentIntelligence Source = "di"
	SourceVisionOCR            Source = "vision_ocr"
	SourceTesseract            Source = "tesseract"
	SourcePlain                Source = "plain"
)

// Readability enumerates the perceived quality of a page's extracted text.
type Readability string

const (
	ReadabilityGood Readability = "good"
	ReadabilityWarn Readability = "warn"
	ReadabilityBad  Readability = "bad"
)

// Quality describes a page's text extraction quality.
type Quality struct {
	Readability Readability `json:"readability"`
}

// Page is one page of canonical text, 1-based (spec.md §3).
type Page struct {
	Page    int     `json:"page"`
	Text    string  `json:"text"`
	Source  Source  `json:"source"`
	Quality Quality `json:"quality"`
}

// DocText is the doc_text_v1 artifact: one stable per-document text
// representation regardless of the producing ingestion provider.
type DocText struct {
	SchemaVersion string `json:"schema_version"`
	DocID         string `json:"doc_id"`
	PageCount     int    `json:"page_count"`
	Pages         []Page `json:"pages"`
}

// New builds a DocText from pages, normalizing page numbers to be 1-based
// and stamping the schema version and page count (spec.md §4.2: "Providers
// must normalize pages to 1-based indices").
func New(docID string, pages []Page) *DocText {
	for i := range pages {
		pages[i].Page = i + 1
	}
	return &DocText{
		SchemaVersion: SchemaVersion,
		DocID:         docID,
		PageCount:     len(pages),
		Pages:         pages,
	}
}

// Validate checks the basic structural invariants of a DocText: non-empty
// doc_id, matching page_count, and 1-based contiguous page numbers.
func (d *DocText) Validate() error {
	if d.DocID == "" {
		return fmt.Errorf("doctext: doc_id is empty")
	}
	if d.PageCount != len(d.Pages) {
		return fmt.Errorf("doctext: page_count %d does not match %d pages", d.PageCount, len(d.Pages))
	}
	for i, p := range d.Pages {
		if p.Page != i+1 {
			return fmt.Errorf("doctext: page at index %d has page number %d, want %d", i, p.Page, i+1)
		}
	}
	return nil
}

// PageText returns the text of the given 1-based page number, or an error
// if the page does not exist.
func (d *DocText) PageText(page int) (string, error) {
	if page < 1 || page > len(d.Pages) {
		return "", fmt.Errorf("doctext: page %d out of range [1,%d]", page, len(d.Pages))
	}
	return d.Pages[page-1].Text, nil
}

// Substring returns the rune-indexed substring of a page's text at
// [charStart, charEnd). Offsets are Unicode code-point indices (spec.md
// §4.1: "Offsets are byte-agnostic, defined on Unicode code points").
func (d *DocText) Substring(page, charStart, charEnd int) (string, error) {
	text, err := d.PageText(page)
	if err != nil {
		return "", err
	}
	runes := []rune(text)
	if charStart < 0 || charEnd > len(runes) || charStart > charEnd {
		return "", fmt.Errorf("doctext: offsets [%d,%d) out of range for page %d (len %d)", charStart, charEnd, page, len(runes))
	}
	return string(runes[charStart:charEnd]), nil
}

// RuneLen returns the number of Unicode code points in a page's text.
func (d *DocText) RuneLen(page int) (int, error) {
	text, err := d.PageText(page)
	if err != nil {
		return 0, err
	}
	return len([]rune(text)), nil
}

// IsEmpty reports whether the document has no usable text at all — every
// page is empty after trimming. Used by classification's "content empty or
// garbled" rule (spec.md §4.4).
func (d *DocText) IsEmpty() bool {
	for _, p := range d.Pages {
		for _, r := range p.Text {
			if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
				return false
			}
		}
	}
	return true
}
