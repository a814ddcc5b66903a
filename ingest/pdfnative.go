package ingest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/contextbuilder/contextbuilder/doctext"
)

// PDFProvider extracts canonical text directly from a PDF's content
// streams, without rendering. It is the default provider for born-digital
// PDFs. Scanned PDFs with no extractable text layer yield empty or
// unreadable pages; the orchestrator does not pass them on to the vision
// or OCR providers.
type PDFProvider struct{}

func (p *PDFProvider) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFProvider) Ingest(ctx context.Context, path string) ([]doctext.Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]doctext.Page, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, doctext.Page{
				Text:    "",
				Source:  doctext.SourcePlain,
				Quality: doctext.Quality{Readability: doctext.ReadabilityBad},
			})
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			text = ""
		}
		text = doctext.NormalizePageText(text)

		pages = append(pages, doctext.Page{
			Text:    text,
			Source:  doctext.SourcePlain,
			Quality: doctext.Quality{Readability: assessReadability(text)},
		})
	}

	return pages, nil
}

// extractPageTextOrdered extracts text from a PDF page sorted by visual
// position (top-to-bottom). The content stream's object order can differ
// from visual layout, so elements are grouped into lines by Y proximity
// and the lines are then sorted top-to-bottom.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}
