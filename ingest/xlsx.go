package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/contextbuilder/contextbuilder/doctext"
)

// XLSXProvider treats each worksheet as one canonical page, rendering rows
// as a pipe-delimited table so downstream classification/extraction can
// still match labeled cell values by substring.
type XLSXProvider struct{}

func (p *XLSXProvider) SupportedFormats() []string { return []string{"xlsx", "xls"} }

func (p *XLSXProvider) Ingest(ctx context.Context, path string) ([]doctext.Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]doctext.Page, 0, len(sheets))

	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		var content strings.Builder
		content.WriteString(sheet + "\n")
		for _, row := range rows {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}

		text := doctext.NormalizePageText(content.String())
		pages = append(pages, doctext.Page{
			Text:    text,
			Source:  doctext.SourcePlain,
			Quality: doctext.Quality{Readability: assessReadability(text)},
		})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("ingest: no data found in XLSX")
	}
	return pages, nil
}
