package ingest

import (
	"context"
	"os"

	"github.com/contextbuilder/contextbuilder/doctext"
)

// PlainTextProvider ingests a already-text source (.txt) as a single page.
type PlainTextProvider struct{}

func (p *PlainTextProvider) SupportedFormats() []string { return []string{"txt"} }

func (p *PlainTextProvider) Ingest(ctx context.Context, path string) ([]doctext.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := doctext.NormalizePageText(string(data))
	return []doctext.Page{{
		Text:    text,
		Source:  doctext.SourcePlain,
		Quality: doctext.Quality{Readability: assessReadability(text)},
	}}, nil
}
