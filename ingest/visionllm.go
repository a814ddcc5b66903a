package ingest

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/llm"
)

// VisionProvider extracts text from page images using a vision-capable LLM.
// It is the fallback for scanned pages where the PDF's native text layer is
// missing or unreadable: a caller that has rendered the pages to images
// passes them here through Engine.ResolveVisionFallback. The orchestrator
// does not call it.
type VisionProvider struct {
	client llm.VisionProvider
}

// NewVisionProvider wraps a vision-capable LLM provider.
func NewVisionProvider(client llm.VisionProvider) *VisionProvider {
	return &VisionProvider{client: client}
}

func (p *VisionProvider) SupportedFormats() []string { return nil }

// IngestImages extracts text from pre-rendered page images (one image per
// page, in order). Unlike Provider.Ingest, this does not take a file path:
// rasterizing scanned pages is left to the caller.
func (p *VisionProvider) IngestImages(ctx context.Context, images [][]byte, mimeType string) ([]doctext.Page, error) {
	pages := make([]doctext.Page, 0, len(images))

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b64 := base64.StdEncoding.EncodeToString(img)
		resp, err := p.client.ChatWithImages(ctx, llm.VisionChatRequest{
			Messages: []llm.VisionMessage{
				{
					Role: "user",
					Content: []llm.ContentPart{
						{
							Type: "text",
							Text: "Transcribe all text visible on this page image exactly as written, " +
								"preserving reading order. Do not summarize, translate, or omit any text. " +
								"If the page contains a table, render it with one row per line.",
						},
						{
							Type:     "image_url",
							ImageURL: &llm.ImageURL{URL: "data:" + mimeType + ";base64," + b64},
						},
					},
				},
			},
			MaxTokens: 4096,
		})
		if err != nil {
			return nil, fmt.Errorf("ingest: vision extraction failed: %w", err)
		}

		text := doctext.NormalizePageText(resp.Content)
		pages = append(pages, doctext.Page{
			Text:    text,
			Source:  doctext.SourceVisionOCR,
			Quality: doctext.Quality{Readability: assessReadability(text)},
		})
	}

	return pages, nil
}
