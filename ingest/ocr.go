package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/contextbuilder/contextbuilder/doctext"
)

// TesseractProvider shells out to a local tesseract binary as the
// last-resort OCR path when no vision LLM is configured. It operates on
// pre-rendered page images, same contract as VisionProvider.IngestImages.
type TesseractProvider struct {
	cmd string // path to the tesseract binary, defaults to "tesseract"
}

// NewTesseractProvider creates an OCR provider that invokes cmd (or
// "tesseract" on the PATH if cmd is empty).
func NewTesseractProvider(cmd string) *TesseractProvider {
	if cmd == "" {
		cmd = "tesseract"
	}
	return &TesseractProvider{cmd: cmd}
}

func (p *TesseractProvider) SupportedFormats() []string { return nil }

// IngestImages runs tesseract over each page image in turn and collects
// stdout as that page's text.
func (p *TesseractProvider) IngestImages(ctx context.Context, images [][]byte, ext string) ([]doctext.Page, error) {
	pages := make([]doctext.Page, 0, len(images))

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := p.ocrOne(ctx, img, ext)
		if err != nil {
			return nil, err
		}
		text = doctext.NormalizePageText(text)
		pages = append(pages, doctext.Page{
			Text:    text,
			Source:  doctext.SourceTesseract,
			Quality: doctext.Quality{Readability: assessReadability(text)},
		})
	}

	return pages, nil
}

func (p *TesseractProvider) ocrOne(ctx context.Context, img []byte, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "contextbuilder-ocr-*."+ext)
	if err != nil {
		return "", fmt.Errorf("ingest: creating tesseract temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("ingest: writing tesseract temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	// "stdout" tells tesseract to write recognized text to stdout instead
	// of a file alongside the input.
	cmd := exec.CommandContext(ctx, p.cmd, tmp.Name(), "stdout")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ingest: tesseract failed: %w: %s", err, stderr.String())
	}

	return stdout.String(), nil
}
