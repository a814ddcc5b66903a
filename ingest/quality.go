package ingest

import (
	"strings"
	"unicode"

	"github.com/contextbuilder/contextbuilder/doctext"
)

// assessReadability classifies a page's extracted text quality so that
// classification (C4) and the quality gate (C6) can treat "we extracted
// some characters" differently from "we extracted legible prose". A page
// that is empty, or whose characters are mostly non-printable/replacement
// noise (common on PDFs with unsupported glyph encodings), reads as bad;
// short or sparse pages read as a warning; everything else is good.
func assessReadability(text string) doctext.Readability {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return doctext.ReadabilityBad
	}

	runes := []rune(trimmed)
	var printable, replacement int
	for _, r := range runes {
		if r == '�' || r == '' {
			replacement++
			continue
		}
		if unicode.IsPrint(r) {
			printable++
		}
	}

	noiseRatio := float64(replacement) / float64(len(runes))
	if noiseRatio > 0.1 {
		return doctext.ReadabilityBad
	}

	printableRatio := float64(printable) / float64(len(runes))
	switch {
	case printableRatio < 0.5:
		return doctext.ReadabilityBad
	case printableRatio < 0.9 || len(runes) < 20:
		return doctext.ReadabilityWarn
	default:
		return doctext.ReadabilityGood
	}
}
