package extract

import (
	"strings"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
)

// provenanceProximityLimit is the maximum character distance (spec.md
// §4.5) between a bound quote and its originating hint-match candidate for
// the match to count as strong provenance rather than provenance_weak.
const provenanceProximityLimit = 200

// Provenance records where in canonical text a value's supporting quote
// was found.
type Provenance struct {
	Page      int    `json:"page"`
	CharStart int    `json:"char_start"`
	CharEnd   int     `json:"char_end"`
	Quote     string `json:"quote"`
}

// bindQuote finds the best occurrence of quote in doc, preferring an
// occurrence close to one of the field's candidate windows. It returns the
// matched Provenance and whether the match counts as strong (within
// provenanceProximityLimit chars of a candidate window).
//
// Tie-break (spec.md §4.5): among occurrences equally close to a
// candidate, prefer the earliest page, then the earliest offset.
func bindQuote(doc *doctext.DocText, quote string, fieldCandidates []Candidate) (Provenance, bool) {
	normQuote := doctype.NormalizeForMatch(quote)
	if strings.TrimSpace(normQuote) == "" {
		return Provenance{}, false
	}

	var best Provenance
	bestDistance := -1
	found := false

	for _, page := range doc.Pages {
		occurrences := findAllOccurrences(page.Text, quote)
		for _, occ := range occurrences {
			distance := distanceToNearestCandidate(page.Page, occ.start, fieldCandidates)
			if !found || distance < bestDistance ||
				(distance == bestDistance && isEarlier(page.Page, occ.start, best.Page, best.CharStart)) {
				found = true
				bestDistance = distance
				best = Provenance{Page: page.Page, CharStart: occ.start, CharEnd: occ.end, Quote: occ.text}
			}
		}
	}

	if !found {
		return Provenance{}, false
	}
	return best, bestDistance >= 0 && bestDistance <= provenanceProximityLimit
}

func isEarlier(page, offset, otherPage, otherOffset int) bool {
	if page != otherPage {
		return page < otherPage
	}
	return offset < otherOffset
}

type occurrence struct {
	start int
	end   int
	text  string
}

// findAllOccurrences performs a normalization-tolerant substring search:
// it matches quote against page text after both are run through
// NormalizeForMatch, so differences in whitespace or hyphen style don't
// cause a provenance binding to fail, but still returns exact-text offsets
// from the original page.
func findAllOccurrences(pageText, quote string) []occurrence {
	runes := []rune(pageText)
	normQuote := doctype.NormalizeForMatch(quote)
	if normQuote == "" {
		return nil
	}
	quoteLen := len([]rune(quote))
	if quoteLen == 0 || quoteLen > len(runes) {
		return nil
	}

	var found []occurrence
	// Exact (case-insensitive) substring search first — cheapest and most
	// common case.
	lower := strings.ToLower(pageText)
	lowerQuote := strings.ToLower(quote)
	lowerRunes := []rune(lower)
	quoteRunes := []rune(lowerQuote)
	for i := 0; i+len(quoteRunes) <= len(lowerRunes); i++ {
		if runesEqual(lowerRunes[i:i+len(quoteRunes)], quoteRunes) {
			found = append(found, occurrence{start: i, end: i + quoteLen, text: string(runes[i : i+quoteLen])})
		}
	}
	if len(found) > 0 {
		return found
	}

	// Fall back to a normalized sliding-window search for punctuation or
	// whitespace variants the exact pass missed.
	windowSizes := []int{quoteLen, quoteLen + 2, quoteLen - 2}
	for _, size := range windowSizes {
		if size <= 0 || size > len(runes) {
			continue
		}
		for i := 0; i+size <= len(runes); i++ {
			window := string(runes[i : i+size])
			if doctype.NormalizeForMatch(window) == normQuote {
				found = append(found, occurrence{start: i, end: i + size, text: window})
			}
		}
		if len(found) > 0 {
			return found
		}
	}

	return nil
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func distanceToNearestCandidate(page, offset int, candidates []Candidate) int {
	if len(candidates) == 0 {
		return provenanceProximityLimit + 1
	}
	best := -1
	for _, c := range candidates {
		if c.Page != page {
			continue
		}
		d := distanceToRange(offset, c.CharStart, c.CharEnd)
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return provenanceProximityLimit + 1
	}
	return best
}

func distanceToRange(offset, start, end int) int {
	if offset < start {
		return start - offset
	}
	if offset > end {
		return offset - end
	}
	return 0
}
