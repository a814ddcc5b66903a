// Package extract implements the structured field extractor (C5): a
// deterministic candidate span finder followed by a typed LLM call bound
// back to canonical text by substring provenance.
package extract

import (
	"strings"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
)

// DefaultCandidateWindow is the default ±W character window around a hint
// match (spec.md §4.5: "W default 800, configurable").
const DefaultCandidateWindow = 800

// Candidate is one deterministic candidate span: a window of text around a
// hint match, with its exact location in canonical text.
type Candidate struct {
	Field     string
	Page      int
	CharStart int
	CharEnd   int
	Window    string
}

// FindCandidates scans doc for every hint in every field_rules entry of
// spec and returns, per field, the windows around each match. Fields with
// no hints configured get no candidates (the extractor then relies on the
// LLM call seeing the full page set for short docs).
func FindCandidates(doc *doctext.DocText, spec *doctype.DocTypeSpec, window int) map[string][]Candidate {
	if window <= 0 {
		window = DefaultCandidateWindow
	}

	candidates := make(map[string][]Candidate)
	for _, field := range spec.AllFields() {
		rule, ok := spec.FieldRules[field]
		if !ok || len(rule.Hints) == 0 {
			continue
		}

		var fieldCandidates []Candidate
		for _, page := range doc.Pages {
			runes := []rune(page.Text)
			lowerRunes := []rune(strings.ToLower(page.Text))

			for _, hint := range rule.Hints {
				hintRunes := []rune(strings.ToLower(hint))
				if len(hintRunes) == 0 {
					continue
				}
				for _, idx := range findAllRuneIndices(lowerRunes, hintRunes) {
					start := idx - window
					if start < 0 {
						start = 0
					}
					end := idx + len(hintRunes) + window
					if end > len(runes) {
						end = len(runes)
					}
					fieldCandidates = append(fieldCandidates, Candidate{
						Field:     field,
						Page:      page.Page,
						CharStart: start,
						CharEnd:   end,
						Window:    string(runes[start:end]),
					})
				}
			}
		}
		if len(fieldCandidates) > 0 {
			candidates[field] = fieldCandidates
		}
	}

	return candidates
}

// NeedsVisionFallback reports whether a required field has no candidates
// and the page text quality is not good (spec.md §4.5).
func NeedsVisionFallback(doc *doctext.DocText, spec *doctype.DocTypeSpec, candidates map[string][]Candidate) bool {
	allGood := true
	for _, p := range doc.Pages {
		if p.Quality.Readability != doctext.ReadabilityGood {
			allGood = false
			break
		}
	}
	if allGood {
		return false
	}
	for _, field := range spec.RequiredFields {
		if len(candidates[field]) == 0 {
			return true
		}
	}
	return false
}

// findAllRuneIndices returns the starting rune index of every occurrence
// of needle in haystack (both already lowercased), naive substring scan.
func findAllRuneIndices(haystack, needle []rune) []int {
	var indices []int
	if len(needle) == 0 || len(haystack) < len(needle) {
		return indices
	}
	for i := 0; i <= len(haystack)-len(needle); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			indices = append(indices, i)
		}
	}
	return indices
}
