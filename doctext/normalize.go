package doctext

import "strings"

// StripFormFeeds removes form-feed characters (U+000C), which PDF/OCR
// producers sometimes insert as page-break markers that have no place in
// canonical per-page text (spec.md §4.2: "strip form-feeds").
func StripFormFeeds(s string) string {
	if !strings.ContainsRune(s, '\f') {
		return s
	}
	return strings.ReplaceAll(s, "\f", "")
}

// NormalizePageText is the single place ingestion providers run page text
// through before it becomes part of a doc_text_v1 artifact.
func NormalizePageText(s string) string {
	return StripFormFeeds(s)
}
