package doctype

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeLLMText folds Unicode characters LLMs commonly substitute for
// their ASCII equivalents (non-breaking spaces, typographic hyphens,
// zero-width joiners) so that substring/provenance matching against
// canonical page text is not defeated by cosmetic differences. This is the
// single normalization both provenance binding (extract/) and ground-truth
// comparison (metrics/) run text through before comparing.
func normalizeLLMText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '‐' || r == '‑' || r == '‒' || r == '–' || r == '—':
			b.WriteByte('-')
		case r == '​' || r == '‌' || r == '‍' || r == '﻿':
			// strip zero-width characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeForMatch is normalizeLLMText exported for use outside this
// package (extract/provenance.go, metrics/).
func NormalizeForMatch(s string) string {
	return normalizeLLMText(s)
}

// foldAccents strips combining diacritical marks via Unicode NFD
// decomposition, so "café" and "SECCIÓN" compare equal to "cafe" and
// "SECCION" — needed because the same month/identifier can appear
// accented or not depending on OCR/LLM output.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// Normalize applies the named normalizer to a raw extracted value. name
// must be one the doctype catalog loader already validated against
// validNormalizers; an unrecognized name is a programming error, not a
// runtime condition to recover from gracefully, so it returns the input
// unchanged rather than erroring (the field validator catches bad output).
func Normalize(name, value string) string {
	switch name {
	case "", "none":
		return value
	case "trim":
		return strings.TrimSpace(value)
	case "uppercase_trim":
		return strings.ToUpper(strings.TrimSpace(value))
	case "digits_only":
		return digitsOnly(value)
	case "currency_to_decimal":
		return currencyToDecimal(value)
	case "date_to_iso":
		iso, err := DateToISO(value)
		if err != nil {
			return strings.TrimSpace(value)
		}
		return iso
	default:
		return value
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var currencyCleanRe = regexp.MustCompile(`[^\d,.\-]`)

// currencyToDecimal strips currency symbols/thousands separators and
// returns a plain decimal string ("$1,234.56" -> "1234.56", "1.234,56" €
// style is not distinguishable from thousands-dot without a locale hint,
// so the comma is always treated as the decimal separator when both a dot
// and a comma are present and the comma is rightmost).
func currencyToDecimal(s string) string {
	cleaned := currencyCleanRe.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return ""
	}
	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	if lastComma > lastDot {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return cleaned
	}
	return cleaned
}

// monthNames maps every month name this corpus's documents are expected to
// use — English, Spanish, Portuguese, French — to its 1-based month
// number. Keys are lowercase and accent-folded.
var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
	"julio": 7, "agosto": 8, "septiembre": 9, "setiembre": 9, "octubre": 10, "noviembre": 11, "diciembre": 12,
	"janeiro": 1, "fevereiro": 2, "marco": 3, "maio": 5, "junho": 6,
	"julho": 7, "setembro": 9, "outubro": 10, "novembro": 11, "dezembro": 12,
	"janvier": 1, "fevrier": 2, "mars": 3, "avril": 4, "mai": 5, "juin": 6,
	"juillet": 7, "aout": 8, "septembre": 9, "octobre": 10, "novembre": 11, "decembre": 12,
}

var textualDateRe = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:de|de\s+)?\s*([a-zA-Zàâäéèêëîïôöùûüç]+)\s*(?:de|,)?\s*(\d{4})`)

// numericDateLayouts are tried in order against values that are already
// numeric ("dd/mm/yyyy" is assumed over "mm/dd/yyyy" since every doc type
// in this catalog is Spanish/Portuguese/French-market insurance paperwork).
var numericDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2-01-2006",
	"02-01-2006",
	"2006/01/02",
	"January 2, 2006",
	"2 January 2006",
}

// DateToISO converts a free-form date string (numeric or written in
// English/Spanish/Portuguese/French) to ISO-8601 (YYYY-MM-DD). It is the
// single source of truth for date comparison shared by the UI and metrics
// aggregator (spec.md §4.5: "Normalization & validation").
func DateToISO(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("doctype: empty date")
	}

	for _, layout := range numericDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}

	if m := textualDateRe.FindStringSubmatch(strings.ToLower(s)); m != nil {
		day, err := strconv.Atoi(m[1])
		if err != nil {
			return "", fmt.Errorf("doctype: invalid day in %q", s)
		}
		monthWord := strings.ToLower(foldAccents(m[2]))
		month, ok := monthNames[monthWord]
		if !ok {
			return "", fmt.Errorf("doctype: unrecognized month %q in %q", m[2], s)
		}
		year, err := strconv.Atoi(m[3])
		if err != nil {
			return "", fmt.Errorf("doctype: invalid year in %q", s)
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day || int(t.Month()) != month {
			return "", fmt.Errorf("doctype: invalid calendar date %q", s)
		}
		return t.Format("2006-01-02"), nil
	}

	return "", fmt.Errorf("doctype: could not parse date %q", s)
}
