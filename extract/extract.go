package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/llm"
)

// ErrExtractException is returned when every extraction attempt fails for
// reasons other than a malformed response (network errors, rate limits,
// timeouts that persist past the retry budget).
var ErrExtractException = errors.New("extract: extraction failed")

// ErrSchemaInvalid is returned when the model's response is not valid JSON
// matching the expected per-field shape even after one repair attempt.
var ErrSchemaInvalid = errors.New("extract: response did not match the expected schema")

// ExtractorVersion identifies this package's extraction algorithm
// (find-then-extract, retry budget, schema repair) for a run's
// VersionBundle (spec.md §4.11).
const ExtractorVersion = "1.0.0"

// PromptVersion identifies buildPrompt's current instruction/response
// shape; bump it whenever that shape changes incompatibly.
const PromptVersion = "v1"

// maxAttempts is the minimum retry budget for rate-limit/timeout failures
// (spec.md §4.5: "retried with exponential backoff, minimum 3 attempts").
const maxAttempts = 3

// retryBaseDelay and retryJitter parameterize the exponential backoff
// between extraction attempts.
const retryBaseDelay = 500 * time.Millisecond
const retryJitter = 250 * time.Millisecond

// maxPromptWindowChars truncates how much candidate-window or full-page
// text is sent to the model per field, keeping the prompt bounded even
// when a field has many hint matches.
const maxPromptWindowChars = 6000

// Status is the per-field outcome the quality gate (C6) reads.
type Status string

const (
	StatusPresent Status = "present"
	StatusMissing Status = "missing"
)

// Field is one extracted, normalized, validated, and provenance-bound
// field value.
type Field struct {
	Name        string       `json:"name"`
	RawValue    string       `json:"raw_value"`
	Value       string       `json:"value"`
	Status      Status       `json:"status"`
	Confidence  float64      `json:"confidence"`
	Provenance  *Provenance  `json:"provenance,omitempty"`
	Reasons     []string     `json:"reasons,omitempty"`
}

// Result is the extraction_result_v1 payload for one document: every
// declared field plus whether the low-text-quality vision fallback should
// be triggered.
type Result struct {
	DocType             string  `json:"doc_type"`
	SpecVersion         int     `json:"spec_version"`
	Fields              []Field `json:"fields"`
	NeedsVisionFallback bool    `json:"needs_vision_fallback"`
	Attempts            int     `json:"attempts"`
}

// Extractor runs the find-then-extract pipeline for one document against
// one DocTypeSpec.
type Extractor struct {
	chat         llm.Provider
	model        string
	candidateWin int
}

// New creates an Extractor bound to chat (an LLM Provider). candidateWindow
// of 0 uses DefaultCandidateWindow.
func New(chat llm.Provider, model string, candidateWindow int) *Extractor {
	return &Extractor{chat: chat, model: model, candidateWin: candidateWindow}
}

// llmFieldResult is the shape the model is asked to return per field.
type llmFieldResult struct {
	Value          string `json:"value"`
	SupportingQuote string `json:"supporting_quote"`
	Page           int    `json:"page"`
	Confidence     float64 `json:"confidence"`
}

// Extract runs candidate-span finding followed by a typed LLM extraction
// call, normalizes and validates every field, and binds each value's
// supporting quote back to canonical text. It always returns a Result, even
// when individual fields end up missing — only a hard failure after
// exhausting retries and the schema repair attempt returns an error.
func (e *Extractor) Extract(ctx context.Context, doc *doctext.DocText, spec *doctype.DocTypeSpec) (*Result, error) {
	candidates := FindCandidates(doc, spec, e.candidateWin)
	needsVision := NeedsVisionFallback(doc, spec, candidates)

	prompt := e.buildPrompt(doc, spec, candidates)

	raw, attempts, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return &Result{
			DocType:             spec.DocType,
			SpecVersion:         spec.Version,
			NeedsVisionFallback: needsVision,
			Attempts:            attempts,
		}, fmt.Errorf("%w: %v", ErrExtractException, err)
	}

	parsed, err := parseFieldResults(raw)
	if err != nil {
		// One repair attempt: ask the model to fix its own malformed
		// response before giving up.
		repaired, repairErr := e.repair(ctx, prompt, raw, err)
		if repairErr != nil {
			return &Result{
				DocType:             spec.DocType,
				SpecVersion:         spec.Version,
				NeedsVisionFallback: needsVision,
				Attempts:            attempts + 1,
			}, fmt.Errorf("%w: %v", ErrSchemaInvalid, repairErr)
		}
		parsed = repaired
		attempts++
	}

	fields := make([]Field, 0, len(spec.AllFields()))
	for _, name := range spec.AllFields() {
		fields = append(fields, e.resolveField(doc, spec, name, candidates[name], parsed[name]))
	}

	return &Result{
		DocType:             spec.DocType,
		SpecVersion:         spec.Version,
		Fields:              fields,
		NeedsVisionFallback: needsVision,
		Attempts:            attempts,
	}, nil
}

// resolveField normalizes, validates, and provenance-binds one field's raw
// LLM result. Empty string, "N/A" (any case), and an absent entry are all
// treated as missing (spec.md §4.5).
func (e *Extractor) resolveField(doc *doctext.DocText, spec *doctype.DocTypeSpec, name string, fieldCandidates []Candidate, raw llmFieldResult) Field {
	field := Field{Name: name, RawValue: raw.Value}

	if isMissingValue(raw.Value) {
		field.Status = StatusMissing
		return field
	}

	rule := spec.FieldRules[name]
	normalized := doctype.Normalize(rule.Normalize, raw.Value)
	if !doctype.Validate(rule.Validate, normalized) {
		field.Status = StatusMissing
		field.Reasons = append(field.Reasons, "validation_failed")
		return field
	}

	field.Value = normalized
	field.Status = StatusPresent
	field.Confidence = clamp01(raw.Confidence)
	if field.Confidence == 0 {
		field.Confidence = 0.7 // model omitted a confidence; assume moderate trust pending provenance check
	}

	if raw.SupportingQuote != "" {
		prov, strong := bindQuote(doc, raw.SupportingQuote, fieldCandidates)
		if prov.Quote != "" {
			field.Provenance = &prov
			if !strong {
				field.Reasons = append(field.Reasons, "provenance_weak")
				if field.Confidence > 0.5 {
					field.Confidence = 0.5
				}
			}
		} else {
			field.Reasons = append(field.Reasons, "provenance_weak")
			if field.Confidence > 0.5 {
				field.Confidence = 0.5
			}
		}
	} else {
		field.Reasons = append(field.Reasons, "provenance_weak")
		if field.Confidence > 0.5 {
			field.Confidence = 0.5
		}
	}

	return field
}

func isMissingValue(v string) bool {
	t := strings.TrimSpace(v)
	if t == "" {
		return true
	}
	switch strings.ToLower(t) {
	case "n/a", "na", "null", "none":
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// callWithRetry calls the model up to maxAttempts times, retrying on any
// error with exponential, jittered backoff (spec.md §4.5). Each attempt is
// a distinct call the caller can attribute to a separate llm_call record.
func (e *Extractor) callWithRetry(ctx context.Context, prompt string) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := e.chat.Chat(ctx, llm.ChatRequest{
			Model:          e.model,
			Messages:       []llm.Message{{Role: "user", Content: prompt}},
			Temperature:    0.0,
			ResponseFormat: "json_object",
		})
		if err == nil {
			return resp.Content, attempt, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
		delay += time.Duration(rand.Int63n(int64(retryJitter)))
		select {
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", maxAttempts, lastErr
}

func (e *Extractor) repair(ctx context.Context, originalPrompt, badResponse string, parseErr error) (map[string]llmFieldResult, error) {
	repairPrompt := fmt.Sprintf(
		"Your previous response could not be parsed as the required JSON object (%v). "+
			"Here was your response:\n\n%s\n\nRe-send ONLY a valid JSON object matching the schema described here:\n\n%s",
		parseErr, badResponse, originalPrompt,
	)
	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Model:          e.model,
		Messages:       []llm.Message{{Role: "user", Content: repairPrompt}},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, err
	}
	return parseFieldResults(resp.Content)
}

func (e *Extractor) buildPrompt(doc *doctext.DocText, spec *doctype.DocTypeSpec, candidates map[string][]Candidate) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Extract the following fields for a %q document. For every field return its value exactly as it appears, a short supporting_quote copied verbatim from the text, and the page number it came from. If a field is not present, set value to an empty string.\n\n", spec.DocType))

	for _, name := range spec.AllFields() {
		rule := spec.FieldRules[name]
		b.WriteString(fmt.Sprintf("- %s", name))
		if len(rule.Hints) > 0 {
			b.WriteString(fmt.Sprintf(" (look near: %s)", strings.Join(rule.Hints, ", ")))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nCandidate text windows:\n")
	written := 0
	for name, cands := range candidates {
		for _, c := range cands {
			if written >= maxPromptWindowChars {
				break
			}
			b.WriteString(fmt.Sprintf("--- field=%s page=%d ---\n%s\n", name, c.Page, c.Window))
			written += len(c.Window)
		}
	}

	if len(candidates) == 0 || len(doc.Pages) <= 2 {
		b.WriteString("\nFull document text:\n")
		for _, p := range doc.Pages {
			b.WriteString(fmt.Sprintf("--- page %d ---\n%s\n", p.Page, p.Text))
		}
	}

	b.WriteString("\nRespond with a single JSON object whose keys are the field names above, each mapping to an object with keys \"value\", \"supporting_quote\", \"page\", and \"confidence\" (0-1).")

	return b.String()
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}

func parseFieldResults(raw string) (map[string]llmFieldResult, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var parsed map[string]llmFieldResult
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}
