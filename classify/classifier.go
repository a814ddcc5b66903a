// Package classify implements the document classifier (C4): routing a
// canonical doc_text_v1 to exactly one doc_type from the catalog. Content
// decides the route, never the filename — the filename is passed to the
// prompt only as a weak, informational hint.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/llm"
)

// ErrClassifyException is returned when the LLM call or its response
// parsing fails outright (as opposed to succeeding with low confidence,
// which is a valid Result, not an error).
var ErrClassifyException = errors.New("classify: classification failed")

// maxPromptPages bounds how much canonical text is sent to the router
// model — enough for a reliable route, not so much that a 40-page policy
// binder blows the context window on every single-page scan.
const maxPromptPages = 3

// maxPromptCharsPerPage truncates any one page before it enters the
// prompt, so a single dense spreadsheet page cannot dominate the budget.
const maxPromptCharsPerPage = 4000

// lowConfidenceDocType is the route used when content is empty or too
// garbled to classify (spec.md §4.4).
const lowConfidenceDocType = "supporting_document"

// lowConfidenceCeiling is the confidence cap applied whenever content is
// empty/garbled, per spec.md §4.4 ("confidence ≤ 0.3").
const lowConfidenceCeiling = 0.3

// Result is the classifier's output (spec.md §3 "Classification result").
type Result struct {
	DocType          string            `json:"doc_type"`
	DocTypeConfidence float64          `json:"doc_type_confidence"`
	Language         string            `json:"language"`
	Signals          []string          `json:"signals"`
	Summary          string            `json:"summary"`
	KeyHints         map[string]string `json:"key_hints,omitempty"`
}

// Classifier routes documents to a doc_type using an LLM chat call against
// router cues drawn from the catalog.
type Classifier struct {
	chat    llm.Provider
	catalog *doctype.Catalog
	model   string
}

// New creates a Classifier bound to chat (an LLM Provider) and catalog.
func New(chat llm.Provider, catalog *doctype.Catalog, model string) *Classifier {
	return &Classifier{chat: chat, catalog: catalog, model: model}
}

// Classify routes doc to exactly one doc_type. filename is informational
// only: it appears in the prompt but the rule is content decides, not
// filename (spec.md §4.4).
func (c *Classifier) Classify(ctx context.Context, doc *doctext.DocText, filename string) (*Result, error) {
	if doc.IsEmpty() {
		return &Result{
			DocType:           lowConfidenceDocType,
			DocTypeConfidence: lowConfidenceCeiling,
			Language:          "unknown",
			Signals:           []string{"document text is empty"},
			Summary:           "No extractable text content.",
		}, nil
	}

	prompt := c.buildPrompt(doc, filename)

	resp, err := c.chat.Chat(ctx, llm.ChatRequest{
		Model:          c.model,
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: llm chat: %v", ErrClassifyException, err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrClassifyException, err)
	}

	var result Result
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling response: %v", ErrClassifyException, err)
	}

	if _, err := c.catalog.Get(result.DocType); err != nil {
		// The model routed to a doc_type the catalog doesn't recognize —
		// treat it as a garbled/uncertain classification rather than a
		// hard failure, since the caller still gets a usable fallback.
		result.DocType = lowConfidenceDocType
		if result.DocTypeConfidence > lowConfidenceCeiling {
			result.DocTypeConfidence = lowConfidenceCeiling
		}
	}

	if result.DocTypeConfidence < 0 {
		result.DocTypeConfidence = 0
	}
	if result.DocTypeConfidence > 1 {
		result.DocTypeConfidence = 1
	}

	result.KeyHints = capKeyHints(result.KeyHints, 3)

	return &result, nil
}

func capKeyHints(hints map[string]string, max int) map[string]string {
	if len(hints) <= max {
		return hints
	}
	capped := make(map[string]string, max)
	n := 0
	for k, v := range hints {
		if n >= max {
			break
		}
		capped[k] = v
		n++
	}
	return capped
}

func (c *Classifier) buildPrompt(doc *doctext.DocText, filename string) string {
	var b strings.Builder
	b.WriteString("You are routing an insurance claim document to exactly one document type.\n\n")
	b.WriteString("Decide based on the document's CONTENT, never its filename. The filename is informational only.\n\n")
	b.WriteString(fmt.Sprintf("Filename (informational only): %s\n\n", filename))
	b.WriteString("Available document types and their cues:\n")
	for docType, cues := range c.catalog.RouterCues() {
		b.WriteString(fmt.Sprintf("- %s: %s\n", docType, strings.Join(cues, "; ")))
	}
	b.WriteString("\nDocument text:\n")

	pages := doc.Pages
	if len(pages) > maxPromptPages {
		pages = pages[:maxPromptPages]
	}
	for _, p := range pages {
		text := p.Text
		if len([]rune(text)) > maxPromptCharsPerPage {
			text = string([]rune(text)[:maxPromptCharsPerPage])
		}
		b.WriteString(fmt.Sprintf("--- page %d ---\n%s\n", p.Page, text))
	}

	b.WriteString("\nRespond with a single JSON object with exactly these keys: ")
	b.WriteString(`"doc_type" (string, one of the listed types), "doc_type_confidence" (number 0-1), ` +
		`"language" (ISO 639-1 code), "signals" (array of 2-5 short strings explaining the route), ` +
		`"summary" (one sentence), "key_hints" (object with at most 3 keys, only obvious values actually ` +
		`present verbatim in the text — never invent a value).`)

	return b.String()
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON finds a JSON object in raw LLM output, tolerating markdown
// code fences and stray text before/after the object.
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
