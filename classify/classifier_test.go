package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/llm"
)

type fakeChatProvider struct {
	response string
	err      error
}

func (f *fakeChatProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.response}, nil
}

func (f *fakeChatProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, llm.ErrEmbeddingUnsupported
}

const testSpecYAML = `
doc_type: loss_notice
version: 1
router_cues:
  - "fecha del incidente"
  - "loss notice"
required_fields:
  - incident_date
field_rules:
  incident_date:
    normalize: date_to_iso
    validate: valid_date
    hints: ["fecha"]
quality_gate:
  pass_if_required_present_ratio: 1.0
  pass_if_evidence_rate: 0.8
  warn_if_evidence_rate: 0.5
`

func newTestCatalog(t *testing.T) *doctype.Catalog {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loss_notice.yaml"), []byte(testSpecYAML), 0o644); err != nil {
		t.Fatalf("writing spec: %v", err)
	}
	cat, err := doctype.LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return cat
}

func TestClassifyEmptyDocument(t *testing.T) {
	cat := newTestCatalog(t)
	c := New(&fakeChatProvider{}, cat, "test-model")

	doc := doctext.New("doc1", []doctext.Page{{Text: "   "}})
	result, err := c.Classify(context.Background(), doc, "scan.pdf")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.DocType != lowConfidenceDocType {
		t.Errorf("doc_type = %q, want %q", result.DocType, lowConfidenceDocType)
	}
	if result.DocTypeConfidence > lowConfidenceCeiling {
		t.Errorf("confidence = %f, want <= %f", result.DocTypeConfidence, lowConfidenceCeiling)
	}
}

func TestClassifyHappyPath(t *testing.T) {
	cat := newTestCatalog(t)
	resp := `{"doc_type":"loss_notice","doc_type_confidence":0.92,"language":"es",` +
		`"signals":["mentions fecha del incidente","loss date present"],` +
		`"summary":"A loss notice reporting an incident.",` +
		`"key_hints":{"incident_date":"13/01/2024"}}`
	c := New(&fakeChatProvider{response: resp}, cat, "test-model")

	doc := doctext.New("doc1", []doctext.Page{{Text: "Fecha del incidente: 13/01/2024"}})
	result, err := c.Classify(context.Background(), doc, "loss.pdf")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.DocType != "loss_notice" {
		t.Errorf("doc_type = %q, want loss_notice", result.DocType)
	}
	if result.DocTypeConfidence != 0.92 {
		t.Errorf("confidence = %f, want 0.92", result.DocTypeConfidence)
	}
	if len(result.KeyHints) != 1 {
		t.Errorf("key_hints = %v, want 1 entry", result.KeyHints)
	}
}

func TestClassifyMarkdownFencedResponse(t *testing.T) {
	cat := newTestCatalog(t)
	resp := "```json\n{\"doc_type\":\"loss_notice\",\"doc_type_confidence\":0.8,\"language\":\"es\",\"signals\":[\"a\",\"b\"],\"summary\":\"s\"}\n```"
	c := New(&fakeChatProvider{response: resp}, cat, "test-model")

	doc := doctext.New("doc1", []doctext.Page{{Text: "some content here"}})
	result, err := c.Classify(context.Background(), doc, "x.pdf")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.DocType != "loss_notice" {
		t.Errorf("doc_type = %q, want loss_notice", result.DocType)
	}
}

func TestClassifyUnknownDocTypeFallsBack(t *testing.T) {
	cat := newTestCatalog(t)
	resp := `{"doc_type":"not_in_catalog","doc_type_confidence":0.9,"language":"en","signals":["a","b"],"summary":"s"}`
	c := New(&fakeChatProvider{response: resp}, cat, "test-model")

	doc := doctext.New("doc1", []doctext.Page{{Text: "some content"}})
	result, err := c.Classify(context.Background(), doc, "x.pdf")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.DocType != lowConfidenceDocType {
		t.Errorf("doc_type = %q, want fallback %q", result.DocType, lowConfidenceDocType)
	}
	if result.DocTypeConfidence > lowConfidenceCeiling {
		t.Errorf("confidence = %f, want capped at %f", result.DocTypeConfidence, lowConfidenceCeiling)
	}
}

func TestClassifyLLMErrorWrapped(t *testing.T) {
	cat := newTestCatalog(t)
	c := New(&fakeChatProvider{err: errTest}, cat, "test-model")

	doc := doctext.New("doc1", []doctext.Page{{Text: "some content"}})
	_, err := c.Classify(context.Background(), doc, "x.pdf")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrClassifyException) {
		t.Fatalf("error = %v, want wrapped ErrClassifyException", err)
	}
}

func TestKeyHintsCappedAtThree(t *testing.T) {
	hints := map[string]string{"a": "1", "b": "2", "c": "3", "d": "4", "e": "5"}
	capped := capKeyHints(hints, 3)
	if len(capped) != 3 {
		t.Errorf("capKeyHints returned %d entries, want 3", len(capped))
	}
}

var errTest = &testError{"simulated provider failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
