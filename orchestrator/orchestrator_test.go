package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/contextbuilder/contextbuilder/classify"
	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/extract"
	"github.com/contextbuilder/contextbuilder/ingest"
	"github.com/contextbuilder/contextbuilder/llm"
	"github.com/contextbuilder/contextbuilder/truth"
	"github.com/contextbuilder/contextbuilder/workspace"
)

const testSpecYAML = `
doc_type: police_report
version: 1
router_cues: ["police report"]
required_fields:
  - report_number
  - incident_date
optional_fields: []
field_rules:
  report_number:
    normalize: uppercase_trim
    validate: non_empty
    hints: ["report no"]
  incident_date:
    normalize: date_to_iso
    validate: valid_date
    hints: ["incident date"]
quality_gate:
  pass_if_required_present_ratio: 1.0
  pass_if_evidence_rate: 0.5
  warn_if_evidence_rate: 0.2
`

// fakeIngestProvider returns a fixed single-page document regardless of
// the source path, so tests don't need real PDFs on disk.
type fakeIngestProvider struct {
	text string
}

func (p *fakeIngestProvider) SupportedFormats() []string { return []string{"txt"} }

func (p *fakeIngestProvider) Ingest(ctx context.Context, path string) ([]doctext.Page, error) {
	return []doctext.Page{{Text: p.text, Source: doctext.SourcePlain, Quality: doctext.Quality{Readability: doctext.ReadabilityGood}}}, nil
}

// scriptedChat replays a fixed sequence of chat responses: the first call
// is the classifier's route, the second is the extractor's field pull.
type scriptedChat struct {
	responses []string
	calls     int
}

func (c *scriptedChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	i := c.calls
	c.calls++
	resp := c.responses[len(c.responses)-1]
	if i < len(c.responses) {
		resp = c.responses[i]
	}
	return &llm.ChatResponse{Content: resp}, nil
}

func (c *scriptedChat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, llm.ErrEmbeddingUnsupported
}

func setupOrchestrator(t *testing.T, chat llm.Provider) (*Orchestrator, workspace.Layout, string) {
	t.Helper()

	specsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(specsDir, "police_report.yaml"), []byte(testSpecYAML), 0o644); err != nil {
		t.Fatalf("writing spec: %v", err)
	}
	catalog, err := doctype.LoadCatalog(specsDir)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	ingestRegistry := ingest.NewRegistry()
	ingestRegistry.Register("txt", &fakeIngestProvider{
		text: "Report No: AB-1234\nIncident Date: 13/01/2024\nThis is a police report.",
	})

	classifier := classify.New(chat, catalog, "test-classifier")
	extractor := extract.New(chat, "test-extractor", 800)

	root := t.TempDir()
	layout := workspace.NewLayout(root)
	truthReg := truth.NewRegistry(layout)

	orch := New(layout, ingestRegistry, catalog, classifier, extractor, truthReg, nil, 2)
	return orch, layout, root
}

func TestRunClaimHappyPath(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"doc_type":"police_report","doc_type_confidence":0.95,"language":"en","signals":["matched police report cues"],"summary":"A police report."}`,
		`{"report_number":{"value":"AB-1234","supporting_quote":"Report No: AB-1234","page":1,"confidence":0.9},` +
			`"incident_date":{"value":"13/01/2024","supporting_quote":"Incident Date: 13/01/2024","page":1,"confidence":0.9}}`,
	}}
	orch, _, _ := setupOrchestrator(t, chat)

	sourcePath := filepath.Join(t.TempDir(), "claim1.txt")
	if err := os.WriteFile(sourcePath, []byte("irrelevant, the fake provider ignores this"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	result, err := orch.RunClaim(context.Background(), "claim1", []DocInput{{DocID: "doc1", SourcePath: sourcePath}}, RunOptions{
		ClassifierModel: "test-classifier",
		ExtractorModel:  "test-extractor",
		ClassifyLowConf: 0.5,
	})
	if err != nil {
		t.Fatalf("RunClaim: %v", err)
	}
	if len(result.Docs) != 1 {
		t.Fatalf("expected 1 doc outcome, got %d", len(result.Docs))
	}

	outcome := result.Docs[0]
	if outcome.State != DocStateDone {
		t.Fatalf("expected DocStateDone, got %s (failed_phase=%s error=%s)", outcome.State, outcome.FailedPhase, outcome.ErrorMessage)
	}
	if outcome.DocType != "police_report" {
		t.Fatalf("expected doc_type police_report, got %q", outcome.DocType)
	}
	if outcome.GateStatus != "pass" {
		t.Fatalf("expected gate status pass, got %q (reasons=%v)", outcome.GateStatus, outcome.GateReasons)
	}

	if result.Phases.Ingestion.Ingested != 1 {
		t.Fatalf("expected 1 ingested doc, got %d", result.Phases.Ingestion.Ingested)
	}
	if result.Phases.Classification.Classified != 1 {
		t.Fatalf("expected 1 classified doc, got %d", result.Phases.Classification.Classified)
	}
	if result.Phases.QualityGate.Pass != 1 {
		t.Fatalf("expected 1 gate pass, got %d", result.Phases.QualityGate.Pass)
	}
}

func TestRunClaimUnsupportedFormatFailsDocNotRun(t *testing.T) {
	chat := &scriptedChat{responses: []string{"{}"}}
	orch, _, _ := setupOrchestrator(t, chat)

	sourcePath := filepath.Join(t.TempDir(), "claim1.pdf")
	if err := os.WriteFile(sourcePath, []byte("not actually a pdf"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	result, err := orch.RunClaim(context.Background(), "claim1", []DocInput{{DocID: "doc1", SourcePath: sourcePath}}, RunOptions{})
	if err != nil {
		t.Fatalf("RunClaim: %v", err)
	}

	outcome := result.Docs[0]
	if outcome.State != DocStateFailed {
		t.Fatalf("expected DocStateFailed, got %s", outcome.State)
	}
	if outcome.FailedPhase != "ingestion" {
		t.Fatalf("expected failed_phase ingestion, got %q", outcome.FailedPhase)
	}
}

func TestRunClaimRefusesToOverwriteWithoutForce(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"doc_type":"police_report","doc_type_confidence":0.95,"language":"en","signals":["x"],"summary":"y"}`,
		`{"report_number":{"value":"AB-1234","supporting_quote":"Report No: AB-1234","page":1,"confidence":0.9},` +
			`"incident_date":{"value":"13/01/2024","supporting_quote":"Incident Date: 13/01/2024","page":1,"confidence":0.9}}`,
	}}
	orch, _, _ := setupOrchestrator(t, chat)

	sourcePath := filepath.Join(t.TempDir(), "claim1.txt")
	if err := os.WriteFile(sourcePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	opts := RunOptions{RunID: "fixed-run-id", ClassifierModel: "m", ExtractorModel: "m", ClassifyLowConf: 0.5}
	if _, err := orch.RunClaim(context.Background(), "claim1", []DocInput{{DocID: "doc1", SourcePath: sourcePath}}, opts); err != nil {
		t.Fatalf("first RunClaim: %v", err)
	}

	_, err := orch.RunClaim(context.Background(), "claim1", []DocInput{{DocID: "doc1", SourcePath: sourcePath}}, opts)
	if err == nil {
		t.Fatal("expected second run with the same run_id to fail without Force")
	}
}

func TestRunClaimIsolatesDocFailureFromOthers(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"doc_type":"police_report","doc_type_confidence":0.95,"language":"en","signals":["x"],"summary":"y"}`,
		`{"report_number":{"value":"AB-1234","supporting_quote":"Report No: AB-1234","page":1,"confidence":0.9},` +
			`"incident_date":{"value":"13/01/2024","supporting_quote":"Incident Date: 13/01/2024","page":1,"confidence":0.9}}`,
	}}
	orch, _, _ := setupOrchestrator(t, chat)

	goodPath := filepath.Join(t.TempDir(), "good.txt")
	if err := os.WriteFile(goodPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	badPath := filepath.Join(t.TempDir(), "bad.unsupported")
	if err := os.WriteFile(badPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	result, err := orch.RunClaim(context.Background(), "claim1", []DocInput{
		{DocID: "good", SourcePath: goodPath},
		{DocID: "bad", SourcePath: badPath},
	}, RunOptions{ClassifierModel: "m", ExtractorModel: "m", ClassifyLowConf: 0.5})
	if err != nil {
		t.Fatalf("RunClaim: %v", err)
	}
	if len(result.Docs) != 2 {
		t.Fatalf("expected 2 doc outcomes, got %d", len(result.Docs))
	}

	var gotGood, gotBad bool
	for _, o := range result.Docs {
		if o.DocID == "good" {
			gotGood = o.State == DocStateDone
		}
		if o.DocID == "bad" {
			gotBad = o.State == DocStateFailed
		}
	}
	if !gotGood {
		t.Fatal("expected the well-formed doc to complete despite the other doc failing")
	}
	if !gotBad {
		t.Fatal("expected the unsupported-format doc to fail")
	}
}

func TestRunClaimMaxStageClassifyStopsBeforeExtraction(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"doc_type":"police_report","doc_type_confidence":0.95,"language":"en","signals":["x"],"summary":"y"}`,
	}}
	orch, _, _ := setupOrchestrator(t, chat)

	sourcePath := filepath.Join(t.TempDir(), "claim1.txt")
	if err := os.WriteFile(sourcePath, []byte("irrelevant"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	result, err := orch.RunClaim(context.Background(), "claim1", []DocInput{{DocID: "doc1", SourcePath: sourcePath}}, RunOptions{
		ClassifierModel: "test-classifier",
		ExtractorModel:  "test-extractor",
		ClassifyLowConf: 0.5,
		MaxStage:        StageClassify,
	})
	if err != nil {
		t.Fatalf("RunClaim: %v", err)
	}

	outcome := result.Docs[0]
	if outcome.State != DocStateDone {
		t.Fatalf("expected DocStateDone, got %s (error=%s)", outcome.State, outcome.ErrorMessage)
	}
	if outcome.DocType != "police_report" {
		t.Fatalf("expected classification to have run, got doc_type %q", outcome.DocType)
	}
	if outcome.GateStatus != "" {
		t.Fatalf("expected extraction/gate to be skipped, got gate status %q", outcome.GateStatus)
	}
	if result.Phases.Extraction.Attempted != 0 {
		t.Fatalf("expected 0 extraction attempts, got %d", result.Phases.Extraction.Attempted)
	}
}
