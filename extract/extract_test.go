package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/llm"
)

type fakeChat struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	resp := ""
	if i < len(f.responses) {
		resp = f.responses[i]
	} else if len(f.responses) > 0 {
		resp = f.responses[len(f.responses)-1]
	}
	return &llm.ChatResponse{Content: resp}, nil
}

func (f *fakeChat) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, llm.ErrEmbeddingUnsupported
}

func testSpec(t *testing.T) *doctype.DocTypeSpec {
	t.Helper()
	return &doctype.DocTypeSpec{
		DocType:        "police_report",
		Version:        1,
		RequiredFields: []string{"report_number", "incident_date"},
		OptionalFields: []string{"officer_name"},
		FieldRules: map[string]doctype.FieldRule{
			"report_number": {Normalize: "uppercase_trim", Validate: "non_empty", Hints: []string{"report no"}},
			"incident_date": {Normalize: "date_to_iso", Validate: "valid_date", Hints: []string{"fecha"}},
			"officer_name":  {Normalize: "trim", Validate: "non_empty"},
		},
	}
}

func testDoc() *doctext.DocText {
	return doctext.New("doc1", []doctext.Page{
		{Text: "Report No: AB-1234\nFecha del incidente: 13/01/2024\nOfficer: J. Rivera"},
	})
}

func TestExtractHappyPath(t *testing.T) {
	resp := `{"report_number":{"value":"AB-1234","supporting_quote":"Report No: AB-1234","page":1,"confidence":0.9},` +
		`"incident_date":{"value":"13/01/2024","supporting_quote":"Fecha del incidente: 13/01/2024","page":1,"confidence":0.85},` +
		`"officer_name":{"value":"J. Rivera","supporting_quote":"Officer: J. Rivera","page":1,"confidence":0.8}}`
	chat := &fakeChat{responses: []string{resp}}
	e := New(chat, "test-model", 0)

	result, err := e.Extract(context.Background(), testDoc(), testSpec(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(result.Fields))
	}
	byName := map[string]Field{}
	for _, f := range result.Fields {
		byName[f.Name] = f
	}
	if byName["report_number"].Value != "AB-1234" {
		t.Errorf("report_number = %q", byName["report_number"].Value)
	}
	if byName["incident_date"].Value != "2024-01-13" {
		t.Errorf("incident_date = %q, want 2024-01-13", byName["incident_date"].Value)
	}
	if byName["incident_date"].Provenance == nil {
		t.Error("expected provenance binding for incident_date")
	}
	if byName["report_number"].Status != StatusPresent {
		t.Errorf("report_number status = %q", byName["report_number"].Status)
	}
}

func TestExtractMissingValueTreatedAsMissing(t *testing.T) {
	resp := `{"report_number":{"value":"N/A","supporting_quote":"","page":1},` +
		`"incident_date":{"value":"","supporting_quote":"","page":1},` +
		`"officer_name":{"value":"null","supporting_quote":"","page":1}}`
	chat := &fakeChat{responses: []string{resp}}
	e := New(chat, "test-model", 0)

	result, err := e.Extract(context.Background(), testDoc(), testSpec(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, f := range result.Fields {
		if f.Status != StatusMissing {
			t.Errorf("field %s status = %q, want missing", f.Name, f.Status)
		}
	}
}

func TestExtractValidationFailureMarksMissing(t *testing.T) {
	resp := `{"report_number":{"value":"AB-1234","supporting_quote":"","page":1},` +
		`"incident_date":{"value":"not a date","supporting_quote":"","page":1},` +
		`"officer_name":{"value":"J. Rivera","supporting_quote":"","page":1}}`
	chat := &fakeChat{responses: []string{resp}}
	e := New(chat, "test-model", 0)

	result, err := e.Extract(context.Background(), testDoc(), testSpec(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, f := range result.Fields {
		if f.Name == "incident_date" {
			if f.Status != StatusMissing {
				t.Errorf("incident_date status = %q, want missing (validation_failed)", f.Status)
			}
		}
	}
}

func TestExtractRetriesTransientErrors(t *testing.T) {
	resp := `{"report_number":{"value":"AB-1234","supporting_quote":"","page":1},` +
		`"incident_date":{"value":"13/01/2024","supporting_quote":"","page":1},` +
		`"officer_name":{"value":"J. Rivera","supporting_quote":"","page":1}}`
	chat := &fakeChat{
		errs:      []error{errors.New("rate limited"), errors.New("timeout")},
		responses: []string{"", "", resp},
	}
	e := New(chat, "test-model", 0)

	result, err := e.Extract(context.Background(), testDoc(), testSpec(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if chat.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", chat.calls)
	}
	if result.Attempts != 3 {
		t.Errorf("result.Attempts = %d, want 3", result.Attempts)
	}
}

func TestExtractExhaustsRetriesReturnsError(t *testing.T) {
	chat := &fakeChat{errs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	e := New(chat, "test-model", 0)

	_, err := e.Extract(context.Background(), testDoc(), testSpec(t))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, ErrExtractException) {
		t.Errorf("expected ErrExtractException, got %v", err)
	}
}

func TestExtractSchemaRepairSucceeds(t *testing.T) {
	resp := `{"report_number":{"value":"AB-1234","supporting_quote":"","page":1},` +
		`"incident_date":{"value":"13/01/2024","supporting_quote":"","page":1},` +
		`"officer_name":{"value":"J. Rivera","supporting_quote":"","page":1}}`
	chat := &fakeChat{responses: []string{"not json at all", resp}}
	e := New(chat, "test-model", 0)

	result, err := e.Extract(context.Background(), testDoc(), testSpec(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if chat.calls != 2 {
		t.Errorf("expected 2 calls (original + repair), got %d", chat.calls)
	}
	if result.Attempts != 2 {
		t.Errorf("result.Attempts = %d, want 2", result.Attempts)
	}
}

func TestExtractSchemaRepairFailsReturnsSchemaInvalid(t *testing.T) {
	chat := &fakeChat{responses: []string{"not json", "still not json"}}
	e := New(chat, "test-model", 0)

	_, err := e.Extract(context.Background(), testDoc(), testSpec(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrSchemaInvalid) {
		t.Errorf("expected ErrSchemaInvalid, got %v", err)
	}
}
