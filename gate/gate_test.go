package gate

import (
	"testing"

	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/extract"
)

func testSpec() *doctype.DocTypeSpec {
	return &doctype.DocTypeSpec{
		DocType:        "police_report",
		RequiredFields: []string{"report_number", "incident_date"},
		OptionalFields: []string{"officer_name"},
		QualityGate: &doctype.QualityGateThresholds{
			PassIfRequiredPresentRatio: 1.0,
			PassIfEvidenceRate:         0.8,
			WarnIfEvidenceRate:         0.5,
		},
	}
}

func withProvenance() *extract.Provenance {
	return &extract.Provenance{Page: 1, CharStart: 0, CharEnd: 5, Quote: "x"}
}

func TestEvaluatePass(t *testing.T) {
	result := &extract.Result{Fields: []extract.Field{
		{Name: "report_number", Status: extract.StatusPresent, Provenance: withProvenance()},
		{Name: "incident_date", Status: extract.StatusPresent, Provenance: withProvenance()},
		{Name: "officer_name", Status: extract.StatusPresent, Provenance: withProvenance()},
	}}
	g := Evaluate(result, testSpec())
	if g.Status != StatusPass {
		t.Errorf("status = %q, want pass", g.Status)
	}
	if g.RequiredPresentRatio != 1.0 {
		t.Errorf("required_present_ratio = %f, want 1.0", g.RequiredPresentRatio)
	}
	if g.EvidenceRate != 1.0 {
		t.Errorf("evidence_rate = %f, want 1.0", g.EvidenceRate)
	}
}

func TestEvaluateWarnOnLowEvidence(t *testing.T) {
	result := &extract.Result{Fields: []extract.Field{
		{Name: "report_number", Status: extract.StatusPresent, Provenance: withProvenance()},
		{Name: "incident_date", Status: extract.StatusPresent},
	}}
	g := Evaluate(result, testSpec())
	if g.Status != StatusWarn {
		t.Errorf("status = %q, want warn", g.Status)
	}
}

func TestEvaluateFailOnMissingRequiredField(t *testing.T) {
	result := &extract.Result{Fields: []extract.Field{
		{Name: "report_number", Status: extract.StatusPresent, Provenance: withProvenance()},
		{Name: "incident_date", Status: extract.StatusMissing},
	}}
	g := Evaluate(result, testSpec())
	if g.Status != StatusFail {
		t.Errorf("status = %q, want fail", g.Status)
	}
	if len(g.MissingRequiredFields) != 1 || g.MissingRequiredFields[0] != "incident_date" {
		t.Errorf("missing_required_fields = %v, want [incident_date]", g.MissingRequiredFields)
	}
}

func TestEvaluateNeedsVisionFallbackReasonPropagates(t *testing.T) {
	result := &extract.Result{
		NeedsVisionFallback: true,
		Fields: []extract.Field{
			{Name: "report_number", Status: extract.StatusPresent, Provenance: withProvenance()},
			{Name: "incident_date", Status: extract.StatusPresent, Provenance: withProvenance()},
		},
	}
	g := Evaluate(result, testSpec())
	if !g.NeedsVisionFallback {
		t.Error("expected needs_vision_fallback to propagate")
	}
	found := false
	for _, r := range g.Reasons {
		if r == "needs_vision_fallback" {
			found = true
		}
	}
	if !found {
		t.Error("expected needs_vision_fallback reason in reasons")
	}
}

func TestEvaluateNoFieldsPresentDoesNotDivideByZero(t *testing.T) {
	result := &extract.Result{Fields: []extract.Field{
		{Name: "report_number", Status: extract.StatusMissing},
		{Name: "incident_date", Status: extract.StatusMissing},
	}}
	g := Evaluate(result, testSpec())
	if g.Status != StatusFail {
		t.Errorf("status = %q, want fail", g.Status)
	}
	if g.EvidenceRate != 0 {
		t.Errorf("evidence_rate = %f, want 0", g.EvidenceRate)
	}
}
