// Package gate implements the quality gate (C6): a pure function over an
// extraction result and the DocTypeSpec it was extracted against, deciding
// whether a document's extracted fields are reliable enough to trust
// without human review.
package gate

import (
	"sort"

	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/extract"
)

// Status is the quality gate's pass/warn/fail verdict (spec.md §4.6).
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Result is the quality_gate block attached to an extraction_result_v1.
type Result struct {
	Status                Status   `json:"status"`
	Reasons               []string `json:"reasons"`
	MissingRequiredFields []string `json:"missing_required_fields"`
	NeedsVisionFallback   bool     `json:"needs_vision_fallback"`
	RequiredPresentRatio  float64  `json:"required_present_ratio"`
	EvidenceRate          float64  `json:"evidence_rate"`
}

// Evaluate computes the quality gate verdict for result against spec's
// thresholds (spec.md §4.6):
//
//	required_present_ratio = present_required / required_count
//	evidence_rate          = fields_with_provenance / present_fields
//
// pass requires required_present_ratio to clear pass_if_required_present_ratio
// and evidence_rate to clear pass_if_evidence_rate; warn requires the
// required-fields bar to still clear but evidence_rate to only clear the
// lower warn_if_evidence_rate bar; anything else fails.
func Evaluate(result *extract.Result, spec *doctype.DocTypeSpec) Result {
	var missing []string
	presentRequired := 0
	presentFields := 0
	fieldsWithProvenance := 0

	byName := make(map[string]extract.Field, len(result.Fields))
	for _, f := range result.Fields {
		byName[f.Name] = f
	}

	for _, name := range spec.RequiredFields {
		f, ok := byName[name]
		if !ok || f.Status != extract.StatusPresent {
			missing = append(missing, name)
			continue
		}
		presentRequired++
	}
	sort.Strings(missing)

	for _, f := range result.Fields {
		if f.Status != extract.StatusPresent {
			continue
		}
		presentFields++
		if f.Provenance != nil {
			fieldsWithProvenance++
		}
	}

	requiredCount := len(spec.RequiredFields)
	requiredPresentRatio := 0.0
	if requiredCount > 0 {
		requiredPresentRatio = float64(presentRequired) / float64(requiredCount)
	}

	evidenceRate := 0.0
	if presentFields > 0 {
		evidenceRate = float64(fieldsWithProvenance) / float64(presentFields)
	}

	thresholds := *spec.QualityGate
	requiredOK := requiredPresentRatio >= thresholds.PassIfRequiredPresentRatio

	res := Result{
		MissingRequiredFields: missing,
		NeedsVisionFallback:   result.NeedsVisionFallback,
		RequiredPresentRatio:  requiredPresentRatio,
		EvidenceRate:          evidenceRate,
	}

	switch {
	case requiredOK && evidenceRate >= thresholds.PassIfEvidenceRate:
		res.Status = StatusPass
	case requiredOK && evidenceRate >= thresholds.WarnIfEvidenceRate:
		res.Status = StatusWarn
		res.Reasons = append(res.Reasons, "low_evidence_rate")
	default:
		res.Status = StatusFail
		if !requiredOK {
			res.Reasons = append(res.Reasons, "missing_required_fields")
		}
		if evidenceRate < thresholds.WarnIfEvidenceRate {
			res.Reasons = append(res.Reasons, "low_evidence_rate")
		}
	}

	if result.NeedsVisionFallback {
		res.Reasons = append(res.Reasons, "needs_vision_fallback")
	}

	return res
}
