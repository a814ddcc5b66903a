// Package metrics implements the metrics aggregator (C10): a pure
// function over ground truth and a run's extractions that scores field
// accuracy and surfaces a remediation priority list. Grounded on the
// normalize-then-compare idiom in the teacher's eval/metrics.go
// (normalizeLLMText, clamp), generalized from answer-vs-expected-fact
// scoring to extracted-value-vs-truth-value comparison.
package metrics

import (
	"sort"

	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/extract"
	"github.com/contextbuilder/contextbuilder/truth"
)

// Outcome is the per-field comparison result against ground truth
// (spec.md §4.10).
type Outcome string

const (
	OutcomeCorrect      Outcome = "correct"
	OutcomeIncorrect    Outcome = "incorrect"
	OutcomeMissing      Outcome = "missing"
	OutcomeUnverifiable Outcome = "unverifiable"
	OutcomeUnlabeled    Outcome = "unlabeled"
)

// priorityWeights are the remediation priority weights from spec.md §4.10.
var priorityWeights = map[string]float64{
	"extractor_miss":    3,
	"incorrect":         3,
	"evidence_missing":  2,
	"cannot_verify":     1,
}

// FieldComparison is one (doc, field) comparison against truth.
type FieldComparison struct {
	DocID   string  `json:"doc_id"`
	Field   string  `json:"field"`
	Outcome Outcome `json:"outcome"`
}

// DocExtraction is one document's selected-run extraction result, scoped
// by whether its classifier route matched the doc's known doc_type.
type DocExtraction struct {
	DocID            string
	FileMD5          string
	DocTypeCorrect   bool
	Result           *extract.Result
}

// Report is the aggregate output of Compute.
type Report struct {
	Accuracy       float64           `json:"accuracy"`
	LabelCoverage  float64           `json:"label_coverage"`
	RunCoverage    float64           `json:"run_coverage"`
	Comparisons    []FieldComparison `json:"comparisons"`
	ExcludedDocs   []string          `json:"excluded_docs"` // doc_type_correct == false
	PriorityItems  []PriorityItem    `json:"priority_items"`
}

// PriorityItem is one remediation candidate, ranked by a weighted count of
// its failure modes (spec.md §4.10).
type PriorityItem struct {
	Field string  `json:"field"`
	Score float64 `json:"score"`
	Counts map[string]int `json:"counts"`
}

// Compute scores docs against their ground truth (looked up per
// FileMD5+field in truthReg) and against totalDocsInScope (for coverage),
// restricted to spec's declared fields.
func Compute(docs []DocExtraction, truthReg *truth.Registry, spec *doctype.DocTypeSpec, totalDocsInScope int) (Report, error) {
	var report Report
	var correct, incorrect, missing int
	labeledDocs := map[string]bool{}
	runDocs := map[string]bool{}
	failureCounts := map[string]map[string]int{}

	for _, doc := range docs {
		runDocs[doc.DocID] = true

		if !doc.DocTypeCorrect {
			report.ExcludedDocs = append(report.ExcludedDocs, doc.DocID)
			continue
		}

		fl, err := truthReg.Get(doc.FileMD5)
		if err != nil {
			return Report{}, err
		}

		byField := map[string]extract.Field{}
		if doc.Result != nil {
			for _, f := range doc.Result.Fields {
				byField[f.Name] = f
			}
		}

		for _, fieldName := range spec.AllFields() {
			label, ok := fl.Fields[fieldName]
			var outcome Outcome

			switch {
			case !ok || label.State == truth.StateUnlabeled:
				outcome = OutcomeUnlabeled
			case label.State == truth.StateUnverifiable:
				outcome = OutcomeUnverifiable
			case label.State == truth.StateLabeled:
				labeledDocs[doc.DocID] = true
				field, present := byField[fieldName]
				if !present || field.Status != extract.StatusPresent {
					outcome = OutcomeMissing
					missing++
					recordFailure(failureCounts, fieldName, "extractor_miss")
				} else if doctype.NormalizeForMatch(field.Value) == doctype.NormalizeForMatch(label.TruthValue) {
					outcome = OutcomeCorrect
					correct++
				} else {
					outcome = OutcomeIncorrect
					incorrect++
					recordFailure(failureCounts, fieldName, "incorrect")
				}

				if present && field.Provenance == nil {
					recordFailure(failureCounts, fieldName, "evidence_missing")
				}
			}

			if outcome == OutcomeUnverifiable {
				recordFailure(failureCounts, fieldName, "cannot_verify")
			}

			report.Comparisons = append(report.Comparisons, FieldComparison{
				DocID: doc.DocID, Field: fieldName, Outcome: outcome,
			})
		}
	}

	denominator := correct + incorrect + missing
	if denominator > 0 {
		report.Accuracy = float64(correct) / float64(denominator)
	}

	if totalDocsInScope > 0 {
		report.LabelCoverage = float64(len(labeledDocs)) / float64(totalDocsInScope)
		report.RunCoverage = float64(len(runDocs)) / float64(totalDocsInScope)
	}

	report.PriorityItems = buildPriorityItems(failureCounts)

	return report, nil
}

func recordFailure(counts map[string]map[string]int, field, mode string) {
	if counts[field] == nil {
		counts[field] = map[string]int{}
	}
	counts[field][mode]++
}

func buildPriorityItems(failureCounts map[string]map[string]int) []PriorityItem {
	items := make([]PriorityItem, 0, len(failureCounts))
	for field, counts := range failureCounts {
		score := 0.0
		for mode, count := range counts {
			score += priorityWeights[mode] * float64(count)
		}
		items = append(items, PriorityItem{Field: field, Score: score, Counts: counts})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Field < items[j].Field
	})
	return items
}
