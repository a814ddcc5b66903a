package orchestrator

import "github.com/contextbuilder/contextbuilder/gate"

// PhaseMetrics aggregates per-stage counters across every document in a run
// (spec.md §4.7 "Phase metrics").
type PhaseMetrics struct {
	Ingestion      IngestionPhase      `json:"ingestion"`
	Classification ClassificationPhase `json:"classification"`
	Extraction     ExtractionPhase     `json:"extraction"`
	QualityGate    QualityGatePhase    `json:"quality_gate"`
}

type IngestionPhase struct {
	Discovered int   `json:"discovered"`
	Ingested   int   `json:"ingested"`
	Skipped    int   `json:"skipped"` // reused, not re-ingested
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"duration_ms"`
}

type ClassificationPhase struct {
	Classified    int            `json:"classified"`
	LowConfidence int            `json:"low_confidence"`
	Distribution  map[string]int `json:"distribution"`
	DurationMS    int64          `json:"duration_ms"`
}

type ExtractionPhase struct {
	Attempted        int   `json:"attempted"`
	Succeeded        int   `json:"succeeded"`
	Failed           int   `json:"failed"`
	SkippedUnsupported int `json:"skipped_unsupported"`
	DurationMS       int64 `json:"duration_ms"`
}

type QualityGatePhase struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// aggregatePhases rolls up every doc's outcome into the run-level phase
// counters (spec.md §4.7).
func aggregatePhases(outcomes []DocOutcome) PhaseMetrics {
	phases := PhaseMetrics{
		Classification: ClassificationPhase{Distribution: map[string]int{}},
	}

	for _, o := range outcomes {
		phases.Ingestion.DurationMS += o.Timings.IngestionMS
		phases.Classification.DurationMS += o.Timings.ClassificationMS
		phases.Extraction.DurationMS += o.Timings.ExtractionMS

		phases.Ingestion.Discovered++
		switch {
		case o.FailedPhase == "ingestion":
			phases.Ingestion.Failed++
		case o.IngestionReused:
			phases.Ingestion.Skipped++
		case o.State == DocStateFailed && o.FailedPhase == "scheduling":
			// scheduling-level failure, never reached ingestion.
		default:
			phases.Ingestion.Ingested++
		}

		if o.DocType != "" {
			phases.Classification.Classified++
			phases.Classification.Distribution[o.DocType]++
			if o.LowConfidence {
				phases.Classification.LowConfidence++
			}
		}

		switch o.FailedPhase {
		case "ingestion":
			phases.Extraction.SkippedUnsupported++
		case "classification":
			// never reached extraction.
		case "extraction":
			phases.Extraction.Attempted++
			phases.Extraction.Failed++
		default:
			if o.GateStatus != "" {
				phases.Extraction.Attempted++
				phases.Extraction.Succeeded++
			}
		}

		switch o.GateStatus {
		case string(gate.StatusPass):
			phases.QualityGate.Pass++
		case string(gate.StatusWarn):
			phases.QualityGate.Warn++
		case string(gate.StatusFail):
			phases.QualityGate.Fail++
		}
	}

	return phases
}
