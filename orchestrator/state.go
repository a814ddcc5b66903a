// Package orchestrator implements the pipeline orchestrator (C7): it
// sequences ingestion (C2), classification (C4), extraction (C5), and the
// quality gate (C6) per document, in per-claim runs, writing every
// artifact atomically through workspace/ and logging every decision
// through compliance/.
package orchestrator

// DocState is one step of the per-doc state machine (spec.md §4.7):
// discovered → ingesting → classifying → extracting → gating → done|failed.
type DocState string

const (
	DocStateDiscovered   DocState = "discovered"
	DocStateIngesting    DocState = "ingesting"
	DocStateClassifying  DocState = "classifying"
	DocStateExtracting   DocState = "extracting"
	DocStateGating       DocState = "gating"
	DocStateDone         DocState = "done"
	DocStateFailed       DocState = "failed"
)

// DocTimings records per-doc stage durations (spec.md §4.7 "Per-doc
// timings{ingestion_ms, classification_ms, extraction_ms, total_ms}").
type DocTimings struct {
	IngestionMS     int64 `json:"ingestion_ms"`
	ClassificationMS int64 `json:"classification_ms"`
	ExtractionMS    int64 `json:"extraction_ms"`
	TotalMS         int64 `json:"total_ms"`
}

// DocOutcome is one document's final state after a run attempts to move it
// through the pipeline. It is always produced, even on failure — a single
// document failing must not remove it from the run's aggregates (spec.md
// §4.7 "Per-doc isolation").
type DocOutcome struct {
	DocID                string     `json:"doc_id"`
	State                DocState   `json:"state"`
	FailedPhase          string     `json:"failed_phase,omitempty"`
	ErrorCode            string     `json:"error_code,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	IngestionReused      bool       `json:"ingestion_reused"`
	ClassificationReused bool       `json:"classification_reused"`
	DocType              string     `json:"doc_type,omitempty"`
	DocTypeConfidence    float64    `json:"doc_type_confidence,omitempty"`
	LowConfidence        bool       `json:"low_confidence"`
	GateStatus           string     `json:"gate_status,omitempty"`
	GateReasons          []string   `json:"gate_reasons,omitempty"`
	NeedsVisionFallback  bool       `json:"needs_vision_fallback"`
	Timings              DocTimings `json:"timings"`
}

// Error code strings mirror the stable taxonomy in the root package's
// errors.go (ErrorCode) by value, not by import — orchestrator sits below
// the root package in the dependency graph, so it can't reference that
// type directly. engine.go maps these strings back onto contextbuilder.ErrorCode
// for callers that want the typed constant.
const (
	ErrCodeTextMissing          = "TEXT_MISSING"
	ErrCodeTextUnreadable       = "TEXT_UNREADABLE"
	ErrCodeClassifyException    = "CLASSIFY_EXCEPTION"
	ErrCodeExtractSchemaInvalid = "EXTRACT_SCHEMA_INVALID"
	ErrCodeExtractException     = "EXTRACT_EXCEPTION"
	ErrCodeOutputWriteFailed    = "OUTPUT_WRITE_FAILED"
	ErrCodeUnknownException     = "UNKNOWN_EXCEPTION"
)
