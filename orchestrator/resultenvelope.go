package orchestrator

import (
	"github.com/contextbuilder/contextbuilder/extract"
	"github.com/contextbuilder/contextbuilder/gate"
)

// ExtractionResultV1 is the full on-disk envelope the orchestrator writes
// for every document that reaches the extraction stage — even on failure
// (spec.md §3 "extraction_result_v1" / §4.5 "the orchestrator always
// writes an extraction_result_v1 — even on failure — with status=fail,
// reasons, and empty fields"). This, not the bare per-field extract.Result,
// is what ClaimRunExtractionOutput/DocExtractionCache hold on disk.
type ExtractionResultV1 struct {
	SchemaVersion   string          `json:"schema_version"`
	Run             ResultRun       `json:"run"`
	Doc             ResultDoc       `json:"doc"`
	Fields          []extract.Field `json:"fields"`
	QualityGate     gate.Result     `json:"quality_gate"`
	VersionBundleID string          `json:"version_bundle_id,omitempty"`
}

// ResultInputHashes names the two content hashes an extraction_result_v1
// is reproducible from: the raw source bytes and the canonical text C2
// produced from them.
type ResultInputHashes struct {
	PDFMD5  string `json:"pdf_md5"`
	TextMD5 string `json:"text_md5"`
}

// ResultRun is the run{} block of an extraction_result_v1.
type ResultRun struct {
	RunID            string            `json:"run_id"`
	ExtractorVersion string            `json:"extractor_version"`
	Model            string            `json:"model"`
	PromptVersion    string            `json:"prompt_version"`
	InputHashes      ResultInputHashes `json:"input_hashes"`
}

// ResultDoc is the doc{} block of an extraction_result_v1.
type ResultDoc struct {
	DocID             string  `json:"doc_id"`
	ClaimID           string  `json:"claim_id"`
	DocType           string  `json:"doc_type,omitempty"`
	DocTypeConfidence float64 `json:"doc_type_confidence,omitempty"`
	Language          string  `json:"language,omitempty"`
	PageCount         int     `json:"page_count"`
}

// extractionSchemaVersion is the schema_version stamped on every
// extraction_result_v1 (spec.md §3).
const extractionSchemaVersion = "extraction_result_v1"
