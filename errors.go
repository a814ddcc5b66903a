package contextbuilder

import "errors"

// ErrorCode is the stable error taxonomy from spec.md §7. It is
// machine-readable and appears verbatim in persisted artifacts
// (summary.json's per-doc error_code field, extraction_result_v1.quality_gate
// reasons, etc).
type ErrorCode string

const (
	ErrCodeDocNotSupported     ErrorCode = "DOC_NOT_SUPPORTED"
	ErrCodeTextMissing         ErrorCode = "TEXT_MISSING"
	ErrCodeTextUnreadable      ErrorCode = "TEXT_UNREADABLE"
	ErrCodeClassifyLowConf     ErrorCode = "CLASSIFY_LOW_CONF"
	ErrCodeClassifyException   ErrorCode = "CLASSIFY_EXCEPTION"
	ErrCodeExtractSchemaInvalid ErrorCode = "EXTRACT_SCHEMA_INVALID"
	ErrCodeExtractException    ErrorCode = "EXTRACT_EXCEPTION"
	ErrCodeOutputWriteFailed   ErrorCode = "OUTPUT_WRITE_FAILED"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"
	ErrCodeConfigMissing       ErrorCode = "CONFIG_MISSING"
	ErrCodeUnknownException    ErrorCode = "UNKNOWN_EXCEPTION"
)

// CodedError attaches a stable ErrorCode to an underlying error so that
// orchestrator stages can record failed_phase+error_code without string
// matching (spec.md §7 "Propagation policy").
type CodedError struct {
	Code ErrorCode
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// NewCodedError wraps err with a stable error code.
func NewCodedError(code ErrorCode, err error) *CodedError {
	return &CodedError{Code: code, Err: err}
}

// CodeOf extracts the ErrorCode from err if it (or something it wraps) is a
// *CodedError, otherwise returns ErrCodeUnknownException.
func CodeOf(err error) ErrorCode {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeUnknownException
}

var (
	// ErrDocumentNotFound is returned when a doc_id does not exist in a claim.
	ErrDocumentNotFound = errors.New("contextbuilder: document not found")

	// ErrClaimNotFound is returned when a claim_id does not exist in the workspace.
	ErrClaimNotFound = errors.New("contextbuilder: claim not found")

	// ErrRunNotFound is returned when a run_id does not exist or lacks .complete.
	ErrRunNotFound = errors.New("contextbuilder: run not found or not committed")

	// ErrRunExists is returned when a run folder already exists and --force
	// was not supplied (spec.md §4.7).
	ErrRunExists = errors.New("contextbuilder: run folder already exists, use --force to overwrite")

	// ErrUnsupportedFormat is returned for unrecognized source mime/extension.
	ErrUnsupportedFormat = errors.New("contextbuilder: unsupported document format")

	// ErrIngestionFailed is returned when no ingestion provider could
	// produce a doc_text_v1 for a source.
	ErrIngestionFailed = errors.New("contextbuilder: ingestion failed")

	// ErrLLMUnavailable is returned when the LLM provider is unreachable.
	ErrLLMUnavailable = errors.New("contextbuilder: LLM provider unavailable")

	// ErrLLMRequestFailed is returned when an LLM request fails after retries.
	ErrLLMRequestFailed = errors.New("contextbuilder: LLM request failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("contextbuilder: invalid configuration")

	// ErrSpecInvalid is returned when a DocTypeSpec fails fail-fast loader
	// validation (spec.md §4.3): empty required_fields, duplicate field
	// names, unknown normalizer/validator, or missing gate thresholds.
	ErrSpecInvalid = errors.New("contextbuilder: doc type spec invalid")

	// ErrCatalogLoadFailed is a fatal-per-run error (spec.md §7): the spec
	// catalog could not load, so no run artifacts (including .complete)
	// may be written.
	ErrCatalogLoadFailed = errors.New("contextbuilder: doc type catalog failed to load")

	// ErrLedgerTamper names a decision-ledger integrity failure. The
	// compliance package reports one through its own
	// compliance.ErrLedgerTamper or through VerifyResult; no function in
	// this module returns this value.
	ErrLedgerTamper = errors.New("contextbuilder: decision ledger hash chain broken")

	// ErrTruthStateInvalid is returned when a label_v2 violates the state
	// machine invariants (LABELED without truth_value, UNVERIFIABLE
	// without unverifiable_reason).
	ErrTruthStateInvalid = errors.New("contextbuilder: ground-truth label state invalid")

	// ErrWorkspaceClosed is returned when operating on a closed workspace.
	ErrWorkspaceClosed = errors.New("contextbuilder: workspace is closed")
)
