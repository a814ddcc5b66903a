package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/contextbuilder/contextbuilder/classify"
	"github.com/contextbuilder/contextbuilder/compliance"
	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/extract"
	"github.com/contextbuilder/contextbuilder/gate"
	"github.com/contextbuilder/contextbuilder/workspace"
)

// runDoc moves one document through discovered → ingesting → classifying →
// extracting → gating → done|failed, never returning an error itself — a
// document's failure is captured in its own DocOutcome so the run's other
// documents are unaffected (spec.md §4.7 "Per-doc isolation").
func (o *Orchestrator) runDoc(ctx context.Context, claimID, runID string, doc DocInput, opts RunOptions) DocOutcome {
	outcome := DocOutcome{DocID: doc.DocID, State: DocStateDiscovered}
	runStart := time.Now()
	defer func() { outcome.Timings.TotalMS = time.Since(runStart).Milliseconds() }()

	metaPath := o.layout.DocMetaPath(claimID, doc.DocID)
	meta, err := loadDocMeta(metaPath)
	if err != nil {
		return o.fail(outcome, "meta", ErrCodeUnknownException, err)
	}

	// --- Ingestion (C2) ---
	outcome.State = DocStateIngesting
	ingestStart := time.Now()
	docText, reused, err := o.ingestDoc(ctx, claimID, doc, &meta)
	outcome.Timings.IngestionMS = time.Since(ingestStart).Milliseconds()
	if err != nil {
		return o.fail(outcome, "ingestion", ErrCodeTextUnreadable, err)
	}
	outcome.IngestionReused = reused
	if docText.IsEmpty() {
		return o.fail(outcome, "ingestion", ErrCodeTextMissing, nil)
	}
	if opts.MaxStage == StageIngest {
		outcome.State = DocStateDone
		return outcome
	}

	// --- Classification (C4) ---
	outcome.State = DocStateClassifying
	classifyStart := time.Now()
	classifyResult, reusedClassify, err := o.classifyDoc(ctx, claimID, docText, doc, opts, &meta)
	outcome.Timings.ClassificationMS = time.Since(classifyStart).Milliseconds()
	if err != nil {
		return o.fail(outcome, "classification", ErrCodeClassifyException, err)
	}
	outcome.ClassificationReused = reusedClassify
	outcome.DocType = classifyResult.DocType
	outcome.DocTypeConfidence = classifyResult.DocTypeConfidence
	outcome.LowConfidence = classifyResult.DocTypeConfidence < opts.ClassifyLowConf

	spec, err := o.catalog.Get(classifyResult.DocType)
	if err != nil {
		return o.fail(outcome, "classification", ErrCodeUnknownException, err)
	}
	specHash, err := spec.Hash()
	if err != nil {
		return o.fail(outcome, "classification", ErrCodeUnknownException, err)
	}
	if opts.MaxStage == StageClassify {
		outcome.State = DocStateDone
		return outcome
	}

	// --- Extraction (C5) ---
	outcome.State = DocStateExtracting
	extractStart := time.Now()
	extractResult, err := o.extractor.Extract(ctx, docText, spec)
	outcome.Timings.ExtractionMS = time.Since(extractStart).Milliseconds()
	if err != nil {
		code := ErrCodeExtractException
		if extractResult != nil {
			outcome.NeedsVisionFallback = extractResult.NeedsVisionFallback
		}
		failedEnvelope := o.buildResultEnvelope(runID, claimID, doc.DocID, opts, classifyResult, meta, docText,
			gate.Result{Status: gate.StatusFail, Reasons: []string{"extraction_failed"}}, nil)
		o.writeResultEnvelope(claimID, runID, doc.DocID, failedEnvelope)
		return o.failExtraction(outcome, code, err)
	}
	outcome.NeedsVisionFallback = extractResult.NeedsVisionFallback

	// --- Quality Gate (C6) ---
	outcome.State = DocStateGating
	gateResult := gate.Evaluate(extractResult, spec)
	outcome.GateStatus = string(gateResult.Status)
	outcome.GateReasons = gateResult.Reasons

	meta.DocType = classifyResult.DocType
	meta.DocTypeConfidence = classifyResult.DocTypeConfidence
	meta.Language = classifyResult.Language
	meta.ClassifierModel = opts.ClassifierModel
	meta.ExtractionSpecHash = specHash
	meta.ExtractorModel = opts.ExtractorModel
	if err := workspace.WriteJSONAtomic(metaPath, meta); err != nil {
		return o.fail(outcome, "output_write", ErrCodeOutputWriteFailed, err)
	}

	envelope := o.buildResultEnvelope(runID, claimID, doc.DocID, opts, classifyResult, meta, docText, gateResult, extractResult)

	outputPath := o.layout.ClaimRunExtractionOutput(claimID, runID, doc.DocID)
	if err := workspace.WriteJSONAtomic(outputPath, envelope); err != nil {
		return o.fail(outcome, "output_write", ErrCodeOutputWriteFailed, err)
	}
	cachePath := o.layout.DocExtractionCache(claimID, doc.DocID)
	if err := workspace.WriteJSONAtomic(cachePath, envelope); err != nil {
		return o.fail(outcome, "output_write", ErrCodeOutputWriteFailed, err)
	}

	o.recordDecision(claimID, doc.DocID, "quality_gate", compliance.Rationale{
		Summary: "quality gate evaluated extraction result",
	}, map[string]any{"status": gateResult.Status, "reasons": gateResult.Reasons}, opts.VersionBundleID)

	outcome.State = DocStateDone
	return outcome
}

// buildResultEnvelope assembles the full extraction_result_v1 envelope for
// one document (spec.md §3). extractResult may be nil on a failed
// extraction, in which case fields is left empty per spec.md §4.5.
func (o *Orchestrator) buildResultEnvelope(runID, claimID, docID string, opts RunOptions, classifyResult *classify.Result, meta DocMeta, docText *doctext.DocText, gateResult gate.Result, extractResult *extract.Result) ExtractionResultV1 {
	fields := []extract.Field{}
	if extractResult != nil {
		fields = extractResult.Fields
	}

	return ExtractionResultV1{
		SchemaVersion: extractionSchemaVersion,
		Run: ResultRun{
			RunID:            runID,
			ExtractorVersion: extract.ExtractorVersion,
			Model:            opts.ExtractorModel,
			PromptVersion:    extract.PromptVersion,
			InputHashes: ResultInputHashes{
				PDFMD5:  meta.SourceMD5,
				TextMD5: meta.TextMD5,
			},
		},
		Doc: ResultDoc{
			DocID:             docID,
			ClaimID:           claimID,
			DocType:           classifyResult.DocType,
			DocTypeConfidence: classifyResult.DocTypeConfidence,
			Language:          classifyResult.Language,
			PageCount:         docText.PageCount,
		},
		Fields:          fields,
		QualityGate:     gateResult,
		VersionBundleID: opts.VersionBundleID,
	}
}

// writeResultEnvelope persists env to both the run-scoped output and the
// doc's extraction cache. It is best-effort: a write failure here doesn't
// change the document's already-determined failed outcome, so the error
// is discarded rather than overriding the primary failure code.
func (o *Orchestrator) writeResultEnvelope(claimID, runID, docID string, env ExtractionResultV1) {
	_ = workspace.WriteJSONAtomic(o.layout.ClaimRunExtractionOutput(claimID, runID, docID), env)
	_ = workspace.WriteJSONAtomic(o.layout.DocExtractionCache(claimID, docID), env)
}

// fail finalizes outcome as a failure at the given phase, recording a
// stable error code and message without aborting the run (spec.md §4.7
// "on failure, failed_phase and error_code are set and subsequent stages
// skipped; the doc remains part of the run's aggregates").
func (o *Orchestrator) fail(outcome DocOutcome, phase, code string, err error) DocOutcome {
	outcome.State = DocStateFailed
	outcome.FailedPhase = phase
	outcome.ErrorCode = code
	if err != nil {
		outcome.ErrorMessage = err.Error()
	}
	return outcome
}

// failExtraction maps extract.Extract's sentinel errors onto the stable
// taxonomy (ErrSchemaInvalid vs. the general exception code).
func (o *Orchestrator) failExtraction(outcome DocOutcome, defaultCode string, err error) DocOutcome {
	if isSchemaInvalid(err) {
		return o.fail(outcome, "extraction", ErrCodeExtractSchemaInvalid, err)
	}
	return o.fail(outcome, "extraction", defaultCode, err)
}

func isSchemaInvalid(err error) bool {
	return errors.Is(err, extract.ErrSchemaInvalid)
}

// ingestDoc dispatches to the configured ingest.Provider for doc's source
// format, reusing a prior doc_text_v1 when possible (spec.md §4.7 "Reuse
// detection").
func (o *Orchestrator) ingestDoc(ctx context.Context, claimID string, doc DocInput, meta *DocMeta) (*doctext.DocText, bool, error) {
	format := sourceFormat(doc.SourcePath)
	provider, err := o.ingest.Get(format)
	if err != nil {
		return nil, false, err
	}

	sourceMD5, err := fileMD5(doc.SourcePath)
	if err != nil {
		return nil, false, err
	}

	if canReuseIngestion(*meta, sourceMD5, format) {
		var cached doctext.DocText
		textPath := o.layout.DocTextPath(claimID, doc.DocID)
		if err := workspace.ReadJSON(textPath, &cached); err == nil {
			return &cached, true, nil
		}
		// Cache miss despite meta saying it should exist — fall through
		// and re-ingest rather than fail the document.
	}

	pages, err := provider.Ingest(ctx, doc.SourcePath)
	if err != nil {
		return nil, false, err
	}
	docText := doctext.New(doc.DocID, pages)
	if err := docText.Validate(); err != nil {
		return nil, false, err
	}

	textPath := o.layout.DocTextPath(claimID, doc.DocID)
	if err := workspace.WriteJSONAtomic(textPath, docText); err != nil {
		return nil, false, err
	}

	meta.SourceMD5 = sourceMD5
	meta.IngestProvider = format
	meta.TextMD5 = textMD5(docText)
	meta.SourcePath = doc.SourcePath
	meta.DocID = doc.DocID

	return docText, false, nil
}

// classifyDoc runs the classifier, reusing a prior route when the text and
// classifier model are unchanged since the last run.
func (o *Orchestrator) classifyDoc(ctx context.Context, claimID string, docText *doctext.DocText, doc DocInput, opts RunOptions, meta *DocMeta) (*classify.Result, bool, error) {
	currentTextMD5 := textMD5(docText)
	if canReuseClassification(*meta, currentTextMD5, opts.ClassifierModel) {
		return &classify.Result{
			DocType:           meta.DocType,
			DocTypeConfidence: meta.DocTypeConfidence,
			Language:          meta.Language,
		}, true, nil
	}

	result, err := o.classifier.Classify(ctx, docText, filenameOf(doc.SourcePath))
	if err != nil {
		return nil, false, err
	}

	o.recordDecision(claimID, doc.DocID, "classification", compliance.Rationale{
		Summary:      result.Summary,
		Confidence:   &result.DocTypeConfidence,
		EvidenceRefs: result.Signals,
	}, map[string]any{"doc_type": result.DocType}, opts.VersionBundleID)

	return result, false, nil
}

func filenameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// recordDecision appends a decision record to the ledger. Ledger may be
// nil in tests/dry runs that don't exercise compliance; a nil ledger is a
// silent no-op rather than a required dependency everywhere.
func (o *Orchestrator) recordDecision(claimID, docID, decisionType string, rationale compliance.Rationale, outcome map[string]any, versionBundleID string) {
	if o.ledger == nil {
		return
	}
	_, _ = o.ledger.Append(compliance.DecisionRecord{
		DecisionType:    decisionType,
		ClaimID:         claimID,
		DocID:           docID,
		ActorType:       "system",
		ActorID:         "contextbuilder-orchestrator",
		Rationale:       rationale,
		Outcome:         outcome,
		VersionBundleID: versionBundleID,
	})
}
