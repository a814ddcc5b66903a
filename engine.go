package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/contextbuilder/contextbuilder/classify"
	"github.com/contextbuilder/contextbuilder/compliance"
	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/extract"
	"github.com/contextbuilder/contextbuilder/ingest"
	"github.com/contextbuilder/contextbuilder/llm"
	"github.com/contextbuilder/contextbuilder/orchestrator"
	"github.com/contextbuilder/contextbuilder/truth"
	"github.com/contextbuilder/contextbuilder/workspace"
)

// Engine is the main entry point for the ContextBuilder pipeline, wiring
// every core component (C1-C11) the way the teacher's goreason.Engine
// wires chunker/graph/retrieval/reasoning/store — here generalized to
// ingest/classify/extract/gate/orchestrator/truth/metrics/compliance.
type Engine struct {
	cfg Config

	Layout     workspace.Layout
	Catalog    *doctype.Catalog
	Ingest     *ingest.Registry
	Classifier *classify.Classifier
	Extractor  *extract.Extractor
	Truth      *truth.Registry
	Ledger     *compliance.Ledger

	visionFallback *ingest.VisionProvider
	ocrFallback    *ingest.TesseractProvider

	orch *orchestrator.Orchestrator
}

// New builds an Engine from cfg: resolves the workspace root, loads the
// doc type catalog, constructs the classifier/extractor LLM providers
// (each wrapped in a compliance.LLMAuditSink so every call is logged
// before a caller sees the response), opens the decision ledger backend,
// and wires the default ingestion providers.
func New(cfg Config) (*Engine, error) {
	root := cfg.ResolveWorkspaceRoot()
	layout := workspace.NewLayout(root)

	specsDir := cfg.SpecsDir
	if specsDir == "" {
		specsDir = layout.ConfigSpecsDir()
	}
	catalog, err := doctype.LoadCatalog(specsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogLoadFailed, err)
	}

	callStore := compliance.NewLLMCallFileStore(layout.LogsLLMCalls())

	classifierProvider, err := newAuditedProvider(cfg.Classifier, callStore)
	if err != nil {
		return nil, fmt.Errorf("contextbuilder: building classifier provider: %w", err)
	}
	extractorProvider, err := newAuditedProvider(cfg.Extractor, callStore)
	if err != nil {
		return nil, fmt.Errorf("contextbuilder: building extractor provider: %w", err)
	}

	ledgerStorage, err := newDecisionStorage(cfg, layout)
	if err != nil {
		return nil, fmt.Errorf("contextbuilder: building decision ledger: %w", err)
	}
	ledger := compliance.NewLedger(ledgerStorage)

	classifier := classify.New(classifierProvider, catalog, cfg.Classifier.Model)
	extractor := extract.New(extractorProvider, cfg.Extractor.Model, candidateWindowOrDefault(cfg.CandidateWindow))
	truthReg := truth.NewRegistry(layout)

	ingestRegistry := defaultIngestRegistry(cfg)

	var visionFallback *ingest.VisionProvider
	if cfg.Vision.Provider != "" {
		visionProvider, err := llm.NewProvider(toLLMConfig(cfg.Vision))
		if err != nil {
			return nil, fmt.Errorf("contextbuilder: building vision provider: %w", err)
		}
		if _, ok := visionProvider.(llm.VisionProvider); !ok {
			return nil, fmt.Errorf("contextbuilder: vision provider %q does not support image input", cfg.Vision.Provider)
		}
		audited := compliance.NewLLMAuditSink(visionProvider, callStore)
		visionFallback = ingest.NewVisionProvider(audited)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	orch := orchestrator.New(layout, ingestRegistry, catalog, classifier, extractor, truthReg, ledger, concurrency)

	return &Engine{
		cfg:            cfg,
		Layout:         layout,
		Catalog:        catalog,
		Ingest:         ingestRegistry,
		Classifier:     classifier,
		Extractor:      extractor,
		Truth:          truthReg,
		Ledger:         ledger,
		visionFallback: visionFallback,
		ocrFallback:    ingest.NewTesseractProvider(cfg.TesseractCmd),
		orch:           orch,
	}, nil
}

// RunClaim processes one claim's documents through the full pipeline,
// filling any unset model/threshold options from the engine's configured
// defaults.
func (e *Engine) RunClaim(ctx context.Context, claimID string, docs []orchestrator.DocInput, opts orchestrator.RunOptions) (*orchestrator.RunResult, error) {
	if opts.ClassifierModel == "" {
		opts.ClassifierModel = e.cfg.Classifier.Model
	}
	if opts.ExtractorModel == "" {
		opts.ExtractorModel = e.cfg.Extractor.Model
	}
	if opts.ClassifyLowConf == 0 {
		opts.ClassifyLowConf = e.cfg.ClassifyLowConfidence
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	bundleID, err := e.ensureVersionBundle(opts.RunID, opts)
	if err != nil {
		return nil, fmt.Errorf("contextbuilder: resolving version bundle: %w", err)
	}
	opts.VersionBundleID = bundleID

	return e.orch.RunClaim(ctx, claimID, docs, opts)
}

// ensureVersionBundle returns the bundle_id already on disk for runID, or
// builds and persists a fresh VersionBundle if this is the run's first
// claim (spec.md §4.11: one immutable bundle per run, created at run start,
// linked by every decision and extraction result it produces). Reusing the
// existing bundle instead of rebuilding it matters here because a single
// CLI invocation can call RunClaim once per claim under the same run_id —
// rebuilding would hand each claim a different bundle_id for what is
// supposed to be one run.
func (e *Engine) ensureVersionBundle(runID string, opts orchestrator.RunOptions) (string, error) {
	path := e.Layout.VersionBundlePath(runID)

	var existing compliance.VersionBundle
	if err := workspace.ReadJSON(path, &existing); err == nil {
		return existing.BundleID, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	catalogBytes, err := e.Catalog.CanonicalBytes()
	if err != nil {
		return "", fmt.Errorf("fingerprinting catalog: %w", err)
	}

	bundle := compliance.NewVersionBundle(runID, extract.ExtractorVersion, opts.ExtractorModel, []byte(extract.PromptVersion), catalogBytes)
	if err := workspace.WriteJSONAtomic(path, bundle); err != nil {
		return "", fmt.Errorf("writing version bundle: %w", err)
	}
	slog.Info("version bundle created", "run_id", runID, "bundle_id", bundle.BundleID, "git_state", compliance.FormatGitState(bundle))
	return bundle.BundleID, nil
}

// ResolveVisionFallback extracts text from pre-rendered page images using
// the vision-capable LLM fallback when one is configured, otherwise the
// local tesseract binary. Rasterizing a scanned page to an image is the
// responsibility of an external rendering front-end (out of scope here,
// spec.md §1 "PDF rendering front-ends") — this only consumes the
// resulting image bytes, the same contract ingest.VisionProvider and
// ingest.TesseractProvider already expose.
func (e *Engine) ResolveVisionFallback(ctx context.Context, images [][]byte, mimeType string) ([]doctext.Page, error) {
	if e.visionFallback != nil {
		return e.visionFallback.IngestImages(ctx, images, mimeType)
	}
	ext := strings.TrimPrefix(mimeType, "image/")
	return e.ocrFallback.IngestImages(ctx, images, ext)
}

// ErrorCodeOf converts one of orchestrator's local error-code strings
// back onto the typed ErrorCode constants. orchestrator cannot import
// this package (it would be an import cycle, since this package imports
// orchestrator), so it mirrors the taxonomy by value in
// orchestrator/state.go; this is where the two are reunited for a caller
// that wants the typed constant.
func ErrorCodeOf(code string) ErrorCode {
	return ErrorCode(code)
}

func candidateWindowOrDefault(w int) int {
	if w <= 0 {
		return 800
	}
	return w
}

func newAuditedProvider(cfg LLMConfig, store compliance.LLMCallStorage) (llm.Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("%w: llm provider not configured", ErrInvalidConfig)
	}
	inner, err := llm.NewProvider(toLLMConfig(cfg))
	if err != nil {
		return nil, err
	}
	return compliance.NewLLMAuditSink(inner, store), nil
}

func toLLMConfig(c LLMConfig) llm.Config {
	return llm.Config{
		Provider:        c.Provider,
		Model:           c.Model,
		BaseURL:         c.BaseURL,
		APIKey:          c.APIKey,
		AzureEndpoint:   c.AzureEndpoint,
		AzureDeployment: c.AzureDeployment,
		AzureAPIVersion: c.AzureAPIVersion,
	}
}

func newDecisionStorage(cfg Config, layout workspace.Layout) (compliance.DecisionStorage, error) {
	path := cfg.CompliancePath
	if path == "" {
		path = layout.LogsDecisions()
	}
	switch cfg.ComplianceBackend {
	case "", "file":
		return compliance.NewFileStore(path), nil
	case "encrypted_file":
		if cfg.ComplianceKeyPath == "" {
			return nil, fmt.Errorf("%w: encrypted_file backend requires compliance_key_path", ErrInvalidConfig)
		}
		kek, err := compliance.LoadKEK(cfg.ComplianceKeyPath)
		if err != nil {
			return nil, err
		}
		return compliance.NewEncryptedFileStore(path, kek), nil
	default:
		return nil, fmt.Errorf("%w: unknown compliance_backend %q", ErrInvalidConfig, cfg.ComplianceBackend)
	}
}

// defaultIngestRegistry wires the built-in ingestion providers by file
// format, letting a Document Intelligence endpoint override the native PDF
// provider when configured (spec.md §4.2: DI is the preferred provider for
// PDFs when available, native extraction is the fallback).
func defaultIngestRegistry(cfg Config) *ingest.Registry {
	reg := ingest.NewRegistry()
	reg.Register("pdf", &ingest.PDFProvider{})
	reg.Register("xlsx", &ingest.XLSXProvider{})
	reg.Register("xls", &ingest.XLSXProvider{})
	reg.Register("txt", &ingest.PlainTextProvider{})

	if cfg.DocumentIntelligence != nil {
		reg.Register("pdf", ingest.NewDIProvider(ingest.DIConfig{
			Endpoint: cfg.DocumentIntelligence.Endpoint,
			APIKey:   cfg.DocumentIntelligence.APIKey,
		}))
	}

	return reg
}
