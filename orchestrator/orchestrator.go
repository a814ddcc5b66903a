package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/contextbuilder/contextbuilder/classify"
	"github.com/contextbuilder/contextbuilder/compliance"
	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/doctype"
	"github.com/contextbuilder/contextbuilder/extract"
	"github.com/contextbuilder/contextbuilder/gate"
	"github.com/contextbuilder/contextbuilder/ingest"
	"github.com/contextbuilder/contextbuilder/truth"
	"github.com/contextbuilder/contextbuilder/workspace"
)

// ErrRunExists is returned by RunClaim when a run folder already exists
// and Force was not set (spec.md §4.7 "--force required to overwrite an
// existing run folder").
var ErrRunExists = errors.New("orchestrator: run folder already exists, use Force to overwrite")

// DocInput names one source document to process within a claim run.
type DocInput struct {
	DocID      string
	SourcePath string
}

// Stage names a point in the per-doc pipeline, used by RunOptions.MaxStage
// to cut a run short (the CLI's `--stages` flag, spec.md §6).
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageClassify  Stage = "classify"
	StageExtract   Stage = "extract" // includes the quality gate, spec.md §3 "extraction_result_v1" embeds quality_gate
)

// RunOptions configures a single RunClaim invocation.
type RunOptions struct {
	RunID           string // defaults to a generated UUID if empty
	Force           bool
	ClassifierModel string
	ExtractorModel  string
	ClassifyLowConf float64

	// MaxStage stops each document after the named stage completes
	// successfully, leaving the outcome DocStateDone with later fields
	// unset. Empty means run the full pipeline (the default).
	MaxStage Stage

	// VersionBundleID is stamped onto every decision record and the
	// extraction_result_v1 envelope this run produces (spec.md §4.11).
	// Engine.RunClaim resolves/creates the run's VersionBundle before
	// delegating here; callers that construct an Orchestrator directly
	// (e.g. tests) may leave it empty.
	VersionBundleID string
}

// Orchestrator sequences C2 (ingestion) → C4 (classification) → C5
// (extraction) → C6 (quality gate) for every document in a claim run,
// writing artifacts atomically through workspace and logging every
// decision through compliance.Ledger (spec.md §4.7).
type Orchestrator struct {
	layout      workspace.Layout
	ingest      *ingest.Registry
	catalog     *doctype.Catalog
	classifier  *classify.Classifier
	extractor   *extract.Extractor
	truthReg    *truth.Registry
	ledger      *compliance.Ledger
	concurrency int64
}

// New creates an Orchestrator. concurrency bounds how many documents within
// a single claim run are processed in parallel (spec.md §4.7, teacher's
// graph.Builder per-chunk fan-out shape — here via errgroup+semaphore
// instead of a hand-rolled channel).
func New(layout workspace.Layout, ingestRegistry *ingest.Registry, catalog *doctype.Catalog, classifier *classify.Classifier, extractor *extract.Extractor, truthReg *truth.Registry, ledger *compliance.Ledger, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		layout:      layout,
		ingest:      ingestRegistry,
		catalog:     catalog,
		classifier:  classifier,
		extractor:   extractor,
		truthReg:    truthReg,
		ledger:      ledger,
		concurrency: int64(concurrency),
	}
}

// RunResult is the outcome of one claim run: a manifest and the aggregated
// phase metrics, ready to be written to manifest.json/summary.json/
// metrics.json (spec.md §4.8).
type RunResult struct {
	ClaimRunID string
	ClaimID    string
	StartedAt  string
	FinishedAt string
	Docs       []DocOutcome
	Phases     PhaseMetrics
}

// RunClaim processes every doc in docs against claimID, writing artifacts
// under ClaimRunDir(claimID, runID) and marking the run complete only
// after every artifact has been flushed (spec.md §4.7 "Atomic artifacts").
func (o *Orchestrator) RunClaim(ctx context.Context, claimID string, docs []DocInput, opts RunOptions) (*RunResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	runDir := o.layout.ClaimRunDir(claimID, runID)
	if workspace.IsComplete(runDir) && !opts.Force {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runDir)
	}

	started := time.Now().UTC()

	outcomes := make([]DocOutcome, len(docs))
	sem := semaphore.NewWeighted(o.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes[i] = DocOutcome{DocID: doc.DocID, State: DocStateFailed, FailedPhase: "scheduling", ErrorMessage: err.Error()}
				return nil // per-doc isolation: scheduling failure doesn't abort the run
			}
			defer sem.Release(1)

			outcomes[i] = o.runDoc(gctx, claimID, runID, doc, opts)
			return nil
		})
	}
	// g.Wait()'s error is always nil by construction above (every doc
	// failure is captured in its own DocOutcome, never propagated as a
	// group error), so a single slow/cancelled document can't take down
	// the others' already-recorded outcomes.
	_ = g.Wait()

	finished := time.Now().UTC()
	phases := aggregatePhases(outcomes)

	result := &RunResult{
		ClaimRunID: runID,
		ClaimID:    claimID,
		StartedAt:  started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		Docs:       outcomes,
		Phases:     phases,
	}

	if err := o.writeRunArtifacts(claimID, runID, result); err != nil {
		return result, fmt.Errorf("orchestrator: writing run artifacts: %w", err)
	}

	return result, nil
}

// writeRunArtifacts persists manifest.json and marks the claim run complete
// only once it has been written (spec.md §4.7 ".complete sentinel created
// only after manifest+summary+metrics+logs are all flushed" — this
// orchestrator's per-claim run has only a manifest; summary.json/
// metrics.json belong to the global run a CLI-level aggregator writes
// across claims).
func (o *Orchestrator) writeRunArtifacts(claimID, runID string, result *RunResult) error {
	manifestPath := o.layout.ClaimRunManifest(claimID, runID)
	if err := workspace.WriteJSONAtomic(manifestPath, result); err != nil {
		return err
	}
	return workspace.MarkComplete(o.layout.ClaimRunCompleteDir(claimID, runID))
}

// sourceFormat returns the lowercase extension (without the dot) used to
// dispatch to an ingest.Provider.
func sourceFormat(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
