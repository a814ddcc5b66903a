package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	contextbuilder "github.com/contextbuilder/contextbuilder"
	"github.com/contextbuilder/contextbuilder/extract"
	"github.com/contextbuilder/contextbuilder/metrics"
	"github.com/contextbuilder/contextbuilder/orchestrator"
	"github.com/contextbuilder/contextbuilder/workspace"
)

// claimList implements flag.Value for a repeatable/comma-joined --claims flag.
type claimList []string

func (c *claimList) String() string { return strings.Join(*c, ",") }
func (c *claimList) Set(val string) error {
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*c = append(*c, part)
		}
	}
	return nil
}

func cmdPipelineRun(args []string) int {
	fs := flag.NewFlagSet("pipeline run", flag.ContinueOnError)
	input := fs.String("input", "", "Path to a directory of per-claim source documents")
	workspaceID := fs.String("workspace", "default", "Workspace id")
	var claims claimList
	fs.Var(&claims, "claims", "Comma-separated claim ids to restrict the run to (default: all under --input)")
	stages := fs.String("stages", "ingest,classify,extract", "Comma-separated stages to run: ingest,classify,extract")
	classifierModel := fs.String("classifier-model", "", "Override the configured classifier model")
	extractorModel := fs.String("extractor-model", "", "Override the configured extractor model")
	runID := fs.String("run-id", "", "Explicit run id (default: generated)")
	force := fs.Bool("force", false, "Overwrite an existing run folder")
	wantMetrics := fs.Bool("metrics", true, "Compute metrics.json against the ground-truth registry after the run")
	noMetrics := fs.Bool("no-metrics", false, "Skip computing metrics.json (same as --metrics=false)")
	dryRun := fs.Bool("dry-run", false, "Discover and log what would run without writing artifacts")
	configPath := fs.String("config", "", "Path to a JSON config file")

	if err := fs.Parse(args); err != nil {
		return exitUserErr
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "pipeline run: --input is required")
		return exitUserErr
	}
	if *noMetrics {
		*wantMetrics = false
	}

	maxStage, err := parseMaxStage(*stages)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline run:", err)
		return exitUserErr
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline run:", err)
		return exitUserErr
	}
	cfg.WorkspaceID = *workspaceID

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	claimIDs, claimFiles, err := discoverClaims(*input, claims)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline run:", err)
		return exitUserErr
	}
	if len(claimIDs) == 0 {
		fmt.Fprintln(os.Stderr, "pipeline run: no claims found under", *input)
		return exitUserErr
	}

	if *dryRun {
		for _, claimID := range claimIDs {
			fmt.Printf("claim %s: %d document(s)\n", claimID, len(claimFiles[claimID]))
		}
		return exitSuccess
	}

	eng, err := contextbuilder.New(cfg)
	if err != nil {
		slog.Error("building engine", "error", err)
		return exitFatal
	}

	globalRunID := *runID
	if globalRunID == "" {
		globalRunID = newRunID()
	}

	opts := orchestrator.RunOptions{
		RunID:           globalRunID,
		Force:           *force,
		ClassifierModel: *classifierModel,
		ExtractorModel:  *extractorModel,
		MaxStage:        maxStage,
	}

	summary := globalRunSummary{RunID: globalRunID, StartedAt: time.Now().UTC().Format(time.RFC3339)}
	var anyFailed, anyFatal, cancelled bool

	for _, claimID := range claimIDs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		docs, err := materializeDocInputs(eng.Layout, claimID, claimFiles[claimID])
		if err != nil {
			slog.Error("materializing claim documents", "claim_id", claimID, "error", err)
			anyFatal = true
			continue
		}

		result, err := eng.RunClaim(ctx, claimID, docs, opts)
		if err != nil {
			slog.Error("running claim", "claim_id", claimID, "error", err)
			if errors.Is(err, orchestrator.ErrRunExists) {
				return exitUserErr
			}
			anyFatal = true
			continue
		}
		if ctx.Err() != nil {
			cancelled = true
		}

		failed := 0
		for _, d := range result.Docs {
			if d.State == orchestrator.DocStateFailed {
				failed++
			}
		}
		if failed > 0 {
			anyFailed = true
		}
		summary.Claims = append(summary.Claims, claimRunSummary{
			ClaimID:    claimID,
			ClaimRunID: globalRunID,
			DocCount:   len(result.Docs),
			Failed:     failed,
		})

		fmt.Printf("claim %s: run %s — %d doc(s), %d failed\n", claimID, globalRunID, len(result.Docs), failed)
	}

	summary.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if err := writeGlobalRun(eng.Layout, globalRunID, summary); err != nil {
		slog.Error("writing global run manifest", "error", err)
		anyFatal = true
	}

	if *wantMetrics {
		if err := writeGlobalMetrics(eng, globalRunID, claimIDs, claimFiles); err != nil {
			slog.Error("computing metrics", "error", err)
		}
	}

	switch {
	case cancelled:
		return exitCancel
	case anyFatal && len(summary.Claims) == 0:
		return exitFatal
	case anyFailed:
		return exitPartial
	default:
		return exitSuccess
	}
}

func parseMaxStage(stages string) (orchestrator.Stage, error) {
	order := []orchestrator.Stage{orchestrator.StageIngest, orchestrator.StageClassify, orchestrator.StageExtract}
	requested := map[orchestrator.Stage]bool{}
	for _, s := range strings.Split(stages, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		stage := orchestrator.Stage(s)
		found := false
		for _, o := range order {
			if o == stage {
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("unknown stage %q (expected ingest, classify, extract)", s)
		}
		requested[stage] = true
	}
	if len(requested) == 0 {
		return "", fmt.Errorf("--stages must name at least one stage")
	}

	max := order[0]
	for _, o := range order {
		if requested[o] {
			max = o
		}
	}
	return max, nil
}

func newRunID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return time.Now().UTC().Format("20060102T150405Z") + "_" + hex.EncodeToString(buf[:])
}

type claimRunSummary struct {
	ClaimID    string `json:"claim_id"`
	ClaimRunID string `json:"claim_run_id"`
	DocCount   int    `json:"doc_count"`
	Failed     int    `json:"failed"`
}

type globalRunSummary struct {
	RunID      string            `json:"run_id"`
	StartedAt  string            `json:"started_at"`
	FinishedAt string            `json:"finished_at"`
	Claims     []claimRunSummary `json:"claims"`
}

// writeGlobalRun persists the manifest/summary pair for a global (possibly
// multi-claim) invocation under GlobalRunDir (spec.md §3 "global ...
// run IDs ... a global run references per-claim run folders via manifest").
func writeGlobalRun(layout workspace.Layout, runID string, summary globalRunSummary) error {
	if err := workspace.WriteJSONAtomic(layout.GlobalRunManifest(runID), summary); err != nil {
		return err
	}
	return workspace.WriteJSONAtomic(layout.GlobalRunSummary(runID), summary)
}

// writeGlobalMetrics scores every completed document in this global run
// against the ground-truth registry, grouped by doc_type since
// metrics.Compute operates against one DocTypeSpec at a time, and merges
// the per-type reports into one metrics.json.
func writeGlobalMetrics(eng *contextbuilder.Engine, runID string, claimIDs []string, claimFiles map[string][]string) error {
	byType := map[string][]metrics.DocExtraction{}

	for _, claimID := range claimIDs {
		for _, src := range claimFiles[claimID] {
			docID, err := fileMD5Hex(src)
			if err != nil {
				continue
			}
			var meta orchestrator.DocMeta
			if err := workspace.ReadJSON(eng.Layout.DocMetaPath(claimID, docID), &meta); err != nil {
				continue
			}
			if meta.DocType == "" {
				continue
			}
			var envelope orchestrator.ExtractionResultV1
			if err := workspace.ReadJSON(eng.Layout.DocExtractionCache(claimID, docID), &envelope); err != nil {
				continue
			}
			byType[meta.DocType] = append(byType[meta.DocType], metrics.DocExtraction{
				DocID:          docID,
				FileMD5:        meta.SourceMD5,
				DocTypeCorrect: true,
				Result:         &extract.Result{Fields: envelope.Fields},
			})
		}
	}

	reports := map[string]metrics.Report{}
	for docType, docs := range byType {
		spec, err := eng.Catalog.Get(docType)
		if err != nil {
			continue
		}
		report, err := metrics.Compute(docs, eng.Truth, spec, len(docs))
		if err != nil {
			return err
		}
		reports[docType] = report
	}

	return workspace.WriteJSONAtomic(eng.Layout.GlobalRunMetrics(runID), reports)
}

func cmdPipelineRuns(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "pipeline runs: expected \"list\" or \"show\"")
		return exitUserErr
	}

	fs := flag.NewFlagSet("pipeline runs", flag.ContinueOnError)
	workspaceID := fs.String("workspace", "default", "Workspace id")
	configPath := fs.String("config", "", "Path to a JSON config file")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUserErr
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline runs:", err)
		return exitUserErr
	}
	cfg.WorkspaceID = *workspaceID
	layout := workspace.NewLayout(cfg.ResolveWorkspaceRoot())

	switch args[0] {
	case "list":
		return listRuns(layout)
	case "show":
		if fs.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "pipeline runs show: a run_id is required")
			return exitUserErr
		}
		return showRun(layout, fs.Arg(0))
	default:
		fmt.Fprintln(os.Stderr, "pipeline runs: expected \"list\" or \"show\"")
		return exitUserErr
	}
}

func listRuns(layout workspace.Layout) int {
	runsDir := filepath.Join(layout.Root, "runs")
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		fmt.Println("no runs yet")
		return exitSuccess
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline runs list:", err)
		return exitFatal
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Println(n)
	}
	return exitSuccess
}

func showRun(layout workspace.Layout, runID string) int {
	var summary globalRunSummary
	if err := workspace.ReadJSON(layout.GlobalRunSummary(runID), &summary); err != nil {
		fmt.Fprintln(os.Stderr, "pipeline runs show:", err)
		return exitUserErr
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
	return exitSuccess
}
