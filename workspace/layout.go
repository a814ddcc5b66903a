package workspace

import "path/filepath"

// Layout resolves every path in the workspace directory tree from
// spec.md §4.8 relative to a single root directory.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout { return Layout{Root: root} }

// --- claims/<claim_id>/docs/<doc_id>/ ---

func (l Layout) ClaimDir(claimID string) string {
	return filepath.Join(l.Root, "claims", claimID)
}

func (l Layout) DocDir(claimID, docID string) string {
	return filepath.Join(l.ClaimDir(claimID), "docs", docID)
}

func (l Layout) DocSourceDir(claimID, docID string) string {
	return filepath.Join(l.DocDir(claimID, docID), "source")
}

func (l Layout) DocTextPath(claimID, docID string) string {
	return filepath.Join(l.DocDir(claimID, docID), "text", "pages.json")
}

func (l Layout) DocMetaPath(claimID, docID string) string {
	return filepath.Join(l.DocDir(claimID, docID), "meta", "doc.json")
}

func (l Layout) DocLabelsLatest(claimID, docID string) string {
	return filepath.Join(l.DocDir(claimID, docID), "labels", "latest.json")
}

func (l Layout) DocLabelsHistory(claimID, docID string) string {
	return filepath.Join(l.DocDir(claimID, docID), "labels", "history.jsonl")
}

// DocExtractionCache holds the most recent extraction result for a
// document independent of any one run. Every run that extracts the
// document rewrites it; no run reads it back to skip extraction.
func (l Layout) DocExtractionCache(claimID, docID string) string {
	return filepath.Join(l.DocDir(claimID, docID), "extraction", "latest.json")
}

// --- claims/<claim_id>/runs/<claim_run_id>/ ---

func (l Layout) ClaimRunDir(claimID, runID string) string {
	return filepath.Join(l.ClaimDir(claimID), "runs", runID)
}

func (l Layout) ClaimRunManifest(claimID, runID string) string {
	return filepath.Join(l.ClaimRunDir(claimID, runID), "manifest.json")
}

func (l Layout) ClaimRunExtractionOutput(claimID, runID, docID string) string {
	return filepath.Join(l.ClaimRunDir(claimID, runID), "outputs", "extraction", docID+".json")
}

func (l Layout) ClaimRunLog(claimID, runID string) string {
	return filepath.Join(l.ClaimRunDir(claimID, runID), "logs", "run.log")
}

func (l Layout) ClaimRunCompleteDir(claimID, runID string) string {
	return l.ClaimRunDir(claimID, runID)
}

// --- runs/<global_run_id>/ ---

func (l Layout) GlobalRunDir(runID string) string {
	return filepath.Join(l.Root, "runs", runID)
}

func (l Layout) GlobalRunManifest(runID string) string {
	return filepath.Join(l.GlobalRunDir(runID), "manifest.json")
}

func (l Layout) GlobalRunSummary(runID string) string {
	return filepath.Join(l.GlobalRunDir(runID), "summary.json")
}

func (l Layout) GlobalRunMetrics(runID string) string {
	return filepath.Join(l.GlobalRunDir(runID), "metrics.json")
}

func (l Layout) GlobalRunLog(runID string) string {
	return filepath.Join(l.GlobalRunDir(runID), "logs", "run.log")
}

// --- registry/ ---

func (l Layout) RegistryDir() string {
	return filepath.Join(l.Root, "registry")
}

func (l Layout) RegistryDocIndex() string {
	return filepath.Join(l.RegistryDir(), "doc_index.json")
}

func (l Layout) RegistryClaimIndex() string {
	return filepath.Join(l.RegistryDir(), "claim_index.json")
}

// RegistryDBPath is the SQLite-backed secondary index (FTS5 full-text
// search, optional sqlite-vec near-duplicate hints) used by operator
// search tooling. Like doc_index.json/claim_index.json, it is entirely
// regenerable from claims/ and never a source of truth.
func (l Layout) RegistryDBPath() string {
	return filepath.Join(l.RegistryDir(), "search.db")
}

func (l Layout) RegistryTruthDir(fileMD5 string) string {
	return filepath.Join(l.RegistryDir(), "truth", fileMD5)
}

func (l Layout) RegistryTruthLatest(fileMD5 string) string {
	return filepath.Join(l.RegistryTruthDir(fileMD5), "latest.json")
}

func (l Layout) RegistryTruthHistory(fileMD5 string) string {
	return filepath.Join(l.RegistryTruthDir(fileMD5), "history.jsonl")
}

// --- config/ ---

func (l Layout) ConfigDir() string {
	return filepath.Join(l.Root, "config")
}

func (l Layout) ConfigSpecsDir() string {
	return filepath.Join(l.ConfigDir(), "specs")
}

func (l Layout) ConfigPromptsDir() string {
	return filepath.Join(l.ConfigDir(), "prompts")
}

func (l Layout) ConfigCatalogPath() string {
	return filepath.Join(l.ConfigDir(), "doc_type_catalog.yaml")
}

func (l Layout) ConfigPromptHistory() string {
	return filepath.Join(l.ConfigDir(), "prompt_configs_history.jsonl")
}

// --- logs/ ---

func (l Layout) LogsDir() string {
	return filepath.Join(l.Root, "logs")
}

func (l Layout) LogsDecisions() string {
	return filepath.Join(l.LogsDir(), "decisions.jsonl")
}

func (l Layout) LogsLLMCalls() string {
	return filepath.Join(l.LogsDir(), "llm_calls.jsonl")
}

// --- version_bundles/<run_id>/ ---

func (l Layout) VersionBundleDir(runID string) string {
	return filepath.Join(l.Root, "version_bundles", runID)
}

func (l Layout) VersionBundlePath(runID string) string {
	return filepath.Join(l.VersionBundleDir(runID), "bundle.json")
}
