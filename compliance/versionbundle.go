package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VersionBundle is the immutable record every decision in a run links back
// to via VersionBundleID (spec.md §4.11): the exact code, model, and prompt
// state in effect when the run started. It never changes after creation —
// a new run always gets a new bundle.
type VersionBundle struct {
	BundleID           string `json:"bundle_id"`
	RunID              string `json:"run_id"`
	GitCommit          string `json:"git_commit"`
	GitDirty           bool   `json:"git_dirty"`
	ExtractorVersion   string `json:"extractor_version"`
	ModelName          string `json:"model_name"`
	PromptTemplateHash string `json:"prompt_template_hash"`
	ExtractionSpecHash string `json:"extraction_spec_hash"`
	CreatedAt          string `json:"created_at"`
}

// NewVersionBundle builds a VersionBundle for a run starting now, stamping
// the current git commit/dirty state (gitCommit/gitDirty), the given
// extractor version and model name, and content hashes of the prompt
// template and extraction spec in effect.
func NewVersionBundle(runID, extractorVersion, modelName string, promptTemplate, extractionSpec []byte) VersionBundle {
	return VersionBundle{
		BundleID:           uuid.NewString(),
		RunID:              runID,
		GitCommit:          gitCommit(),
		GitDirty:           gitDirty(),
		ExtractorVersion:   extractorVersion,
		ModelName:          modelName,
		PromptTemplateHash: contentHash(promptTemplate),
		ExtractionSpecHash: contentHash(extractionSpec),
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// gitCommit returns the current git HEAD short hash, or "unknown" if the
// workspace isn't a git checkout (e.g. a packaged release).
func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// gitDirty reports whether the working tree has uncommitted changes.
func gitDirty() bool {
	out, err := exec.Command("git", "status", "--porcelain").Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(out))) > 0
}

// contentHash returns the hex SHA-256 of data, used to fingerprint prompt
// templates and extraction specs without embedding their full content in
// every version bundle.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FormatGitState renders a human-readable commit description, e.g. for
// inclusion in run logs.
func FormatGitState(b VersionBundle) string {
	if b.GitDirty {
		return fmt.Sprintf("%s-dirty", b.GitCommit)
	}
	return b.GitCommit
}
