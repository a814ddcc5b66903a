package contextbuilder

import (
	"os"
	"path/filepath"
	"time"
)

// Duration wraps time.Duration so config files can express it as a plain
// number of nanoseconds while call sites use normal time.Duration math.
type Duration time.Duration

// D returns the underlying time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config holds all configuration for the ContextBuilder pipeline.
type Config struct {
	// WorkspaceRoot is the directory that holds claims/, runs/, registry/,
	// config/, logs/, and version_bundles/ (spec.md §4.8). If empty,
	// defaults to ~/.contextbuilder/<WorkspaceID> or ./<WorkspaceID>.
	WorkspaceRoot string `json:"workspace_root" yaml:"workspace_root"`

	// WorkspaceID names the workspace when WorkspaceRoot is not set.
	WorkspaceID string `json:"workspace_id" yaml:"workspace_id"`

	// StorageDir controls where the workspace directory is created when
	// WorkspaceRoot is not explicitly set. "home" (default) uses
	// ~/.contextbuilder/, "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers.
	Classifier LLMConfig `json:"classifier" yaml:"classifier"`
	Extractor  LLMConfig `json:"extractor" yaml:"extractor"`
	Vision     LLMConfig `json:"vision" yaml:"vision"`

	// DocumentIntelligence configures the external di_like ingestion
	// provider (e.g. Azure Document Intelligence).
	DocumentIntelligence *DIConfig `json:"document_intelligence,omitempty" yaml:"document_intelligence,omitempty"`

	// TesseractCmd overrides the tesseract binary path/name (TESSERACT_CMD).
	TesseractCmd string `json:"tesseract_cmd" yaml:"tesseract_cmd"`

	// CandidateWindow is the ±W character window around a hint match used
	// by the candidate span finder (spec.md §4.5). Default 800.
	CandidateWindow int `json:"candidate_window" yaml:"candidate_window"`

	// Concurrency bounds per-run document parallelism (spec.md §5). Default 4.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// ClassifyLowConfidence is the threshold below which a classification
	// is flagged CLASSIFY_LOW_CONF (spec.md §9 Open Question (c)).
	ClassifyLowConfidence float64 `json:"classify_low_confidence" yaml:"classify_low_confidence"`

	// Timeouts, spec.md §5 "Cancellation & timeouts".
	IngestionTimeoutPerPage Duration `json:"ingestion_timeout_per_page" yaml:"ingestion_timeout_per_page"`
	ClassifyTimeout         Duration `json:"classify_timeout" yaml:"classify_timeout"`
	ExtractTimeout          Duration `json:"extract_timeout" yaml:"extract_timeout"`

	// CompliancePath is the decision ledger's file (defaults to
	// <WorkspaceRoot>/logs/decisions.jsonl). The LLM audit sink always
	// writes <WorkspaceRoot>/logs/llm_calls.jsonl.
	CompliancePath string `json:"compliance_path" yaml:"compliance_path"`

	// ComplianceBackend selects "file" or "encrypted_file" (spec.md §4.11).
	ComplianceBackend string `json:"compliance_backend" yaml:"compliance_backend"`

	// ComplianceKeyPath is the KEK key/passphrase file for the encrypted
	// backend (COMPLIANCE_KEY_PATH).
	ComplianceKeyPath string `json:"compliance_key_path" yaml:"compliance_key_path"`

	// SpecsDir is the directory of DocTypeSpec YAML files (*.yaml, *.yml)
	// the catalog is loaded from. Defaults to <WorkspaceRoot>/config/specs.
	SpecsDir string `json:"specs_dir" yaml:"specs_dir"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, azure_openai, anthropic, ollama, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// Azure OpenAI specific fields (used when Provider == "azure_openai").
	AzureEndpoint   string `json:"azure_endpoint,omitempty" yaml:"azure_endpoint,omitempty"`
	AzureDeployment string `json:"azure_deployment,omitempty" yaml:"azure_deployment,omitempty"`
	AzureAPIVersion string `json:"azure_api_version,omitempty" yaml:"azure_api_version,omitempty"`
}

// DIConfig configures the external document-intelligence ingestion provider.
type DIConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkspaceID:             "default",
		StorageDir:              "home",
		CandidateWindow:         800,
		Concurrency:             4,
		ClassifyLowConfidence:   0.5,
		IngestionTimeoutPerPage: Duration(120 * time.Second),
		ClassifyTimeout:         Duration(60 * time.Second),
		ExtractTimeout:          Duration(120 * time.Second),
		ComplianceBackend:       "file",
		Classifier: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Extractor: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
	}
}

// ResolveWorkspaceRoot computes the final workspace directory from config
// fields, the way the teacher's resolveDBPath resolves a single DB file.
func (c *Config) ResolveWorkspaceRoot() string {
	if c.WorkspaceRoot != "" {
		return c.WorkspaceRoot
	}

	name := c.WorkspaceID
	if name == "" {
		name = "default"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name // fallback to cwd
		}
		return filepath.Join(home, ".contextbuilder", name)
	}
}
