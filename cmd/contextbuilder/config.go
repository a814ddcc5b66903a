package main

import (
	"encoding/json"
	"fmt"
	"os"

	contextbuilder "github.com/contextbuilder/contextbuilder"
)

// loadConfig builds a Config from defaults, an optional config file, and
// environment variable overrides, in that precedence order — the same
// cascade teacher's cmd/server/main.go applies to GOREASON_* variables,
// generalized to the CONTEXTBUILDER_* namespace plus the well-known
// provider env vars spec.md §6 names directly (OPENAI_API_KEY, etc.).
func loadConfig(configPath string) (contextbuilder.Config, error) {
	cfg := contextbuilder.DefaultConfig()

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return cfg, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *contextbuilder.Config) {
	if v := os.Getenv("CONTEXTBUILDER_WORKSPACE_ROOT"); v != "" {
		cfg.WorkspaceRoot = v
	}
	if v := os.Getenv("CONTEXTBUILDER_CLASSIFIER_PROVIDER"); v != "" {
		cfg.Classifier.Provider = v
	}
	if v := os.Getenv("CONTEXTBUILDER_CLASSIFIER_MODEL"); v != "" {
		cfg.Classifier.Model = v
	}
	if v := os.Getenv("CONTEXTBUILDER_EXTRACTOR_PROVIDER"); v != "" {
		cfg.Extractor.Provider = v
	}
	if v := os.Getenv("CONTEXTBUILDER_EXTRACTOR_MODEL"); v != "" {
		cfg.Extractor.Model = v
	}

	if v := os.Getenv("AZURE_DI_ENDPOINT"); v != "" {
		if cfg.DocumentIntelligence == nil {
			cfg.DocumentIntelligence = &contextbuilder.DIConfig{}
		}
		cfg.DocumentIntelligence.Endpoint = v
	}
	if v := os.Getenv("AZURE_DI_API_KEY"); v != "" {
		if cfg.DocumentIntelligence == nil {
			cfg.DocumentIntelligence = &contextbuilder.DIConfig{}
		}
		cfg.DocumentIntelligence.APIKey = v
	}
	if v := os.Getenv("TESSERACT_CMD"); v != "" {
		cfg.TesseractCmd = v
	}
	if v := os.Getenv("COMPLIANCE_KEY_PATH"); v != "" {
		cfg.ComplianceKeyPath = v
		if cfg.ComplianceBackend == "" {
			cfg.ComplianceBackend = "encrypted_file"
		}
	}

	// Fallback: well-known provider API keys, checked only when the
	// provider-specific key wasn't already set via flags/config file.
	if cfg.Classifier.APIKey == "" {
		cfg.Classifier.APIKey = apiKeyForProvider(cfg.Classifier.Provider)
	}
	if cfg.Extractor.APIKey == "" {
		cfg.Extractor.APIKey = apiKeyForProvider(cfg.Extractor.Provider)
	}
	if cfg.Vision.Provider != "" && cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = apiKeyForProvider(cfg.Vision.Provider)
	}
}

func apiKeyForProvider(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "azure_openai":
		return os.Getenv("AZURE_OPENAI_API_KEY")
	default:
		return ""
	}
}
