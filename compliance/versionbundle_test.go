package compliance

import "testing"

func TestNewVersionBundleStampsFields(t *testing.T) {
	b := NewVersionBundle("run-123", "v1.0.0", "gpt-4o-mini", []byte("prompt template text"), []byte(`{"doc_type":"police_report"}`))

	if b.BundleID == "" {
		t.Fatal("expected non-empty bundle_id")
	}
	if b.RunID != "run-123" {
		t.Fatalf("expected run_id run-123, got %q", b.RunID)
	}
	if b.ExtractorVersion != "v1.0.0" {
		t.Fatalf("expected extractor_version v1.0.0, got %q", b.ExtractorVersion)
	}
	if b.ModelName != "gpt-4o-mini" {
		t.Fatalf("expected model_name gpt-4o-mini, got %q", b.ModelName)
	}
	if b.PromptTemplateHash == "" {
		t.Fatal("expected non-empty prompt_template_hash")
	}
	if b.ExtractionSpecHash == "" {
		t.Fatal("expected non-empty extraction_spec_hash")
	}
	if b.CreatedAt == "" {
		t.Fatal("expected non-empty created_at")
	}
}

func TestContentHashIsDeterministic(t *testing.T) {
	a := contentHash([]byte("same content"))
	b := contentHash([]byte("same content"))
	if a != b {
		t.Fatal("expected identical content to hash identically")
	}

	c := contentHash([]byte("different content"))
	if a == c {
		t.Fatal("expected different content to hash differently")
	}
}

func TestNewVersionBundleDistinctIDsPerCall(t *testing.T) {
	a := NewVersionBundle("run-1", "v1", "model", []byte("x"), []byte("y"))
	b := NewVersionBundle("run-1", "v1", "model", []byte("x"), []byte("y"))
	if a.BundleID == b.BundleID {
		t.Fatal("expected distinct bundle_ids across calls")
	}
}

func TestFormatGitState(t *testing.T) {
	clean := VersionBundle{GitCommit: "abc123", GitDirty: false}
	if got := FormatGitState(clean); got != "abc123" {
		t.Fatalf("expected clean commit to format as abc123, got %q", got)
	}

	dirty := VersionBundle{GitCommit: "abc123", GitDirty: true}
	if got := FormatGitState(dirty); got != "abc123-dirty" {
		t.Fatalf("expected dirty commit to format as abc123-dirty, got %q", got)
	}
}
