package workspace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendHistoryAssignsIncreasingVersions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	v1, err := AppendHistory(path, sample{Name: "a"})
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	v2, err := AppendHistory(path, sample{Name: "b"})
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if v1 != 1 || v2 != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", v1, v2)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(scanner.Bytes(), &fields); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		if _, ok := fields["_version_metadata"]; !ok {
			t.Errorf("line %d missing _version_metadata", lines)
		}
		if _, ok := fields["name"]; !ok {
			t.Errorf("line %d missing original field 'name'", lines)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 history lines, got %d", lines)
	}
}

func TestSaveVersionedWritesLatestAndHistory(t *testing.T) {
	dir := t.TempDir()
	latest := filepath.Join(dir, "latest.json")
	history := filepath.Join(dir, "history.jsonl")

	if _, err := SaveVersioned(latest, history, sample{Name: "first"}); err != nil {
		t.Fatalf("SaveVersioned: %v", err)
	}
	if _, err := SaveVersioned(latest, history, sample{Name: "second"}); err != nil {
		t.Fatalf("SaveVersioned: %v", err)
	}

	var out sample
	if err := ReadJSON(latest, &out); err != nil {
		t.Fatalf("ReadJSON latest: %v", err)
	}
	if out.Name != "second" {
		t.Errorf("latest.name = %q, want second", out.Name)
	}

	count, err := countLines(history)
	if err != nil {
		t.Fatalf("countLines: %v", err)
	}
	if count != 2 {
		t.Errorf("history lines = %d, want 2", count)
	}
}

func TestAppendHistoryOnEmptyFileStartsAtOne(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new_history.jsonl")

	v, err := AppendHistory(path, sample{Name: "only"})
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}
