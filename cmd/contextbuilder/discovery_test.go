package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/contextbuilder/contextbuilder/workspace"
)

func TestFileMD5HexMatchesKnownVector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.txt")
	mustWriteFile(t, path, "hello world")

	got, err := fileMD5Hex(path)
	if err != nil {
		t.Fatalf("fileMD5Hex: %v", err)
	}
	want := "5eb63bbbe01eeed093cb22bb8f5acdc3"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestMaterializeDocInputsCopiesIntoOwnedSourceDir(t *testing.T) {
	workRoot := t.TempDir()
	layout := workspace.NewLayout(workRoot)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "report.txt")
	mustWriteFile(t, srcPath, "police report body")

	docs, err := materializeDocInputs(layout, "claim1", []string{srcPath})
	if err != nil {
		t.Fatalf("materializeDocInputs: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs", len(docs))
	}

	docID, err := fileMD5Hex(srcPath)
	if err != nil {
		t.Fatalf("fileMD5Hex: %v", err)
	}
	if docs[0].DocID != docID {
		t.Fatalf("got doc id %s want %s", docs[0].DocID, docID)
	}

	wantPath := filepath.Join(layout.DocSourceDir("claim1", docID), "report.txt")
	if docs[0].SourcePath != wantPath {
		t.Fatalf("got source path %s want %s", docs[0].SourcePath, wantPath)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("expected copied file at %s: %v", wantPath, err)
	}
}

func TestMaterializeDocInputsIsIdempotent(t *testing.T) {
	workRoot := t.TempDir()
	layout := workspace.NewLayout(workRoot)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "estimate.txt")
	mustWriteFile(t, srcPath, "repair estimate body")

	if _, err := materializeDocInputs(layout, "claim1", []string{srcPath}); err != nil {
		t.Fatalf("first materialize: %v", err)
	}
	docs, err := materializeDocInputs(layout, "claim1", []string{srcPath})
	if err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	if _, err := os.Stat(docs[0].SourcePath); err != nil {
		t.Fatalf("expected file still present: %v", err)
	}
}
