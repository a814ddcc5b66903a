package main

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/contextbuilder/contextbuilder/orchestrator"
	"github.com/contextbuilder/contextbuilder/workspace"
)

// discoverClaims walks inputDir, treating each top-level subdirectory as a
// claim (the claim_id is the directory name) and each regular file inside
// it as one source document. When claimFilter is non-empty, only claims
// named in it are returned.
func discoverClaims(inputDir string, claimFilter []string) ([]string, map[string][]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading --input %s: %w", inputDir, err)
	}

	allow := make(map[string]bool, len(claimFilter))
	for _, c := range claimFilter {
		allow[c] = true
	}

	var claimIDs []string
	files := make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		claimID := e.Name()
		if len(allow) > 0 && !allow[claimID] {
			continue
		}
		claimDir := filepath.Join(inputDir, claimID)
		docFiles, err := os.ReadDir(claimDir)
		if err != nil {
			return nil, nil, fmt.Errorf("reading claim dir %s: %w", claimDir, err)
		}
		var paths []string
		for _, f := range docFiles {
			if f.IsDir() {
				continue
			}
			paths = append(paths, filepath.Join(claimDir, f.Name()))
		}
		sort.Strings(paths)
		claimIDs = append(claimIDs, claimID)
		files[claimID] = paths
	}
	sort.Strings(claimIDs)
	return claimIDs, files, nil
}

// materializeDocInputs computes each source file's content-addressed doc_id
// (spec.md §3 "doc_id = md5(raw_bytes)") and copies the raw bytes into the
// claim's owned source/ folder if not already present there, so a document
// is exclusively owned by one claim folder regardless of where --input
// originally pointed (spec.md §3 "Ownership").
func materializeDocInputs(layout workspace.Layout, claimID string, sourcePaths []string) ([]orchestrator.DocInput, error) {
	docs := make([]orchestrator.DocInput, 0, len(sourcePaths))
	for _, src := range sourcePaths {
		docID, err := fileMD5Hex(src)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", src, err)
		}

		destDir := layout.DocSourceDir(claimID, docID)
		dest := filepath.Join(destDir, filepath.Base(src))
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			if err := copyFile(src, dest); err != nil {
				return nil, fmt.Errorf("copying %s into workspace: %w", src, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("checking %s: %w", dest, err)
		}

		docs = append(docs, orchestrator.DocInput{DocID: docID, SourcePath: dest})
	}
	return docs, nil
}

func fileMD5Hex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
