// Package workspace implements the on-disk run and workspace storage layer
// (C8): the claims/runs/registry/config/logs directory tree, atomic JSON
// artifact writes, and append-only history logs.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSONAtomic marshals v as indented JSON and writes it to path using
// temp-file-then-rename so a reader never observes a partially written
// file (spec.md §4.8 "every output JSON is written as *.tmp then
// renamed"). Both the temp file and its parent directory are fsynced
// before the rename commits, so the write survives a crash immediately
// after this call returns.
func WriteJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workspace: creating %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: marshaling %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("workspace: creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("workspace: writing %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("workspace: fsyncing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("workspace: closing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("workspace: renaming %s to %s: %w", tmpPath, path, err)
	}

	return fsyncDir(dir)
}

// ReadJSON reads and unmarshals path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("workspace: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("workspace: parsing %s: %w", path, err)
	}
	return nil
}

// fsyncDir fsyncs a directory entry so a rename into it is durable across
// a crash, not just visible to other processes.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("workspace: opening %s for fsync: %w", dir, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("workspace: fsyncing dir %s: %w", dir, err)
	}
	return nil
}

// MarkComplete creates the .complete sentinel inside dir, signaling the
// run as committed (spec.md §4.8). It is the last write of a successful
// run, after manifest/summary/metrics/logs are all flushed.
func MarkComplete(dir string) error {
	path := filepath.Join(dir, ".complete")
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		return fmt.Errorf("workspace: marking %s complete: %w", dir, err)
	}
	return fsyncDir(dir)
}

// IsComplete reports whether dir carries a .complete sentinel.
func IsComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".complete"))
	return err == nil
}
