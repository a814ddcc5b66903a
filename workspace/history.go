package workspace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// versionMetadata is embedded into every history line so a reader can
// order and timestamp snapshots without parsing the surrounding record
// (spec.md §4.8: "_version_metadata{saved_at, version_number}").
type versionMetadata struct {
	SavedAt       string `json:"saved_at"`
	VersionNumber int    `json:"version_number"`
}

// AppendHistory appends record to the JSONL file at historyPath as a new
// version, stamping it with a monotonically increasing version_number
// (one more than the number of lines already in the file) and the current
// time. The append is flushed and fsynced before returning. Returns the
// version number assigned.
func AppendHistory(historyPath string, record any) (int, error) {
	dir := filepath.Dir(historyPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("workspace: creating %s: %w", dir, err)
	}

	version, err := countLines(historyPath)
	if err != nil {
		return 0, err
	}
	version++

	line, err := versionedLine(record, version)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("workspace: opening %s: %w", historyPath, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return 0, fmt.Errorf("workspace: appending to %s: %w", historyPath, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("workspace: fsyncing %s: %w", historyPath, err)
	}

	return version, fsyncDir(dir)
}

// SaveVersioned appends record to historyPath and then atomically
// rewrites latestPath with the same record (spec.md §4.8: "latest.json is
// always rewritten atomically").
func SaveVersioned(latestPath, historyPath string, record any) (int, error) {
	version, err := AppendHistory(historyPath, record)
	if err != nil {
		return 0, err
	}
	if err := WriteJSONAtomic(latestPath, record); err != nil {
		return version, err
	}
	return version, nil
}

func versionedLine(record any, version int) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("workspace: marshaling history record: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("workspace: history record is not a JSON object: %w", err)
	}

	meta, err := json.Marshal(versionMetadata{
		SavedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		VersionNumber: version,
	})
	if err != nil {
		return nil, err
	}
	fields["_version_metadata"] = meta

	line, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("workspace: opening %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("workspace: scanning %s: %w", path, err)
	}
	return count, nil
}
