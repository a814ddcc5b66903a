package compliance

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EncryptedFileStore is the "encrypted_file" DecisionStorage backend
// (spec.md §4.11): each line is
// base64(wrapped_dek || dek_nonce || data_nonce || ciphertext_with_tag)
// over the record's canonical JSON. The hash chain is computed by Ledger
// over the plaintext record before it ever reaches this store, so
// Verify works identically across backends — only the bytes on disk
// differ.
type EncryptedFileStore struct {
	path string
	kek  []byte
	mu   sync.Mutex
}

// NewEncryptedFileStore creates an EncryptedFileStore appending to path,
// encrypting every record under kek (see LoadKEK).
func NewEncryptedFileStore(path string, kek []byte) *EncryptedFileStore {
	return &EncryptedFileStore{path: path, kek: kek}
}

func (s *EncryptedFileStore) Append(rec DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("compliance: creating %s: %w", filepath.Dir(s.path), err)
	}

	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("compliance: marshaling decision record: %w", err)
	}

	envelope, err := sealWithDEK(s.kek, plaintext)
	if err != nil {
		return fmt.Errorf("compliance: encrypting decision record: %w", err)
	}

	line := base64.StdEncoding.EncodeToString(envelope)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("compliance: opening %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("compliance: appending to %s: %w", s.path, err)
	}
	return f.Sync()
}

func (s *EncryptedFileStore) All() ([]DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAllLocked()
}

func (s *EncryptedFileStore) readAllLocked() ([]DecisionRecord, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compliance: opening %s: %w", s.path, err)
	}
	defer f.Close()

	var records []DecisionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		envelope, err := base64.StdEncoding.DecodeString(string(line))
		if err != nil {
			return nil, fmt.Errorf("compliance: decoding %s: %w", s.path, err)
		}
		plaintext, err := openEnvelope(s.kek, envelope)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLedgerTamper, s.path, err)
		}
		var rec DecisionRecord
		if err := json.Unmarshal(plaintext, &rec); err != nil {
			return nil, fmt.Errorf("compliance: parsing decrypted record from %s: %w", s.path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("compliance: scanning %s: %w", s.path, err)
	}
	return records, nil
}

func (s *EncryptedFileStore) LastHash() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAllLocked()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return GenesisHash, nil
	}
	return records[len(records)-1].RecordHash, nil
}

func (s *EncryptedFileStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
