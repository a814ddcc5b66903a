// Package compliance implements the compliance core (C11): an
// append-only, tamper-evident decision ledger, an LLM call audit sink, and
// the immutable version bundle every decision links back to.
package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the previous_hash value of the first record in a ledger
// (spec.md §4.11).
const GenesisHash = "GENESIS"

// ErrLedgerTamper is returned (wrapped) when an encrypted record fails
// authentication on read. A broken hash chain is reported by Verify
// through VerifyResult (Valid false, BreakAt set), not through this error.
var ErrLedgerTamper = errors.New("compliance: decision ledger hash chain broken")

// Rationale explains why a decision was made.
type Rationale struct {
	Summary      string   `json:"summary"`
	Confidence   *float64 `json:"confidence,omitempty"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// decisionRecordSchemaVersion is the schema_version stamped on every
// DecisionRecord (spec.md §6).
const decisionRecordSchemaVersion = "decision_record_v1"

// DecisionRecord is one append-only ledger entry (spec.md §4.11).
type DecisionRecord struct {
	SchemaVersion   string         `json:"schema_version"`
	DecisionID      string         `json:"decision_id"`
	DecisionType    string         `json:"decision_type"` // classification, extraction, quality_gate, human_review, override
	Timestamp       string         `json:"timestamp"`
	ClaimID         string         `json:"claim_id,omitempty"`
	DocID           string         `json:"doc_id,omitempty"`
	ActorType       string         `json:"actor_type"` // system, human
	ActorID         string         `json:"actor_id"`
	Rationale       Rationale      `json:"rationale"`
	Outcome         map[string]any `json:"outcome,omitempty"`
	VersionBundleID string         `json:"version_bundle_id,omitempty"`
	CallID          string         `json:"call_id,omitempty"`
	PIIRefs         []string       `json:"pii_refs,omitempty"`
	RecordHash      string         `json:"record_hash,omitempty"`
	PreviousHash    string         `json:"previous_hash"`
}

// DecisionStorage is the storage backend a Ledger writes through. Both the
// file and encrypted_file backends (spec.md §4.11) implement it; Ledger's
// hash-chain logic is identical regardless of which one is in use.
type DecisionStorage interface {
	Append(rec DecisionRecord) error
	All() ([]DecisionRecord, error)
	LastHash() (string, error)
	Count() (int, error)
}

// Ledger appends DecisionRecords to a DecisionStorage backend, computing
// and linking the SHA-256 hash chain (spec.md §4.11 "Append flow: acquire
// last hash → set previous_hash → compute record_hash → atomic append").
type Ledger struct {
	storage DecisionStorage
}

// NewLedger creates a Ledger writing through storage.
func NewLedger(storage DecisionStorage) *Ledger {
	return &Ledger{storage: storage}
}

// Append stamps rec with a decision_id/timestamp if unset, links it to the
// current chain tip, computes its record_hash, and persists it.
func (l *Ledger) Append(rec DecisionRecord) (DecisionRecord, error) {
	if rec.DecisionID == "" {
		rec.DecisionID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if rec.SchemaVersion == "" {
		rec.SchemaVersion = decisionRecordSchemaVersion
	}

	prevHash, err := l.storage.LastHash()
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("compliance: reading chain tip: %w", err)
	}
	rec.PreviousHash = prevHash

	hash, err := recordHash(rec)
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("compliance: hashing decision record: %w", err)
	}
	rec.RecordHash = hash

	if err := l.storage.Append(rec); err != nil {
		return DecisionRecord{}, fmt.Errorf("compliance: appending decision record: %w", err)
	}

	return rec, nil
}

// VerifyResult is the outcome of walking a ledger's hash chain.
type VerifyResult struct {
	Valid   bool
	BreakAt int // index of the first broken record, -1 if Valid
	Reason  string
}

// Verify walks the full ledger and fails on the first hash-chain
// mismatch, reporting break_at (spec.md §4.11).
func (l *Ledger) Verify() (VerifyResult, error) {
	records, err := l.storage.All()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("compliance: reading ledger: %w", err)
	}

	expectedPrev := GenesisHash
	for i, rec := range records {
		if rec.PreviousHash != expectedPrev {
			return VerifyResult{
				BreakAt: i,
				Reason:  fmt.Sprintf("record %d: previous_hash %q does not match prior record_hash %q", i, rec.PreviousHash, expectedPrev),
			}, nil
		}

		want, err := recordHash(rec)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("compliance: hashing record %d: %w", i, err)
		}
		if want != rec.RecordHash {
			return VerifyResult{
				BreakAt: i,
				Reason:  fmt.Sprintf("record %d: record_hash does not match its own content", i),
			}, nil
		}

		expectedPrev = rec.RecordHash
	}

	return VerifyResult{Valid: true, BreakAt: -1}, nil
}

// recordHash computes SHA-256(canonical_json(rec without record_hash)).
func recordHash(rec DecisionRecord) (string, error) {
	rec.RecordHash = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
