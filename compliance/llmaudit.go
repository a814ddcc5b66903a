package compliance

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextbuilder/contextbuilder/llm"
)

// LLMCallRecord captures one LLM call end-to-end: the full request,
// response, and whether it failed, logged before the response ever
// reaches the calling stage (spec.md §4.11 "LLM Audit Sink"). Retries are
// distinct call_ids — each attempt is its own record, never merged.
type LLMCallRecord struct {
	CallID     string          `json:"call_id"`
	Timestamp  string          `json:"timestamp"`
	Request    json.RawMessage `json:"request"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// LLMCallStorage persists LLMCallRecords. LLMCallFileStore (plaintext
// JSONL) is its only implementation; there is no encrypted backend for
// LLM call records, and EncryptedFileStore stores decision records only.
type LLMCallStorage interface {
	Append(rec LLMCallRecord) error
	All() ([]LLMCallRecord, error)
}

// LLMCallFileStore is the plaintext JSONL backend for LLMCallStorage.
type LLMCallFileStore struct {
	path string
	mu   sync.Mutex
}

// NewLLMCallFileStore creates a LLMCallFileStore appending to path.
func NewLLMCallFileStore(path string) *LLMCallFileStore {
	return &LLMCallFileStore{path: path}
}

func (s *LLMCallFileStore) Append(rec LLMCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("compliance: creating %s: %w", filepath.Dir(s.path), err)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("compliance: marshaling llm call record: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("compliance: opening %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("compliance: appending to %s: %w", s.path, err)
	}
	return f.Sync()
}

func (s *LLMCallFileStore) All() ([]LLMCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compliance: opening %s: %w", s.path, err)
	}
	defer f.Close()

	var records []LLMCallRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec LLMCallRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("compliance: parsing %s: %w", s.path, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// LLMAuditSink wraps an llm.Provider, logging every call to storage
// before the response (or error) reaches the caller. It implements
// llm.Provider itself so it can be substituted transparently wherever a
// Provider is expected (classify.New, extract.New, and the vision
// ingestion fallback).
type LLMAuditSink struct {
	inner   llm.Provider
	storage LLMCallStorage
}

// NewLLMAuditSink wraps inner with audit logging to storage.
func NewLLMAuditSink(inner llm.Provider, storage LLMCallStorage) *LLMAuditSink {
	return &LLMAuditSink{inner: inner, storage: storage}
}

// callIDCaptureKey is the context key ContextWithCallIDCapture installs.
type callIDCaptureKey struct{}

// ContextWithCallIDCapture returns a derived context and a pointer that
// LLMAuditSink fills in with the call_id of the next call made with that
// context. A decision record's call_id field (spec.md §4.11 "the decision
// record that consumes the call references call_id") is populated by
// reading that pointer after the call returns.
func ContextWithCallIDCapture(ctx context.Context) (context.Context, *string) {
	var id string
	return context.WithValue(ctx, callIDCaptureKey{}, &id), &id
}

func (s *LLMAuditSink) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	callID := uuid.NewString()
	started := time.Now()
	captureCallID(ctx, callID)

	resp, err := s.inner.Chat(ctx, req)

	s.logCall(callID, started, req, resp, err)
	return resp, err
}

// ChatWithImages audits a vision call the same way Chat does. It panics if
// inner does not implement llm.VisionProvider; engine.go wraps a provider
// for vision use only after asserting that it implements llm.VisionProvider.
func (s *LLMAuditSink) ChatWithImages(ctx context.Context, req llm.VisionChatRequest) (*llm.ChatResponse, error) {
	visionInner := s.inner.(llm.VisionProvider)

	callID := uuid.NewString()
	started := time.Now()
	captureCallID(ctx, callID)

	resp, err := visionInner.ChatWithImages(ctx, req)

	s.logCall(callID, started, req, resp, err)
	return resp, err
}

func (s *LLMAuditSink) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	callID := uuid.NewString()
	started := time.Now()
	captureCallID(ctx, callID)

	resp, err := s.inner.Embed(ctx, texts)

	s.logCall(callID, started, map[string]any{"texts": texts}, resp, err)
	return resp, err
}

// captureCallID writes callID into the pointer installed by
// ContextWithCallIDCapture, if ctx carries one. A context with no capture
// installed is the common case (most calls aren't tied to a decision
// record) and is silently a no-op.
func captureCallID(ctx context.Context, callID string) {
	if p, ok := ctx.Value(callIDCaptureKey{}).(*string); ok {
		*p = callID
	}
}

func (s *LLMAuditSink) logCall(callID string, started time.Time, req, resp any, callErr error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		reqJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	rec := LLMCallRecord{
		CallID:     callID,
		Timestamp:  started.UTC().Format(time.RFC3339Nano),
		Request:    reqJSON,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	} else if respJSON, err := json.Marshal(resp); err == nil {
		rec.Response = respJSON
	}

	// Logging failures never block the caller from receiving its
	// response: the audit sink observes calls, it doesn't gate them.
	_ = s.storage.Append(rec)
}
