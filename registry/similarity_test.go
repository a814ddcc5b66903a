//go:build cgo

package registry

import (
	"context"
	"errors"
	"testing"
)

func TestInsertEmbeddingDisabledWithoutDim(t *testing.T) {
	ix := newTestIndex(t, 0)
	ctx := context.Background()

	if err := ix.UpsertDocument(ctx, DocumentRecord{ClaimID: "claim1", DocID: "doc1", TextMD5: "h1"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	err := ix.InsertEmbedding(ctx, "claim1", "doc1", []float32{0.1, 0.2, 0.3})
	if !errors.Is(err, ErrVectorSearchDisabled) {
		t.Fatalf("expected ErrVectorSearchDisabled, got %v", err)
	}
}

func TestNearestDocumentFindsClosestMatch(t *testing.T) {
	ix := newTestIndex(t, 3)
	ctx := context.Background()

	docs := []struct {
		docID string
		vec   []float32
	}{
		{"doc1", []float32{1, 0, 0}},
		{"doc2", []float32{0, 1, 0}},
		{"doc3", []float32{0.95, 0.05, 0}}, // near-duplicate of doc1
	}
	for _, d := range docs {
		if err := ix.UpsertDocument(ctx, DocumentRecord{ClaimID: "claim1", DocID: d.docID, TextMD5: d.docID}); err != nil {
			t.Fatalf("UpsertDocument(%s): %v", d.docID, err)
		}
		if err := ix.InsertEmbedding(ctx, "claim1", d.docID, d.vec); err != nil {
			t.Fatalf("InsertEmbedding(%s): %v", d.docID, err)
		}
	}

	nearest, err := ix.NearestDocument(ctx, []float32{1, 0, 0}, "claim1", "doc1")
	if err != nil {
		t.Fatalf("NearestDocument: %v", err)
	}
	if nearest == nil {
		t.Fatal("expected a nearest match, got nil")
	}
	if nearest.DocID != "doc3" {
		t.Fatalf("expected doc3 as nearest neighbor, got %s", nearest.DocID)
	}
}
