package registry

import (
	"context"
	"errors"
)

// ErrVectorSearchDisabled is returned by embedding-backed operations when
// the index was opened with embeddingDim <= 0 (no embeddings provider
// configured for this deployment).
var ErrVectorSearchDisabled = errors.New("registry: vector search disabled (embedding_dim=0)")

// InsertEmbedding stores doc's embedding for later near-duplicate lookups.
func (ix *Index) InsertEmbedding(ctx context.Context, claimID, docID string, embedding []float32) error {
	if ix.embeddingDim <= 0 {
		return ErrVectorSearchDisabled
	}
	rowID, err := ix.DocumentRowID(ctx, claimID, docID)
	if err != nil {
		return err
	}
	_, err = ix.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO documents_vec (doc_rowid, embedding) VALUES (?, ?)",
		rowID, serializeFloat32(embedding))
	return err
}

// NearestDocument returns the closest other document to embedding by
// cosine distance, or (nil, nil) if the index has no candidates. This is a
// supplementary reuse-detection signal layered on top of orchestrator's
// exact text_md5 match (spec.md §4.7's reuse rule is exact-match only) —
// callers use it to flag "this document looks like doc X, already
// extracted" for human review, never to silently skip extraction.
func (ix *Index) NearestDocument(ctx context.Context, embedding []float32, excludeClaimID, excludeDocID string) (*SearchResult, error) {
	if ix.embeddingDim <= 0 {
		return nil, ErrVectorSearchDisabled
	}

	excludeRowID, err := ix.DocumentRowID(ctx, excludeClaimID, excludeDocID)
	if err != nil {
		excludeRowID = -1 // doc not yet indexed; nothing to exclude
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT v.doc_rowid, v.distance, d.claim_id, d.doc_id
		FROM documents_vec v
		JOIN documents d ON d.id = v.doc_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(embedding), maxNearestCandidates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rowID int64
		var distance float64
		var claimID, docID string
		if err := rows.Scan(&rowID, &distance, &claimID, &docID); err != nil {
			return nil, err
		}
		if rowID == excludeRowID {
			continue
		}
		return &SearchResult{ClaimID: claimID, DocID: docID, Score: 1.0 - distance}, rows.Err()
	}
	return nil, rows.Err()
}

// maxNearestCandidates bounds the KNN search so excluding the query
// document itself (always its own nearest neighbor at distance 0) still
// leaves room for a genuine match.
const maxNearestCandidates = 5
