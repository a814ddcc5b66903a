// Package registry implements the SQLite-backed secondary search index
// over ContextBuilder's on-disk workspace. It is entirely regenerable: every
// row is derived from claims/<claim_id>/docs/<doc_id>/meta/doc.json and
// text/pages.json, so deleting the database and calling Rebuild reproduces
// it exactly. Nothing here is consulted for pipeline correctness — it
// exists for operator full-text search and an optional near-duplicate
// reuse hint.
package registry

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DocumentRecord is one row of the regenerable document cache.
type DocumentRecord struct {
	ClaimID           string
	DocID             string
	SourcePath        string
	DocType           string
	DocTypeConfidence float64
	TextMD5           string
	PageCount         int
	GateStatus        string
	CanonicalText     string
}

// ClaimRecord is one row of the regenerable claim cache.
type ClaimRecord struct {
	ClaimID   string
	DocCount  int
	LastRunID string
	LastRunAt time.Time
}

// SearchResult is one FTS5 or vector-search hit.
type SearchResult struct {
	ClaimID string
	DocID   string
	Score   float64
}

// Index wraps the search.db SQLite database.
type Index struct {
	db           *sql.DB
	embeddingDim int
}

// Open creates (if needed) and opens the index at dbPath, applying the
// schema including the optional sqlite-vec virtual table when
// embeddingDim > 0.
func Open(dbPath string, embeddingDim int) (*Index, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("registry: creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("registry: opening %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: pinging %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Index{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error { return ix.db.Close() }

// EmbeddingDim reports the configured vector dimension, or 0 if vector
// search is disabled for this index.
func (ix *Index) EmbeddingDim() int { return ix.embeddingDim }

// UpsertDocument inserts or refreshes one document's cache row.
func (ix *Index) UpsertDocument(ctx context.Context, rec DocumentRecord) error {
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO documents (claim_id, doc_id, source_path, doc_type, doc_type_confidence, text_md5, page_count, gate_status, canonical_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id, doc_id) DO UPDATE SET
			source_path = excluded.source_path,
			doc_type = excluded.doc_type,
			doc_type_confidence = excluded.doc_type_confidence,
			text_md5 = excluded.text_md5,
			page_count = excluded.page_count,
			gate_status = excluded.gate_status,
			canonical_text = excluded.canonical_text,
			updated_at = CURRENT_TIMESTAMP
	`, rec.ClaimID, rec.DocID, rec.SourcePath, rec.DocType, rec.DocTypeConfidence, rec.TextMD5, rec.PageCount, rec.GateStatus, rec.CanonicalText)
	return err
}

// UpsertClaim inserts or refreshes one claim's cache row.
func (ix *Index) UpsertClaim(ctx context.Context, rec ClaimRecord) error {
	var lastRunAt any
	if !rec.LastRunAt.IsZero() {
		lastRunAt = rec.LastRunAt.UTC().Format(time.RFC3339)
	}
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO claims (claim_id, doc_count, last_run_id, last_run_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
			doc_count = excluded.doc_count,
			last_run_id = excluded.last_run_id,
			last_run_at = excluded.last_run_at,
			updated_at = CURRENT_TIMESTAMP
	`, rec.ClaimID, rec.DocCount, rec.LastRunID, lastRunAt)
	return err
}

// DocumentRowID returns the internal rowid for a (claim_id, doc_id) pair,
// used by InsertEmbedding/NearestDocument to address the vec0 table.
func (ix *Index) DocumentRowID(ctx context.Context, claimID, docID string) (int64, error) {
	var id int64
	err := ix.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE claim_id = ? AND doc_id = ?`, claimID, docID).Scan(&id)
	return id, err
}

// FTSSearch performs a full-text search over canonical document text.
func (ix *Index) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT d.claim_id, d.doc_id, f.rank
		FROM documents_fts f
		JOIN documents d ON d.id = f.rowid
		WHERE documents_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		if err := rows.Scan(&r.ClaimID, &r.DocID, &rank); err != nil {
			return nil, err
		}
		r.Score = -rank // FTS5 rank is negative (lower = better)
		results = append(results, r)
	}
	return results, rows.Err()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec's vec0 virtual table.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
