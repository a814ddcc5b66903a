package registry

import "fmt"

// schemaSQL returns the DDL for the regenerable search index. embeddingDim
// controls the vec0 virtual table dimension; embeddingDim <= 0 omits it
// entirely, so a deployment without an embeddings provider configured
// never pays for a virtual table it can't populate.
func schemaSQL(embeddingDim int) string {
	ddl := `
-- Document cache: one row per (claim_id, doc_id), regenerated from
-- claims/<claim_id>/docs/<doc_id>/meta/doc.json and text/pages.json.
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    claim_id TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    source_path TEXT NOT NULL,
    doc_type TEXT,
    doc_type_confidence REAL,
    text_md5 TEXT NOT NULL,
    page_count INTEGER,
    gate_status TEXT,
    canonical_text TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(claim_id, doc_id)
);

-- Claim cache: one row per claim_id, regenerated alongside documents.
CREATE TABLE IF NOT EXISTS claims (
    id INTEGER PRIMARY KEY,
    claim_id TEXT NOT NULL UNIQUE,
    doc_count INTEGER NOT NULL DEFAULT 0,
    last_run_id TEXT,
    last_run_at DATETIME,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search over canonical document text via FTS5 BM25 ranking.
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    canonical_text,
    content='documents',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, canonical_text) VALUES (new.id, new.canonical_text);
END;
CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, canonical_text) VALUES ('delete', old.id, old.canonical_text);
END;
CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, canonical_text) VALUES ('delete', old.id, old.canonical_text);
    INSERT INTO documents_fts(rowid, canonical_text) VALUES (new.id, new.canonical_text);
END;

CREATE INDEX IF NOT EXISTS idx_documents_claim ON documents(claim_id);
CREATE INDEX IF NOT EXISTS idx_documents_text_md5 ON documents(text_md5);
CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);
`
	if embeddingDim > 0 {
		ddl += fmt.Sprintf(`
-- Near-duplicate reuse hint (supplementary to the exact text_md5 match
-- orchestrator's reuse detection requires; never authoritative on its own).
CREATE VIRTUAL TABLE IF NOT EXISTS documents_vec USING vec0(
    doc_rowid INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);
`, embeddingDim)
	}
	return ddl
}
