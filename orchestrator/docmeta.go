package orchestrator

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"strings"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/workspace"
)

// DocMeta is the persisted meta/doc.json record (spec.md §4.8) a run reads
// back to decide whether C2/C4 can be skipped for this document (spec.md
// §4.7 "Reuse detection").
type DocMeta struct {
	DocID               string  `json:"doc_id"`
	SourcePath          string  `json:"source_path"`
	SourceMD5           string  `json:"source_md5"`
	IngestProvider      string  `json:"ingest_provider"`
	TextMD5             string  `json:"text_md5"`
	DocType             string  `json:"doc_type,omitempty"`
	DocTypeConfidence   float64 `json:"doc_type_confidence,omitempty"`
	Language            string  `json:"language,omitempty"`
	ClassifierModel     string  `json:"classifier_model,omitempty"`
	ExtractionSpecHash  string  `json:"extraction_spec_hash,omitempty"`
	ExtractorModel      string  `json:"extractor_model,omitempty"`
}

// loadDocMeta returns the meta record at path, or a zero-value DocMeta if
// none exists yet (a document's first run).
func loadDocMeta(path string) (DocMeta, error) {
	var meta DocMeta
	if err := workspace.ReadJSON(path, &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DocMeta{}, nil
		}
		return DocMeta{}, err
	}
	return meta, nil
}

// fileMD5 hashes the raw bytes at path.
func fileMD5(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// textMD5 hashes a DocText's canonical text content (page order, text
// only) so a reformatted-but-unchanged source still reuses prior work, and
// so re-ingesting the same bytes through a different provider that
// produces different text is correctly treated as a change.
func textMD5(doc *doctext.DocText) string {
	var b strings.Builder
	for _, p := range doc.Pages {
		b.WriteString(p.Text)
		b.WriteByte('\f')
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canReuseIngestion reports whether meta already reflects this exact
// source file ingested by this exact provider (spec.md §4.7 "if C1 exists
// for doc_id with a matching provider & text_md5, skip C2").
func canReuseIngestion(meta DocMeta, sourceMD5, provider string) bool {
	return meta.TextMD5 != "" && meta.SourceMD5 == sourceMD5 && meta.IngestProvider == provider
}

// canReuseClassification reports whether meta's classification was
// produced from the same text and the same classifier model — if either
// changed, the route must be recomputed.
func canReuseClassification(meta DocMeta, currentTextMD5, classifierModel string) bool {
	return meta.DocType != "" && meta.TextMD5 == currentTextMD5 && meta.ClassifierModel == classifierModel
}
