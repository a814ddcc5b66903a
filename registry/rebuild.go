package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/contextbuilder/contextbuilder/doctext"
	"github.com/contextbuilder/contextbuilder/workspace"
)

// Rebuild repopulates the index from scratch by walking layout's claims/
// tree — the only operation that ever needs to run after deleting
// search.db, since every row here is derived, never authored.
func Rebuild(ctx context.Context, ix *Index, layout workspace.Layout) error {
	claimsDir := filepath.Join(layout.Root, "claims")
	claimEntries, err := os.ReadDir(claimsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, claimEntry := range claimEntries {
		if !claimEntry.IsDir() {
			continue
		}
		claimID := claimEntry.Name()

		docCount, err := rebuildClaimDocuments(ctx, ix, layout, claimID)
		if err != nil {
			return err
		}

		if err := ix.UpsertClaim(ctx, ClaimRecord{ClaimID: claimID, DocCount: docCount}); err != nil {
			return err
		}
	}

	return nil
}

func rebuildClaimDocuments(ctx context.Context, ix *Index, layout workspace.Layout, claimID string) (int, error) {
	docsDir := filepath.Join(layout.ClaimDir(claimID), "docs")
	docEntries, err := os.ReadDir(docsDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count := 0
	for _, docEntry := range docEntries {
		if !docEntry.IsDir() {
			continue
		}
		docID := docEntry.Name()

		rec, ok, err := readDocumentRecord(layout, claimID, docID)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		if err := ix.UpsertDocument(ctx, rec); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// docMetaSummary is the subset of meta/doc.json this package reads. It is
// defined locally rather than importing orchestrator.DocMeta: the registry
// is a derived cache consumer of the on-disk artifact shape, not of the
// pipeline's internal types, and it only ever needs these fields.
type docMetaSummary struct {
	SourcePath        string  `json:"source_path"`
	DocType           string  `json:"doc_type"`
	DocTypeConfidence float64 `json:"doc_type_confidence"`
	TextMD5           string  `json:"text_md5"`
}

// readDocumentRecord reads a document's meta and canonical text off disk,
// returning ok=false if the document has no meta record yet (discovered
// but not yet ingested).
func readDocumentRecord(layout workspace.Layout, claimID, docID string) (DocumentRecord, bool, error) {
	var meta docMetaSummary
	if err := workspace.ReadJSON(layout.DocMetaPath(claimID, docID), &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DocumentRecord{}, false, nil
		}
		return DocumentRecord{}, false, err
	}

	var text doctext.DocText
	canonicalText := ""
	pageCount := 0
	if err := workspace.ReadJSON(layout.DocTextPath(claimID, docID), &text); err == nil {
		pageCount = text.PageCount
		var b strings.Builder
		for _, p := range text.Pages {
			b.WriteString(p.Text)
			b.WriteByte('\n')
		}
		canonicalText = b.String()
	} else if !errors.Is(err, os.ErrNotExist) {
		return DocumentRecord{}, false, err
	}

	return DocumentRecord{
		ClaimID:           claimID,
		DocID:             docID,
		SourcePath:        meta.SourcePath,
		DocType:           meta.DocType,
		DocTypeConfidence: meta.DocTypeConfidence,
		TextMD5:           meta.TextMD5,
		PageCount:         pageCount,
		CanonicalText:     canonicalText,
	}, true, nil
}
