// Package ingest implements the document-ingestion providers (C2) that turn
// a source file (PDF, image scan, spreadsheet, plain text) into canonical
// per-page text (doctext.DocText). Providers are selected by file format
// through a Registry, mirroring the parser registry pattern this codebase
// has always used for format dispatch.
package ingest

import (
	"context"
	"fmt"

	"github.com/contextbuilder/contextbuilder/doctext"
)

// Provider ingests one source file and returns its pages in reading order.
// Implementations normalize page numbers themselves is not required — the
// caller (orchestrator) passes the result through doctext.New, which
// renumbers pages to be 1-based and contiguous.
type Provider interface {
	SupportedFormats() []string
	Ingest(ctx context.Context, path string) ([]doctext.Page, error)
}

// Registry dispatches an ingestion request to the provider registered for
// the source's format (file extension without the dot, lowercased).
type Registry struct {
	providers map[string]Provider
}

// NewRegistry returns an empty registry. Callers register providers with
// Register; contextbuilder.New wires the default set based on Config
// (defaultIngestRegistry in engine.go).
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register associates a format (e.g. "pdf", "xlsx") with a provider.
// Registering the same format twice overwrites the previous provider,
// which lets callers layer a fallback provider over the defaults (e.g.
// a Document Intelligence provider replacing the native PDF provider).
func (r *Registry) Register(format string, p Provider) {
	r.providers[format] = p
}

// Get returns the provider registered for format, or an error if none is.
func (r *Registry) Get(format string) (Provider, error) {
	p, ok := r.providers[format]
	if !ok {
		return nil, fmt.Errorf("ingest: no provider registered for format %q", format)
	}
	return p, nil
}

// Formats returns the set of formats this registry can ingest, useful for
// classify/gate rules that need to know whether a doc_type's source is
// ingestible at all.
func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.providers))
	for f := range r.providers {
		formats = append(formats, f)
	}
	return formats
}
