// Package truth implements the ground-truth registry (C9): a run-agnostic,
// comparison-only label per (file_md5, field_name), with an append-only
// history of every state transition.
package truth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/contextbuilder/contextbuilder/workspace"
)

// State is a ground-truth label's lifecycle state (spec.md §4.9).
type State string

const (
	StateUnlabeled   State = "UNLABELED"
	StateLabeled     State = "LABELED"
	StateUnverifiable State = "UNVERIFIABLE"
)

// ErrLabelInvalid is returned when a transition violates the state
// machine's invariants.
var ErrLabelInvalid = errors.New("truth: invalid label state transition")

// ErrConfirmationRequired is returned when editing an existing LABELED
// entry without explicit confirmation (spec.md §4.9 "editing LABELED
// requires explicit confirmation").
var ErrConfirmationRequired = errors.New("truth: editing a labeled field requires explicit confirmation")

// ErrInvalidReason is returned when an UNVERIFIABLE reason isn't one of the
// spec.md §3 enum values.
var ErrInvalidReason = errors.New("truth: unverifiable_reason is not a recognized reason code")

// validUnverifiableReasons is the closed set of reason codes spec.md §3
// defines for an UNVERIFIABLE label.
var validUnverifiableReasons = map[string]bool{
	"not_present_in_doc": true,
	"unreadable_text":    true,
	"wrong_doc_type":     true,
	"cannot_verify":      true,
	"other":              true,
}

// labelSchemaVersion is the schema_version stamped on every Label
// (spec.md §6 "label_v2").
const labelSchemaVersion = "label_v2"

// Label is the ground truth recorded for one (file_md5, field_name) pair.
type Label struct {
	SchemaVersion      string `json:"schema_version"`
	FieldName          string `json:"field_name"`
	State              State  `json:"state"`
	TruthValue         string `json:"truth_value,omitempty"`
	UnverifiableReason string `json:"unverifiable_reason,omitempty"`
	UpdatedAt          string `json:"updated_at"`
}

// FileLabels is the full set of field labels for one file_md5, the shape
// persisted at registry/truth/<file_md5>/latest.json.
type FileLabels struct {
	FileMD5 string           `json:"file_md5"`
	Fields  map[string]Label `json:"fields"`
}

// Registry manages ground-truth labels on disk under a workspace Layout.
type Registry struct {
	layout workspace.Layout
}

// NewRegistry creates a Registry rooted at layout.
func NewRegistry(layout workspace.Layout) *Registry {
	return &Registry{layout: layout}
}

// Get returns the current labels for fileMD5, or an empty FileLabels if
// none have been recorded yet.
func (r *Registry) Get(fileMD5 string) (FileLabels, error) {
	path := r.layout.RegistryTruthLatest(fileMD5)
	var fl FileLabels
	if err := workspace.ReadJSON(path, &fl); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileLabels{FileMD5: fileMD5, Fields: map[string]Label{}}, nil
		}
		return FileLabels{}, err
	}
	if fl.Fields == nil {
		fl.Fields = map[string]Label{}
	}
	return fl, nil
}

// Label records a LABELED truth value for (fileMD5, fieldName). truthValue
// must be non-empty (spec.md §4.9: "LABELED requires truth_value").
// Overwriting an existing LABELED entry requires confirm=true.
func (r *Registry) Label(fileMD5, fieldName, truthValue string, confirm bool) error {
	if truthValue == "" {
		return fmt.Errorf("%w: truth_value is required to label %s/%s", ErrLabelInvalid, fileMD5, fieldName)
	}
	return r.transition(fileMD5, fieldName, confirm, Label{
		FieldName:  fieldName,
		State:      StateLabeled,
		TruthValue: truthValue,
	})
}

// Unverifiable records an UNVERIFIABLE label with a required reason drawn
// from the spec.md §3 reason enum (spec.md §4.9: "UNVERIFIABLE (reason)").
func (r *Registry) Unverifiable(fileMD5, fieldName, reason string, confirm bool) error {
	if reason == "" {
		return fmt.Errorf("%w: unverifiable_reason is required for %s/%s", ErrLabelInvalid, fileMD5, fieldName)
	}
	if !validUnverifiableReasons[reason] {
		return fmt.Errorf("%w: %q for %s/%s", ErrInvalidReason, reason, fileMD5, fieldName)
	}
	return r.transition(fileMD5, fieldName, confirm, Label{
		FieldName:          fieldName,
		State:              StateUnverifiable,
		UnverifiableReason: reason,
	})
}

// transition applies newLabel to (fileMD5, fieldName), refusing to
// overwrite an existing LABELED or UNVERIFIABLE entry unless confirm is
// true, then appends a full FileLabels snapshot to history and rewrites
// latest.json atomically.
func (r *Registry) transition(fileMD5, fieldName string, confirm bool, newLabel Label) error {
	fl, err := r.Get(fileMD5)
	if err != nil {
		return err
	}
	fl.FileMD5 = fileMD5

	if existing, ok := fl.Fields[fieldName]; ok && existing.State != StateUnlabeled && !confirm {
		return fmt.Errorf("%w: %s/%s is already %s", ErrConfirmationRequired, fileMD5, fieldName, existing.State)
	}

	newLabel.SchemaVersion = labelSchemaVersion
	newLabel.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	fl.Fields[fieldName] = newLabel

	latest := r.layout.RegistryTruthLatest(fileMD5)
	history := r.layout.RegistryTruthHistory(fileMD5)
	if _, err := workspace.SaveVersioned(latest, history, fl); err != nil {
		return fmt.Errorf("truth: saving label %s/%s: %w", fileMD5, fieldName, err)
	}
	return nil
}
