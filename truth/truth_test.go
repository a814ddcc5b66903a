package truth

import (
	"errors"
	"testing"

	"github.com/contextbuilder/contextbuilder/workspace"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	layout := workspace.NewLayout(t.TempDir())
	return NewRegistry(layout)
}

func TestLabelRequiresTruthValue(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Label("md5abc", "incident_date", "", false)
	if !errors.Is(err, ErrLabelInvalid) {
		t.Errorf("expected ErrLabelInvalid, got %v", err)
	}
}

func TestUnverifiableRequiresReason(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Unverifiable("md5abc", "incident_date", "", false)
	if !errors.Is(err, ErrLabelInvalid) {
		t.Errorf("expected ErrLabelInvalid, got %v", err)
	}
}

func TestUnverifiableRejectsUnknownReason(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Unverifiable("md5abc", "incident_date", "illegible handwriting", false)
	if !errors.Is(err, ErrInvalidReason) {
		t.Errorf("expected ErrInvalidReason, got %v", err)
	}
}

func TestLabelThenGet(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Label("md5abc", "incident_date", "2024-01-13", false); err != nil {
		t.Fatalf("Label: %v", err)
	}
	fl, err := r.Get("md5abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	field, ok := fl.Fields["incident_date"]
	if !ok {
		t.Fatal("expected incident_date label to exist")
	}
	if field.State != StateLabeled || field.TruthValue != "2024-01-13" {
		t.Errorf("got %+v", field)
	}
}

func TestEditingLabeledRequiresConfirmation(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Label("md5abc", "incident_date", "2024-01-13", false); err != nil {
		t.Fatalf("Label: %v", err)
	}
	err := r.Label("md5abc", "incident_date", "2024-01-14", false)
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("expected ErrConfirmationRequired, got %v", err)
	}

	if err := r.Label("md5abc", "incident_date", "2024-01-14", true); err != nil {
		t.Fatalf("Label with confirm: %v", err)
	}
	fl, _ := r.Get("md5abc")
	if fl.Fields["incident_date"].TruthValue != "2024-01-14" {
		t.Errorf("expected updated truth value after confirmed edit")
	}
}

func TestUnlabeledFieldNeedsNoConfirmation(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Label("md5abc", "incident_date", "2024-01-13", false); err != nil {
		t.Fatalf("Label: %v", err)
	}
	if err := r.Unverifiable("md5abc", "officer_name", "unreadable_text", false); err != nil {
		t.Fatalf("Unverifiable: %v", err)
	}
	fl, _ := r.Get("md5abc")
	if fl.Fields["officer_name"].State != StateUnverifiable {
		t.Errorf("expected officer_name to be UNVERIFIABLE")
	}
}

func TestGetOnUnknownFileReturnsEmpty(t *testing.T) {
	r := newTestRegistry(t)
	fl, err := r.Get("never-seen")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(fl.Fields) != 0 {
		t.Errorf("expected no fields, got %v", fl.Fields)
	}
}
