// Package doctype implements the document type catalog (C3): the set of
// supported claim document types, their required/optional fields, the
// normalizer and validator bound to each field, and the quality-gate
// thresholds the field set must satisfy. Specs are loaded once per run and
// hashed so every extraction_result_v1 can cite the exact spec version it
// ran against.
package doctype

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FieldRule binds a named field to the normalizer and validator that turn a
// raw LLM-extracted value into the canonical, comparable form used by both
// the UI and the metrics aggregator.
type FieldRule struct {
	Normalize string   `yaml:"normalize" validate:"omitempty"`
	Validate  string   `yaml:"validate" validate:"omitempty"`
	Hints     []string `yaml:"hints" validate:"omitempty"`
}

// QualityGateThresholds are the pass/warn/fail boundaries a DocTypeSpec
// defines for its own field set (spec §4.6 computes the ratios; the spec
// only supplies the cutoffs).
type QualityGateThresholds struct {
	PassIfRequiredPresentRatio float64 `yaml:"pass_if_required_present_ratio" validate:"gte=0,lte=1"`
	PassIfEvidenceRate         float64 `yaml:"pass_if_evidence_rate" validate:"gte=0,lte=1"`
	WarnIfEvidenceRate         float64 `yaml:"warn_if_evidence_rate" validate:"gte=0,lte=1"`
}

// DocTypeSpec is the full per-doc_type contract: which fields exist, how
// each is normalized/validated, what hints the candidate-span finder looks
// for, and the thresholds the quality gate applies to the result.
type DocTypeSpec struct {
	DocType        string               `yaml:"doc_type" validate:"required"`
	Version        int                  `yaml:"version" validate:"required,gte=1"`
	Description    string               `yaml:"description"`
	RouterCues     []string             `yaml:"router_cues"`
	RequiredFields []string             `yaml:"required_fields" validate:"required,min=1,dive,required"`
	OptionalFields []string             `yaml:"optional_fields" validate:"dive,required"`
	FieldRules     map[string]FieldRule `yaml:"field_rules" validate:"required"`

	// QualityGate must be present explicitly: a spec with no quality_gate
	// block has no defined pass/warn/fail thresholds, and the loader
	// rejects it rather than silently defaulting every threshold to 0
	// (which would make gate.Evaluate pass every document unconditionally).
	QualityGate *QualityGateThresholds `yaml:"quality_gate" validate:"required"`
}

// AllFields returns required and optional field names combined, required
// first, in declaration order.
func (s *DocTypeSpec) AllFields() []string {
	fields := make([]string, 0, len(s.RequiredFields)+len(s.OptionalFields))
	fields = append(fields, s.RequiredFields...)
	fields = append(fields, s.OptionalFields...)
	return fields
}

// IsRequired reports whether field is in RequiredFields.
func (s *DocTypeSpec) IsRequired(field string) bool {
	for _, f := range s.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

// Hash computes the deterministic extraction_spec_hash for this spec: a
// SHA-256 digest over its canonical JSON encoding (map keys sorted, no
// whitespace), so two specs that are byte-for-byte equivalent in meaning
// always hash identically regardless of YAML formatting.
func (s *DocTypeSpec) Hash() (string, error) {
	canonical, err := canonicalJSON(s)
	if err != nil {
		return "", fmt.Errorf("doctype: hashing spec %s: %w", s.DocType, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Catalog holds every loaded DocTypeSpec, keyed by doc_type.
type Catalog struct {
	specs map[string]*DocTypeSpec
}

var validate = validator.New()

// validNormalizers and validValidators are the only normalizer/validator
// names a field_rules entry may reference; the set a spec can name is
// exactly the set normalize.go and validate.go implement.
var validNormalizers = map[string]bool{
	"":               true,
	"none":           true,
	"trim":           true,
	"uppercase_trim": true,
	"date_to_iso":    true,
	"digits_only":    true,
	"currency_to_decimal": true,
}

var validValidators = map[string]bool{
	"":               true,
	"none":           true,
	"non_empty":      true,
	"valid_date":     true,
	"valid_currency": true,
	"min_length_3":   true,
}

// LoadCatalog reads every *.yaml/*.yml file in dir as a DocTypeSpec and
// fail-fasts per spec §4.3: empty required_fields, duplicate field names
// across required/optional, or unknown normalizer/validator names abort
// the entire load (a catalog that only partially loaded would let the
// classifier route into an incompletely validated spec).
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("doctype: reading catalog dir %s: %w", dir, err)
	}

	cat := &Catalog{specs: make(map[string]*DocTypeSpec)}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, e.Name())
		spec, err := loadSpecFile(path)
		if err != nil {
			return nil, err
		}
		if _, exists := cat.specs[spec.DocType]; exists {
			return nil, fmt.Errorf("doctype: duplicate doc_type %q across catalog files", spec.DocType)
		}
		cat.specs[spec.DocType] = spec
	}

	if len(cat.specs) == 0 {
		return nil, fmt.Errorf("doctype: no doc type specs found in %s", dir)
	}

	return cat, nil
}

func loadSpecFile(path string) (*DocTypeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("doctype: reading %s: %w", path, err)
	}

	var spec DocTypeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("doctype: parsing %s: %w", path, err)
	}

	if err := validateSpec(&spec); err != nil {
		return nil, fmt.Errorf("doctype: %s: %w", path, err)
	}

	return &spec, nil
}

func validateSpec(spec *DocTypeSpec) error {
	if err := validate.Struct(spec); err != nil {
		return fmt.Errorf("spec invalid: %w", err)
	}

	seen := make(map[string]bool, len(spec.RequiredFields)+len(spec.OptionalFields))
	for _, f := range spec.AllFields() {
		if seen[f] {
			return fmt.Errorf("duplicate field name %q", f)
		}
		seen[f] = true
	}

	for name, rule := range spec.FieldRules {
		if !seen[name] {
			return fmt.Errorf("field_rules references undeclared field %q", name)
		}
		if !validNormalizers[rule.Normalize] {
			return fmt.Errorf("field %q: unknown normalizer %q", name, rule.Normalize)
		}
		if !validValidators[rule.Validate] {
			return fmt.Errorf("field %q: unknown validator %q", name, rule.Validate)
		}
	}

	return nil
}

// Get returns the spec for docType, or an error if the catalog has none.
func (c *Catalog) Get(docType string) (*DocTypeSpec, error) {
	spec, ok := c.specs[docType]
	if !ok {
		return nil, fmt.Errorf("doctype: unknown doc_type %q", docType)
	}
	return spec, nil
}

// DocTypes returns every doc_type name in the catalog, sorted.
func (c *Catalog) DocTypes() []string {
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanonicalBytes returns a deterministic JSON encoding of every spec in the
// catalog, ordered by doc_type, fingerprinting the whole catalog state in
// effect for a run's VersionBundle (spec.md §4.11 "extraction_spec_hash").
func (c *Catalog) CanonicalBytes() ([]byte, error) {
	types := c.DocTypes()
	ordered := make([]*DocTypeSpec, 0, len(types))
	for _, t := range types {
		ordered = append(ordered, c.specs[t])
	}
	return canonicalJSON(ordered)
}

// RouterCues returns a docType→cues map for the classifier's router prompt.
func (c *Catalog) RouterCues() map[string][]string {
	cues := make(map[string][]string, len(c.specs))
	for docType, spec := range c.specs {
		cues[docType] = spec.RouterCues
	}
	return cues
}

// canonicalJSON marshals v with sorted map keys and no extra whitespace.
// encoding/json already sorts map[string]V keys during Marshal, so this is
// a thin wrapper kept as its own function so Hash's intent reads clearly.
func canonicalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
