package schema

import (
	"docpipe/internal/domain"
)

// FieldType is the closed set of value types a field may declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeItems   FieldType = "items" // array of objects with their own field specs
)

// FieldSpec declares one field of an extraction schema.
type FieldSpec struct {
	Name       string      `json:"name"`
	Type       FieldType   `json:"type"`
	Required   bool        `json:"required"`
	ItemFields []FieldSpec `json:"item_fields,omitempty"` // for TypeItems
}

// RuleKind is the closed set of cross-field rule kinds the validator can
// interpret. Rules are data, not code: a small interpreter evaluates them
// so validation stays deterministic and testable.
type RuleKind string

const (
	// RuleFieldSum checks sum(Terms) ≈ TotalField (e.g. subtotal + tax == total).
	RuleFieldSum RuleKind = "field_sum"
	// RuleItemSum checks sum(items[].ItemField) ≈ TotalField.
	RuleItemSum RuleKind = "item_sum"
	// RuleLineTotal checks, per item, product(Factors) ≈ ItemField.
	RuleLineTotal RuleKind = "line_total"
)

// DefaultTolerance is the absolute epsilon for numeric comparisons when a
// rule does not declare its own.
const DefaultTolerance = 0.01

// CrossFieldRule is one arithmetic-consistency rule evaluated over the
// coerced candidate.
type CrossFieldRule struct {
	ID         string                   `json:"id"`
	Kind       RuleKind                 `json:"kind"`
	Terms      []string                 `json:"terms,omitempty"`       // field_sum
	ItemsField string                   `json:"items_field,omitempty"` // item_sum, line_total
	ItemField  string                   `json:"item_field,omitempty"`  // item_sum: summed field; line_total: compared field
	Factors    []string                 `json:"factors,omitempty"`     // line_total
	TotalField string                   `json:"total_field,omitempty"` // field_sum, item_sum
	Tolerance  float64                  `json:"tolerance,omitempty"`
	Severity   domain.ViolationSeverity `json:"severity,omitempty"`
}

// EffectiveTolerance returns the rule's tolerance, falling back to the default.
func (r *CrossFieldRule) EffectiveTolerance() float64 {
	if r.Tolerance > 0 {
		return r.Tolerance
	}
	return DefaultTolerance
}

// EffectiveSeverity returns the rule's severity, defaulting to error.
func (r *CrossFieldRule) EffectiveSeverity() domain.ViolationSeverity {
	if r.Severity != "" {
		return r.Severity
	}
	return domain.SeverityError
}

// ExtractionSchema is a named, versioned field specification. Immutable at
// run time; supplied per document category.
type ExtractionSchema struct {
	Name    string           `json:"name"`
	Version int              `json:"version"`
	Fields  []FieldSpec      `json:"fields"`
	Rules   []CrossFieldRule `json:"rules,omitempty"`
}

// FieldNames returns the ordered top-level field names.
func (s *ExtractionSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Field returns the spec for a top-level field name, or nil.
func (s *ExtractionSchema) Field(name string) *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}
