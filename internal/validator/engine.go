package validator

import (
	"fmt"
	"math"

	"docpipe/internal/domain"
	"docpipe/internal/schema"
)

// Rule identifiers for the built-in check stages.
const (
	RuleRequired = "required"
	RuleType     = "type"
)

// Validate checks a candidate against a schema and returns every violation
// found in a single pass. An empty slice means the candidate is accepted.
//
// Checks run in order: required-field presence, per-field type coercion,
// then cross-field rules over the coerced candidate. Nothing fails fast:
// the repair prompt needs the complete violation set to address every
// issue in one correction round. Pure function of (candidate, schema).
func Validate(candidate map[string]any, sch *schema.ExtractionSchema) []domain.Violation {
	violations := make([]domain.Violation, 0)
	coerced := make(map[string]any, len(candidate))

	for i := range sch.Fields {
		field := &sch.Fields[i]
		if isMissing(candidate, field.Name) {
			if field.Required {
				violations = append(violations, domain.Violation{
					FieldName: field.Name,
					RuleID:    RuleRequired,
					Message:   fmt.Sprintf("required field %q is missing or empty", field.Name),
					Severity:  domain.SeverityError,
				})
			}
			continue
		}
		value, vs := coerceField(field, field.Name, candidate[field.Name])
		violations = append(violations, vs...)
		if value != nil {
			coerced[field.Name] = value
		}
	}

	for i := range sch.Rules {
		violations = append(violations, evalRule(&sch.Rules[i], coerced)...)
	}

	return violations
}

// coerceField coerces one field value, returning the coerced value (nil when
// uncoercible) and any type violations. name is the field's addressable path
// (indexed for item fields) and is used verbatim in violations.
func coerceField(field *schema.FieldSpec, name string, raw any) (any, []domain.Violation) {
	switch field.Type {
	case schema.TypeNumber:
		n, ok := coerceNumber(raw)
		if !ok {
			return nil, []domain.Violation{typeViolation(name, "number", raw)}
		}
		return n, nil
	case schema.TypeBoolean:
		b, ok := coerceBool(raw)
		if !ok {
			return nil, []domain.Violation{typeViolation(name, "boolean", raw)}
		}
		return b, nil
	case schema.TypeItems:
		items, ok := coerceItems(raw)
		if !ok {
			return nil, []domain.Violation{typeViolation(name, "array of objects", raw)}
		}
		return coerceItemFields(field, name, items)
	default:
		s, ok := coerceString(raw)
		if !ok {
			// Numbers in string slots are tolerated, printed as-is.
			return fmt.Sprintf("%v", raw), nil
		}
		return s, nil
	}
}

// coerceItemFields applies the item field specs to each element of an items
// field, collecting per-item presence and type violations under their
// indexed paths.
func coerceItemFields(field *schema.FieldSpec, name string, items []map[string]any) (any, []domain.Violation) {
	var violations []domain.Violation
	coercedItems := make([]map[string]any, 0, len(items))
	for idx, item := range items {
		out := make(map[string]any, len(item))
		for i := range field.ItemFields {
			itemField := &field.ItemFields[i]
			path := fmt.Sprintf("%s[%d].%s", name, idx, itemField.Name)
			if isMissing(item, itemField.Name) {
				if itemField.Required {
					violations = append(violations, domain.Violation{
						FieldName: path,
						RuleID:    RuleRequired,
						Message:   fmt.Sprintf("required field %q is missing or empty", path),
						Severity:  domain.SeverityError,
					})
				}
				continue
			}
			value, vs := coerceField(itemField, path, item[itemField.Name])
			violations = append(violations, vs...)
			if value != nil {
				out[itemField.Name] = value
			}
		}
		coercedItems = append(coercedItems, out)
	}
	return coercedItems, violations
}

func typeViolation(fieldName, wanted string, got any) domain.Violation {
	return domain.Violation{
		FieldName: fieldName,
		RuleID:    RuleType,
		Message:   fmt.Sprintf("field %q must be a %s, got %v", fieldName, wanted, got),
		Severity:  domain.SeverityError,
	}
}

// evalRule interprets one cross-field rule over the coerced candidate.
// Rules whose inputs are missing or uncoercible produce no violation here:
// the presence and type stages already flagged those fields.
func evalRule(rule *schema.CrossFieldRule, coerced map[string]any) []domain.Violation {
	switch rule.Kind {
	case schema.RuleFieldSum:
		return evalFieldSum(rule, coerced)
	case schema.RuleItemSum:
		return evalItemSum(rule, coerced)
	case schema.RuleLineTotal:
		return evalLineTotal(rule, coerced)
	default:
		return nil
	}
}

func evalFieldSum(rule *schema.CrossFieldRule, coerced map[string]any) []domain.Violation {
	total, ok := numberField(coerced, rule.TotalField)
	if !ok {
		return nil
	}
	var sum float64
	for _, term := range rule.Terms {
		// Absent optional terms count as zero (a receipt without a tax
		// line still has subtotal == total).
		if v, ok := numberField(coerced, term); ok {
			sum += v
		}
	}
	if approxEqual(sum, total, rule.EffectiveTolerance()) {
		return nil
	}
	return []domain.Violation{{
		FieldName: rule.TotalField,
		RuleID:    rule.ID,
		Message: fmt.Sprintf("%s %.2f does not equal %v sum %.2f",
			rule.TotalField, total, rule.Terms, sum),
		Severity: rule.EffectiveSeverity(),
	}}
}

func evalItemSum(rule *schema.CrossFieldRule, coerced map[string]any) []domain.Violation {
	total, ok := numberField(coerced, rule.TotalField)
	if !ok {
		return nil
	}
	items, ok := itemsField(coerced, rule.ItemsField)
	if !ok || len(items) == 0 {
		return nil
	}
	var sum float64
	for _, item := range items {
		v, ok := numberField(item, rule.ItemField)
		if !ok {
			return nil
		}
		sum += v
	}
	if approxEqual(sum, total, rule.EffectiveTolerance()) {
		return nil
	}
	return []domain.Violation{{
		FieldName: rule.TotalField,
		RuleID:    rule.ID,
		Message: fmt.Sprintf("%s %.2f does not equal sum of %s.%s %.2f",
			rule.TotalField, total, rule.ItemsField, rule.ItemField, sum),
		Severity: rule.EffectiveSeverity(),
	}}
}

func evalLineTotal(rule *schema.CrossFieldRule, coerced map[string]any) []domain.Violation {
	items, ok := itemsField(coerced, rule.ItemsField)
	if !ok {
		return nil
	}
	var violations []domain.Violation
	for idx, item := range items {
		actual, ok := numberField(item, rule.ItemField)
		if !ok {
			continue
		}
		product := 1.0
		complete := true
		for _, factor := range rule.Factors {
			v, ok := numberField(item, factor)
			if !ok {
				complete = false
				break
			}
			product *= v
		}
		if !complete {
			continue
		}
		if !approxEqual(product, actual, rule.EffectiveTolerance()) {
			path := fmt.Sprintf("%s[%d].%s", rule.ItemsField, idx, rule.ItemField)
			violations = append(violations, domain.Violation{
				FieldName: path,
				RuleID:    rule.ID,
				Message: fmt.Sprintf("%s %.2f does not equal %v product %.2f",
					path, actual, rule.Factors, product),
				Severity: rule.EffectiveSeverity(),
			})
		}
	}
	return violations
}

func numberField(m map[string]any, name string) (float64, bool) {
	v, ok := m[name]
	if !ok {
		return 0, false
	}
	return coerceNumber(v)
}

func itemsField(m map[string]any, name string) ([]map[string]any, bool) {
	v, ok := m[name]
	if !ok {
		return nil, false
	}
	return coerceItems(v)
}

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
