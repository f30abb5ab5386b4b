package extract_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"docpipe/internal/domain"
	"docpipe/internal/extract"
	"docpipe/internal/schema"
)

func TestBuildExtractionPrompt_FirstAttempt(t *testing.T) {
	doc := &domain.Document{RawText: "INVOICE #42 from Acme"}

	prompt := extract.BuildExtractionPrompt(doc, schema.InvoiceSchema(), nil)

	assert.Contains(t, prompt, `"fields"`)
	assert.Contains(t, prompt, `"justifications"`)
	assert.Contains(t, prompt, `"vendor_name"`)
	assert.Contains(t, prompt, `"line_items"`)
	assert.Contains(t, prompt, "INVOICE #42 from Acme")
	assert.NotContains(t, prompt, "previous attempt")
}

func TestBuildExtractionPrompt_RepairCarriesViolations(t *testing.T) {
	doc := &domain.Document{RawText: "INVOICE #42"}
	violations := []domain.Violation{
		{FieldName: "subtotal", RuleID: "invoice.items_subtotal", Message: "subtotal 90.00 does not equal sum of line_items.total 100.00"},
		{FieldName: "vendor_name", RuleID: "required", Message: `required field "vendor_name" is missing or empty`},
	}

	prompt := extract.BuildExtractionPrompt(doc, schema.InvoiceSchema(), violations)

	assert.Contains(t, prompt, "previous attempt failed validation")
	assert.Contains(t, prompt, "- [invoice.items_subtotal] subtotal: subtotal 90.00 does not equal sum of line_items.total 100.00")
	assert.Contains(t, prompt, "- [required] vendor_name:")
	assert.Contains(t, prompt, "correct EXACTLY these fields")
}

func TestBuildExtractionPrompt_ImageDocument(t *testing.T) {
	doc := &domain.Document{RawImage: []byte{0x89, 0x50}, RawText: "ocr text"}

	prompt := extract.BuildExtractionPrompt(doc, schema.ReceiptSchema(), nil)

	assert.Contains(t, prompt, "document image")
	assert.Contains(t, prompt, "ocr text")
}

func TestBuildExtractionPrompt_SkeletonOrderFollowsSchema(t *testing.T) {
	doc := &domain.Document{RawText: "x"}
	sch := schema.ReceiptSchema()

	prompt := extract.BuildExtractionPrompt(doc, sch, nil)

	last := -1
	for _, name := range sch.FieldNames() {
		idx := strings.Index(prompt, `"`+name+`"`)
		assert.Greater(t, idx, last, "field %s out of order", name)
		last = idx
	}
}
