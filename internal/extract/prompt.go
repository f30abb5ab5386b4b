package extract

import (
	"fmt"
	"strings"

	"docpipe/internal/domain"
	"docpipe/internal/schema"
)

// BuildExtractionPrompt renders the prompt for one extraction attempt. The
// first attempt carries no violations; repair attempts embed the prior
// attempt's violation list verbatim, field-addressed, instructing the
// backend to correct exactly those fields while preserving correct ones.
func BuildExtractionPrompt(doc *domain.Document, sch *schema.ExtractionSchema, priorViolations []domain.Violation) string {
	var b strings.Builder

	if len(doc.RawImage) > 0 {
		b.WriteString("You are an expert data extractor analyzing a document image. ")
		b.WriteString("The provided text is an OCR transcript of the image; use it to improve accuracy, ")
		b.WriteString("but trust the visual information in the image first. ")
		b.WriteString("For each justification, briefly describe the location of the value on the page (e.g. \"top right corner\").\n\n")
	} else {
		b.WriteString("You are an expert data extractor. Extract structured data from the provided text. ")
		b.WriteString("For each justification, briefly quote the text that supports the extracted value.\n\n")
	}

	b.WriteString("Return ONLY valid JSON with no markdown formatting, no code fences, no explanation. Just the raw JSON object.\n\n")
	b.WriteString("Return two top-level keys: \"fields\" and \"justifications\".\n\n")
	b.WriteString("The \"fields\" object must follow this schema (")
	b.WriteString(sch.Name)
	b.WriteString("):\n")
	b.WriteString(renderSkeleton(sch))
	b.WriteString("\n\nThe \"justifications\" object must map each top-level field name to a short evidence string. ")
	b.WriteString("Use an empty string for fields not found in the document.\n")
	b.WriteString("If a field is not present in the document, use empty string for text, 0 for numbers, and false for booleans.\n")

	if len(priorViolations) > 0 {
		b.WriteString("\nYour previous attempt failed validation with the following errors:\n")
		for _, v := range priorViolations {
			b.WriteString(fmt.Sprintf("- [%s] %s: %s\n", v.RuleID, v.FieldName, v.Message))
		}
		b.WriteString("Re-examine the document and correct EXACTLY these fields. Keep every field that is not listed above unchanged.\n")
	}

	if doc.RawText != "" {
		b.WriteString("\nText:\n---\n")
		b.WriteString(doc.RawText)
		b.WriteString("\n---\n")
	}
	b.WriteString("\nJSON Output:")
	return b.String()
}

// renderSkeleton renders a zero-valued JSON skeleton of the schema, in
// declaration order, for the prompt.
func renderSkeleton(sch *schema.ExtractionSchema) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i := range sch.Fields {
		writeFieldSkeleton(&b, &sch.Fields[i], "  ", i == len(sch.Fields)-1)
	}
	b.WriteString("}")
	return b.String()
}

func writeFieldSkeleton(b *strings.Builder, f *schema.FieldSpec, indent string, last bool) {
	b.WriteString(indent)
	b.WriteString(fmt.Sprintf("%q: ", f.Name))
	switch f.Type {
	case schema.TypeNumber:
		b.WriteString("0")
	case schema.TypeBoolean:
		b.WriteString("false")
	case schema.TypeItems:
		b.WriteString("[\n")
		b.WriteString(indent + "  {\n")
		for i := range f.ItemFields {
			writeFieldSkeleton(b, &f.ItemFields[i], indent+"    ", i == len(f.ItemFields)-1)
		}
		b.WriteString(indent + "  }\n")
		b.WriteString(indent + "]")
	default:
		b.WriteString(`""`)
	}
	if !last {
		b.WriteString(",")
	}
	b.WriteString("\n")
}
