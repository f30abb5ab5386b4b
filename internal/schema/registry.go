package schema

import (
	"docpipe/internal/domain"
)

// Registry maps document categories to extraction schemas.
type Registry struct {
	schemas map[domain.DocumentCategory]*ExtractionSchema
	generic *ExtractionSchema
}

// NewRegistry creates a registry seeded with the built-in schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[domain.DocumentCategory]*ExtractionSchema)}
	r.Register(domain.CategoryInvoice, InvoiceSchema())
	r.Register(domain.CategoryReceipt, ReceiptSchema())
	r.Register(domain.CategoryResume, ResumeSchema())
	r.generic = GenericSchema()
	return r
}

// Register adds or replaces the schema for a category.
func (r *Registry) Register(cat domain.DocumentCategory, s *ExtractionSchema) {
	r.schemas[cat] = s
}

// ForCategory returns the schema for a category, falling back to the generic
// schema so a misclassified or unknown document still produces a session
// rather than an abort.
func (r *Registry) ForCategory(cat domain.DocumentCategory) *ExtractionSchema {
	if s, ok := r.schemas[cat]; ok {
		return s
	}
	return r.generic
}

// Generic returns the fallback schema.
func (r *Registry) Generic() *ExtractionSchema {
	return r.generic
}

// InvoiceSchema is the built-in invoice field specification.
func InvoiceSchema() *ExtractionSchema {
	return &ExtractionSchema{
		Name:    "invoice",
		Version: 1,
		Fields: []FieldSpec{
			{Name: "vendor_name", Type: TypeString, Required: true},
			{Name: "invoice_number", Type: TypeString},
			{Name: "invoice_date", Type: TypeString},
			{Name: "line_items", Type: TypeItems, Required: true, ItemFields: []FieldSpec{
				{Name: "description", Type: TypeString, Required: true},
				{Name: "quantity", Type: TypeNumber, Required: true},
				{Name: "unit_price", Type: TypeNumber, Required: true},
				{Name: "total", Type: TypeNumber, Required: true},
			}},
			{Name: "subtotal", Type: TypeNumber, Required: true},
			{Name: "tax", Type: TypeNumber},
			{Name: "total", Type: TypeNumber, Required: true},
		},
		Rules: []CrossFieldRule{
			{
				ID: "invoice.line_total", Kind: RuleLineTotal,
				ItemsField: "line_items", ItemField: "total",
				Factors: []string{"quantity", "unit_price"}, Tolerance: 0.02,
			},
			{
				ID: "invoice.items_subtotal", Kind: RuleItemSum,
				ItemsField: "line_items", ItemField: "total",
				TotalField: "subtotal", Tolerance: 0.02,
			},
			{
				ID: "invoice.grand_total", Kind: RuleFieldSum,
				Terms: []string{"subtotal", "tax"}, TotalField: "total",
			},
		},
	}
}

// ReceiptSchema is the built-in receipt field specification.
func ReceiptSchema() *ExtractionSchema {
	return &ExtractionSchema{
		Name:    "receipt",
		Version: 1,
		Fields: []FieldSpec{
			{Name: "merchant_name", Type: TypeString, Required: true},
			{Name: "purchase_date", Type: TypeString},
			{Name: "payment_method", Type: TypeString},
			{Name: "subtotal", Type: TypeNumber},
			{Name: "tax", Type: TypeNumber},
			{Name: "total", Type: TypeNumber, Required: true},
		},
		Rules: []CrossFieldRule{
			{
				ID: "receipt.grand_total", Kind: RuleFieldSum,
				Terms: []string{"subtotal", "tax"}, TotalField: "total",
			},
		},
	}
}

// ResumeSchema is the built-in resume field specification.
func ResumeSchema() *ExtractionSchema {
	return &ExtractionSchema{
		Name:    "resume",
		Version: 1,
		Fields: []FieldSpec{
			{Name: "full_name", Type: TypeString, Required: true},
			{Name: "email", Type: TypeString},
			{Name: "phone", Type: TypeString},
			{Name: "current_title", Type: TypeString},
			{Name: "years_experience", Type: TypeNumber},
			{Name: "skills", Type: TypeItems, ItemFields: []FieldSpec{
				{Name: "name", Type: TypeString, Required: true},
			}},
		},
	}
}

// GenericSchema is the fallback for unrecognized documents. Nothing is
// required, so any document yields at least a titled summary record.
func GenericSchema() *ExtractionSchema {
	return &ExtractionSchema{
		Name:    "generic",
		Version: 1,
		Fields: []FieldSpec{
			{Name: "title", Type: TypeString},
			{Name: "date", Type: TypeString},
			{Name: "summary", Type: TypeString},
		},
	}
}
