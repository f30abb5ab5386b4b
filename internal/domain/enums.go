package domain

// SessionStatus represents the lifecycle of an extraction session.
type SessionStatus string

const (
	SessionStatusPending     SessionStatus = "pending"
	SessionStatusClassifying SessionStatus = "classifying"
	SessionStatusExtracting  SessionStatus = "extracting"
	SessionStatusValidating  SessionStatus = "validating"
	SessionStatusRepairing   SessionStatus = "repairing"
	SessionStatusSucceeded   SessionStatus = "succeeded"
	SessionStatusFailed      SessionStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSucceeded || s == SessionStatusFailed
}

// DocumentCategory is the closed set of categories the classifier may assign.
type DocumentCategory string

const (
	CategoryInvoice DocumentCategory = "invoice"
	CategoryReceipt DocumentCategory = "receipt"
	CategoryResume  DocumentCategory = "resume"
	CategoryOther   DocumentCategory = "other"
)

// KnownCategories maps classifier output strings to categories.
var KnownCategories = map[string]DocumentCategory{
	"invoice": CategoryInvoice,
	"receipt": CategoryReceipt,
	"resume":  CategoryResume,
	"other":   CategoryOther,
}

// ViolationSeverity distinguishes blocking violations from advisory ones.
type ViolationSeverity string

const (
	SeverityError   ViolationSeverity = "error"
	SeverityWarning ViolationSeverity = "warning"
)

// ResultProvenance records how a validated result was produced.
type ResultProvenance string

const (
	ProvenanceExtracted    ResultProvenance = "extracted"
	ProvenanceDeduplicated ResultProvenance = "deduplicated"
)
