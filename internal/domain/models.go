package domain

import (
	"time"

	"github.com/google/uuid"
)

// Field name used for document-level violations that are not addressed to a
// single field, such as an unparseable model response.
const GlobalField = "__global__"

// Well-known rule identifiers for synthetic violations.
const (
	RuleUnparseableResponse = "unparseable_response"
	RuleInfrastructureError = "infrastructure_error"
)

// Document is the immutable ingestion-time identity of one source document.
// It is never mutated after creation; reprocessing supersedes rather than
// overwrites.
type Document struct {
	ID           uuid.UUID `json:"id"`
	SourcePath   string    `json:"source_path"`
	ContentHash  string    `json:"content_hash"`
	RawText      string    `json:"raw_text"`
	RawImage     []byte    `json:"raw_image,omitempty"`
	DeclaredType string    `json:"declared_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Violation is a single field-addressed reason a candidate failed validation.
type Violation struct {
	FieldName string            `json:"field_name"`
	RuleID    string            `json:"rule_id"`
	Message   string            `json:"message"`
	Severity  ViolationSeverity `json:"severity"`
}

// ExtractionAttempt records one inference round. Attempts are append-only:
// once created they are never mutated or deleted.
type ExtractionAttempt struct {
	Index       int            `json:"index"`
	PromptSent  string         `json:"prompt_sent"`
	RawResponse string         `json:"raw_response"`
	Candidate   map[string]any `json:"candidate,omitempty"`
	Violations  []Violation    `json:"violations,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// ValidatedResult is the terminal success value for one document.
// Immutable once produced.
type ValidatedResult struct {
	Fields           map[string]any    `json:"fields"`
	Confidence       float64           `json:"confidence"`
	Justifications   map[string]string `json:"justifications"`
	CorrectionRounds int               `json:"correction_rounds"`
	Provenance       ResultProvenance  `json:"provenance"`
	SourceDocumentID *uuid.UUID        `json:"source_document_id,omitempty"`
	Model            string            `json:"model,omitempty"`
}

// ExtractionSession is the unit of work for one document. It owns its
// attempts and is persisted as a checkpoint record after every state
// transition so a crashed run resumes from the last completed attempt.
type ExtractionSession struct {
	DocumentID    uuid.UUID           `json:"document_id"`
	ContentHash   string              `json:"content_hash"`
	Category      DocumentCategory    `json:"category,omitempty"`
	SchemaName    string              `json:"schema_name,omitempty"`
	SchemaVersion int                 `json:"schema_version,omitempty"`
	Status        SessionStatus       `json:"status"`
	Attempts      []ExtractionAttempt `json:"attempts,omitempty"`
	Result        *ValidatedResult    `json:"result,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// NewSession creates a pending session for a document.
func NewSession(doc *Document) *ExtractionSession {
	return &ExtractionSession{
		DocumentID:  doc.ID,
		ContentHash: doc.ContentHash,
		Status:      SessionStatusPending,
		UpdatedAt:   time.Now().UTC(),
	}
}

// AppendAttempt adds an attempt to the session's append-only sequence.
func (s *ExtractionSession) AppendAttempt(a ExtractionAttempt) {
	a.Index = len(s.Attempts)
	s.Attempts = append(s.Attempts, a)
}

// LastAttempt returns the most recent attempt, or nil for a fresh session.
func (s *ExtractionSession) LastAttempt() *ExtractionAttempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}

// LastViolations returns the violation set of the most recent attempt.
func (s *ExtractionSession) LastViolations() []Violation {
	if a := s.LastAttempt(); a != nil {
		return a.Violations
	}
	return nil
}
