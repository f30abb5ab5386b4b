package port

import (
	"context"

	"github.com/google/uuid"

	"docpipe/internal/domain"
)

// ExistingResultRef points at a previously validated result that a new
// document was matched against.
type ExistingResultRef struct {
	DocumentID  uuid.UUID
	ContentHash string
	Score       float64
	Result      *domain.ValidatedResult
}

// DuplicateIndex is the vector-store boundary for the deduplication gate.
// A nil ref with a nil error is a miss.
type DuplicateIndex interface {
	LookupSimilar(ctx context.Context, contentHash string, embedding []float32, threshold float64) (*ExistingResultRef, error)
	Register(ctx context.Context, contentHash string, embedding []float32, documentID uuid.UUID, result *domain.ValidatedResult) error
}

// Embedder computes an embedding for document text. Embedding computation
// itself is an external collaborator; the pipeline only carries the vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
