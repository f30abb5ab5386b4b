package port

import (
	"context"

	"github.com/google/uuid"

	"docpipe/internal/domain"
)

// CheckpointStore persists extraction session snapshots so an interrupted
// batch resumes from the last completed attempt instead of reprocessing.
//
// Claim/Release implement per-document mutual exclusion: no two workers may
// hold the same document concurrently. Claims are scoped to an owner string
// so a worker can re-enter its own claim after a crash.
type CheckpointStore interface {
	Load(ctx context.Context, documentID uuid.UUID) (*domain.ExtractionSession, error)
	Save(ctx context.Context, session *domain.ExtractionSession) error
	Claim(ctx context.Context, documentID uuid.UUID, owner string) (bool, error)
	Release(ctx context.Context, documentID uuid.UUID, owner string) error
	ListByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.ExtractionSession, error)
}
