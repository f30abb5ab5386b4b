package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docpipe/internal/domain"
	"docpipe/internal/port"
)

// MockDuplicateIndex is a mock implementation of port.DuplicateIndex.
type MockDuplicateIndex struct {
	mock.Mock
}

func (m *MockDuplicateIndex) LookupSimilar(ctx context.Context, contentHash string, embedding []float32, threshold float64) (*port.ExistingResultRef, error) {
	args := m.Called(ctx, contentHash, embedding, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.ExistingResultRef), args.Error(1)
}

func (m *MockDuplicateIndex) Register(ctx context.Context, contentHash string, embedding []float32, documentID uuid.UUID, result *domain.ValidatedResult) error {
	args := m.Called(ctx, contentHash, embedding, documentID, result)
	return args.Error(0)
}
