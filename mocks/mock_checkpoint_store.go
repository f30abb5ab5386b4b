package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docpipe/internal/domain"
)

// MockCheckpointStore is a mock implementation of port.CheckpointStore.
type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) Load(ctx context.Context, documentID uuid.UUID) (*domain.ExtractionSession, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionSession), args.Error(1)
}

func (m *MockCheckpointStore) Save(ctx context.Context, session *domain.ExtractionSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockCheckpointStore) Claim(ctx context.Context, documentID uuid.UUID, owner string) (bool, error) {
	args := m.Called(ctx, documentID, owner)
	return args.Bool(0), args.Error(1)
}

func (m *MockCheckpointStore) Release(ctx context.Context, documentID uuid.UUID, owner string) error {
	args := m.Called(ctx, documentID, owner)
	return args.Error(0)
}

func (m *MockCheckpointStore) ListByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.ExtractionSession, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExtractionSession), args.Error(1)
}
