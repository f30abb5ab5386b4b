package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docpipe/internal/port"
)

// MockDocumentReader is a mock implementation of port.DocumentReader.
type MockDocumentReader struct {
	mock.Mock
}

func (m *MockDocumentReader) Read(ctx context.Context, path string) (*port.PageContent, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.PageContent), args.Error(1)
}
