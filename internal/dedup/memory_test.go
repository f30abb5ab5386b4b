package dedup_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpipe/internal/dedup"
	"docpipe/internal/domain"
)

func TestMemoryIndex_ExactHashMatch(t *testing.T) {
	index := dedup.NewMemoryIndex()
	docID := uuid.New()
	result := &domain.ValidatedResult{Confidence: 0.9}

	require.NoError(t, index.Register(context.Background(), "h1", nil, docID, result))

	ref, err := index.LookupSimilar(context.Background(), "h1", nil, 0.95)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, docID, ref.DocumentID)
	assert.Equal(t, 1.0, ref.Score)
	assert.Equal(t, result, ref.Result)
}

func TestMemoryIndex_MissWithoutEmbedding(t *testing.T) {
	index := dedup.NewMemoryIndex()
	require.NoError(t, index.Register(context.Background(), "h1", nil, uuid.New(), &domain.ValidatedResult{}))

	ref, err := index.LookupSimilar(context.Background(), "h2", nil, 0.95)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestMemoryIndex_CosineSimilarity(t *testing.T) {
	index := dedup.NewMemoryIndex()
	docID := uuid.New()
	require.NoError(t, index.Register(context.Background(), "h1", []float32{1, 0, 0}, docID, &domain.ValidatedResult{}))

	// Nearly parallel vector, different hash.
	ref, err := index.LookupSimilar(context.Background(), "h2", []float32{0.99, 0.01, 0}, 0.95)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, docID, ref.DocumentID)
	assert.GreaterOrEqual(t, ref.Score, 0.95)

	// Orthogonal vector stays below the threshold.
	ref, err = index.LookupSimilar(context.Background(), "h2", []float32{0, 1, 0}, 0.95)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestMemoryIndex_PicksBestMatch(t *testing.T) {
	index := dedup.NewMemoryIndex()
	closeID := uuid.New()
	require.NoError(t, index.Register(context.Background(), "h1", []float32{0.96, 0.28, 0}, uuid.New(), &domain.ValidatedResult{}))
	require.NoError(t, index.Register(context.Background(), "h2", []float32{1, 0, 0}, closeID, &domain.ValidatedResult{}))

	ref, err := index.LookupSimilar(context.Background(), "h3", []float32{1, 0, 0}, 0.9)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, closeID, ref.DocumentID)
}
