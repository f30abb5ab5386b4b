package classify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docpipe/internal/classify"
	"docpipe/internal/config"
	"docpipe/internal/domain"
	"docpipe/internal/port"
	"docpipe/mocks"
)

func newClassifier(t *testing.T, client *mocks.MockInferenceClient) *classify.Classifier {
	t.Helper()
	c, err := classify.New(client, &config.ClassifierConfig{SampleRunes: 2000, CacheSize: 16})
	require.NoError(t, err)
	return c
}

func TestClassifier_DeclaredTypeShortCircuits(t *testing.T) {
	client := new(mocks.MockInferenceClient) // any Generate call fails the test
	c := newClassifier(t, client)

	doc := &domain.Document{ID: uuid.New(), DeclaredType: "Invoice", RawText: "whatever"}
	cat := c.Classify(context.Background(), doc)

	assert.Equal(t, domain.CategoryInvoice, cat)
	client.AssertNumberOfCalls(t, "Generate", 0)
}

func TestClassifier_NormalizesChattyResponse(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("  Receipt.\n", nil).Once()
	c := newClassifier(t, client)

	doc := &domain.Document{ID: uuid.New(), RawText: "THANK YOU FOR SHOPPING"}
	cat := c.Classify(context.Background(), doc)

	assert.Equal(t, domain.CategoryReceipt, cat)
}

func TestClassifier_UnknownWordFallsToOther(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("contract", nil).Once()
	c := newClassifier(t, client)

	doc := &domain.Document{ID: uuid.New(), RawText: "AGREEMENT between"}
	cat := c.Classify(context.Background(), doc)

	assert.Equal(t, domain.CategoryOther, cat)
}

func TestClassifier_CachesPerDocument(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("invoice", nil).Once()
	c := newClassifier(t, client)

	doc := &domain.Document{ID: uuid.New(), RawText: "INVOICE"}
	first := c.Classify(context.Background(), doc)
	second := c.Classify(context.Background(), doc)

	assert.Equal(t, domain.CategoryInvoice, first)
	assert.Equal(t, first, second)
	client.AssertNumberOfCalls(t, "Generate", 1)
}

func TestClassifier_ErrorIsNonFatalAndNotCached(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("backend down")).Once()
	client.On("Generate", mock.Anything, mock.Anything).Return("resume", nil).Once()
	c := newClassifier(t, client)

	doc := &domain.Document{ID: uuid.New(), RawText: "CURRICULUM VITAE"}

	assert.Equal(t, domain.CategoryOther, c.Classify(context.Background(), doc))
	// A failed classification is retried next time, not pinned to "other".
	assert.Equal(t, domain.CategoryResume, c.Classify(context.Background(), doc))
	client.AssertNumberOfCalls(t, "Generate", 2)
}

func TestClassifier_SamplesLongDocuments(t *testing.T) {
	long := make([]rune, 10000)
	for i := range long {
		long[i] = 'x'
	}

	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerateRequest) bool {
		// Only the leading sample goes to the cheap model, never the
		// whole document.
		return len([]rune(req.Prompt)) < 2500
	})).Return("other", nil).Once()
	c := newClassifier(t, client)

	doc := &domain.Document{ID: uuid.New(), RawText: string(long)}
	c.Classify(context.Background(), doc)

	client.AssertExpectations(t)
}
