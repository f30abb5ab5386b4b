package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sqlitestore "docpipe/internal/checkpoint/sqlite"
	"docpipe/internal/classify"
	"docpipe/internal/config"
	"docpipe/internal/dedup"
	"docpipe/internal/domain"
	"docpipe/internal/extract"
	"docpipe/internal/ingest"
	"docpipe/internal/pipeline"
	"docpipe/internal/port"
	"docpipe/internal/schema"
	"docpipe/mocks"
)

const validInvoiceResponse = `{
	"fields": {
		"vendor_name": "Acme Corp",
		"invoice_number": "INV-001",
		"invoice_date": "2026-01-15",
		"line_items": [
			{"description": "Widget", "quantity": 2, "unit_price": 10, "total": 20}
		],
		"subtotal": 20,
		"tax": 2,
		"total": 22
	},
	"justifications": {
		"vendor_name": "letterhead",
		"invoice_number": "top right",
		"invoice_date": "top right",
		"line_items": "table body",
		"subtotal": "below table",
		"tax": "below subtotal",
		"total": "bottom line"
	}
}`

const brokenInvoiceResponse = `{
	"fields": {
		"vendor_name": "Acme Corp",
		"line_items": [
			{"description": "Widget", "quantity": 2, "unit_price": 10, "total": 20}
		],
		"subtotal": 99,
		"tax": 2,
		"total": 22
	},
	"justifications": {}
}`

func newOrchestrator(t *testing.T, client port.InferenceClient) (*pipeline.Orchestrator, *sqlitestore.Store) {
	t.Helper()
	store, err := sqlitestore.New(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return orchestratorWithStore(t, client, store), store
}

func orchestratorWithStore(t *testing.T, client port.InferenceClient, store *sqlitestore.Store) *pipeline.Orchestrator {
	t.Helper()
	classifier, err := classify.New(client, &config.ClassifierConfig{SampleRunes: 2000, CacheSize: 16})
	require.NoError(t, err)
	scorer := extract.NewScorer(&config.ScoringConfig{RoundPenalty: 0.15, PenaltyFloor: 0.1})
	extractor := extract.New(client, store, scorer, &config.ExtractorConfig{MaxAttempts: 3, MaxTokens: 1024}, "test-model")
	gate := dedup.NewGate(dedup.NewMemoryIndex(), nil, &config.DedupConfig{Enabled: true, Threshold: 0.95, CacheTTLSecs: 60})
	return pipeline.New(config.PipelineConfig{Workers: 2}, classifier, extractor, gate, schema.NewRegistry(), store)
}

func invoiceDoc(path, text string) domain.Document {
	doc := ingest.NewDocument(path, &port.PageContent{Text: text})
	doc.DeclaredType = "invoice"
	return doc
}

func isClassifyPrompt(req port.GenerateRequest) bool {
	return strings.Contains(req.Prompt, "Classify the following document")
}

func TestOrchestrator_BatchMixedOutcomes(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerateRequest) bool {
		return !isClassifyPrompt(req) && strings.Contains(req.Prompt, "GOOD DOC")
	})).Return(validInvoiceResponse, nil).Once()
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerateRequest) bool {
		return !isClassifyPrompt(req) && strings.Contains(req.Prompt, "BAD DOC")
	})).Return(brokenInvoiceResponse, nil).Times(3)

	orch, _ := newOrchestrator(t, client)
	docs := []domain.Document{
		invoiceDoc("a.txt", "GOOD DOC invoice"),
		invoiceDoc("b.txt", "BAD DOC invoice"),
	}

	report, err := orch.Run(context.Background(), docs, false)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Deduplicated)
	require.Len(t, report.Outcomes, 2)
	client.AssertExpectations(t)

	for _, outcome := range report.Outcomes {
		if outcome.Status == domain.SessionStatusFailed {
			assert.NotEmpty(t, outcome.Violations, "failed outcome must surface its violations")
			assert.Equal(t, 3, outcome.AttemptCount)
		} else {
			require.NotNil(t, outcome.Result)
			assert.Equal(t, domain.ProvenanceExtracted, outcome.Result.Provenance)
		}
	}
}

func TestOrchestrator_ClassifierRoutesSchema(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(isClassifyPrompt)).Return("invoice", nil).Once()
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerateRequest) bool {
		// The extraction prompt must carry the invoice schema skeleton.
		return !isClassifyPrompt(req) && strings.Contains(req.Prompt, `"vendor_name"`)
	})).Return(validInvoiceResponse, nil).Once()

	orch, store := newOrchestrator(t, client)
	doc := ingest.NewDocument("a.txt", &port.PageContent{Text: "INVOICE #1"})

	report, err := orch.Run(context.Background(), []domain.Document{doc}, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	client.AssertExpectations(t)

	sess, err := store.Load(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryInvoice, sess.Category)
	assert.Equal(t, "invoice", sess.SchemaName)
}

func TestOrchestrator_DuplicateContentSingleInference(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(validInvoiceResponse, nil).Once()

	orch, _ := newOrchestrator(t, client)
	docs := []domain.Document{
		invoiceDoc("a.txt", "INVOICE #1 same content"),
		invoiceDoc("copy-of-a.txt", "INVOICE #1 same content"),
	}

	report, err := orch.Run(context.Background(), docs, false)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Deduplicated)
	// One inference call for two identical documents.
	client.AssertNumberOfCalls(t, "Generate", 1)

	var extracted, deduplicated *pipeline.Outcome
	for i := range report.Outcomes {
		if report.Outcomes[i].Deduplicated {
			deduplicated = &report.Outcomes[i]
		} else {
			extracted = &report.Outcomes[i]
		}
	}
	require.NotNil(t, extracted)
	require.NotNil(t, deduplicated)
	assert.Equal(t, domain.ProvenanceDeduplicated, deduplicated.Result.Provenance)
	require.NotNil(t, deduplicated.Result.SourceDocumentID)
	assert.Equal(t, extracted.DocumentID, *deduplicated.Result.SourceDocumentID)
	assert.Equal(t, extracted.Result.Fields["total"], deduplicated.Result.Fields["total"])
}

func TestOrchestrator_ForceBypassDisablesGate(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(validInvoiceResponse, nil).Twice()

	orch, _ := newOrchestrator(t, client)
	docs := []domain.Document{
		invoiceDoc("a.txt", "INVOICE #1 same content"),
		invoiceDoc("copy-of-a.txt", "INVOICE #1 same content"),
	}

	report, err := orch.Run(context.Background(), docs, true)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.Deduplicated)
	client.AssertNumberOfCalls(t, "Generate", 2)
}

func TestOrchestrator_ResumeReturnsTerminalRecordWithoutInference(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(validInvoiceResponse, nil).Once()

	store, err := sqlitestore.New(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	defer store.Close()

	doc := invoiceDoc("a.txt", "INVOICE #1")
	first, err := orchestratorWithStore(t, client, store).Run(context.Background(), []domain.Document{doc}, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.Succeeded)

	// Second run over the same store: no inference expectations at all.
	silent := new(mocks.MockInferenceClient)
	second, err := orchestratorWithStore(t, silent, store).Run(context.Background(), []domain.Document{doc}, false)

	require.NoError(t, err)
	require.Equal(t, 1, second.Succeeded)
	silent.AssertNumberOfCalls(t, "Generate", 0)

	require.NotNil(t, second.Outcomes[0].Result)
	assert.InDelta(t, first.Outcomes[0].Result.Confidence, second.Outcomes[0].Result.Confidence, 1e-9)
	assert.Equal(t, first.Outcomes[0].Result.Fields, second.Outcomes[0].Result.Fields)
	assert.Equal(t, first.Outcomes[0].AttemptCount, second.Outcomes[0].AttemptCount)
}

func TestOrchestrator_ChangedContentSupersedesTerminalSession(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(validInvoiceResponse, nil).Twice()

	store, err := sqlitestore.New(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	defer store.Close()

	original := invoiceDoc("a.txt", "INVOICE #1")
	_, err = orchestratorWithStore(t, client, store).Run(context.Background(), []domain.Document{original}, false)
	require.NoError(t, err)

	// Same path, new content: same document ID, fresh processing.
	edited := invoiceDoc("a.txt", "INVOICE #1 amended")
	report, err := orchestratorWithStore(t, client, store).Run(context.Background(), []domain.Document{edited}, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	client.AssertNumberOfCalls(t, "Generate", 2)
}

func TestOrchestrator_ChangedContentSupersedesInterruptedSession(t *testing.T) {
	store, err := sqlitestore.New(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	defer store.Close()

	// An interrupted session checkpointed mid-repair against the old content.
	original := invoiceDoc("a.txt", "INVOICE #1")
	sess := domain.NewSession(&original)
	sess.Status = domain.SessionStatusRepairing
	sess.AppendAttempt(domain.ExtractionAttempt{
		Violations: []domain.Violation{{
			FieldName: "subtotal",
			RuleID:    "invoice.items_subtotal",
			Message:   "subtotal 90.00 does not equal sum of line_items.total 100.00",
			Severity:  domain.SeverityError,
		}},
	})
	require.NoError(t, store.Save(context.Background(), sess))

	// The re-run sees new content under the same path: a fresh first
	// attempt, never a repair of violations from content that is gone.
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerateRequest) bool {
		return strings.Contains(req.Prompt, "INVOICE #1 amended") &&
			!strings.Contains(req.Prompt, "previous attempt")
	})).Return(validInvoiceResponse, nil).Once()

	edited := invoiceDoc("a.txt", "INVOICE #1 amended")
	report, err := orchestratorWithStore(t, client, store).Run(context.Background(), []domain.Document{edited}, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Outcomes[0].AttemptCount)
	client.AssertExpectations(t)

	loaded, err := store.Load(context.Background(), edited.ID)
	require.NoError(t, err)
	assert.Equal(t, edited.ContentHash, loaded.ContentHash)
	assert.Len(t, loaded.Attempts, 1)
}

func TestOrchestrator_InfrastructureFailureIsolated(t *testing.T) {
	client := new(mocks.MockInferenceClient)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerateRequest) bool {
		return strings.Contains(req.Prompt, "DOWN DOC")
	})).Return("", errors.New("connection refused")).Once()
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerateRequest) bool {
		return strings.Contains(req.Prompt, "GOOD DOC")
	})).Return(validInvoiceResponse, nil).Once()

	orch, _ := newOrchestrator(t, client)
	docs := []domain.Document{
		invoiceDoc("down.txt", "DOWN DOC"),
		invoiceDoc("good.txt", "GOOD DOC"),
	}

	report, err := orch.Run(context.Background(), docs, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	for _, outcome := range report.Outcomes {
		if outcome.Status == domain.SessionStatusFailed {
			require.NotEmpty(t, outcome.Violations)
			assert.Equal(t, domain.RuleInfrastructureError, outcome.Violations[0].RuleID)
		}
	}
}

func TestOrchestrator_EmptyBatch(t *testing.T) {
	orch, _ := newOrchestrator(t, new(mocks.MockInferenceClient))

	report, err := orch.Run(context.Background(), nil, false)

	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 0, report.Processed)
}
