package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"docpipe/internal/classify"
	"docpipe/internal/config"
	"docpipe/internal/dedup"
	"docpipe/internal/domain"
	"docpipe/internal/extract"
	"docpipe/internal/port"
	"docpipe/internal/schema"
)

// Outcome is the caller-facing terminal record for one submitted document:
// either a validated result or a failure with its unresolved violations.
// Interrupted marks a document whose session was checkpointed mid-flight by
// a batch cancellation; it resumes on the next run.
type Outcome struct {
	DocumentID   uuid.UUID               `json:"document_id"`
	SourcePath   string                  `json:"source_path,omitempty"`
	Status       domain.SessionStatus    `json:"status"`
	Result       *domain.ValidatedResult `json:"result,omitempty"`
	Violations   []domain.Violation      `json:"violations,omitempty"`
	AttemptCount int                     `json:"attempt_count"`
	Deduplicated bool                    `json:"deduplicated,omitempty"`
	Interrupted  bool                    `json:"interrupted,omitempty"`
	Skipped      bool                    `json:"skipped,omitempty"`
}

// BatchReport summarizes one orchestrator run.
type BatchReport struct {
	Processed    int       `json:"processed"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Deduplicated int       `json:"deduplicated"`
	Interrupted  int       `json:"interrupted"`
	Skipped      int       `json:"skipped"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Orchestrator drives a batch of documents through dedup, classification,
// and the correction-loop extractor under a bounded worker pool. Every
// state transition is checkpointed, so a crashed or cancelled run resumes
// from the last completed attempt instead of reprocessing.
type Orchestrator struct {
	cfg        config.PipelineConfig
	classifier *classify.Classifier
	extractor  *extract.Extractor
	gate       *dedup.Gate
	schemas    *schema.Registry
	store      port.CheckpointStore

	// hashLocks serializes documents with identical content within one
	// batch, so the second submission hits the gate instead of racing the
	// first through inference.
	hashLocks sync.Map
}

// New creates an Orchestrator.
func New(cfg config.PipelineConfig, classifier *classify.Classifier, extractor *extract.Extractor,
	gate *dedup.Gate, schemas *schema.Registry, store port.CheckpointStore) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		extractor:  extractor,
		gate:       gate,
		schemas:    schemas,
		store:      store,
	}
}

// Run processes docs and returns a report once every worker has drained.
// Cancelling ctx stops the claiming of new documents immediately; documents
// already in flight finish their current attempt, checkpoint, and exit.
// forceBypass disables the dedup gate for this batch.
func (o *Orchestrator) Run(ctx context.Context, docs []domain.Document, forceBypass bool) (*BatchReport, error) {
	if len(docs) == 0 {
		return &BatchReport{}, nil
	}

	jobs := make(chan domain.Document)
	outcomes := make(chan Outcome, len(docs))

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				outcomes <- o.processDocument(ctx, workerID, doc, forceBypass)
			}
		}()
	}

	log.Printf("pipeline.Orchestrator: starting batch of %d document(s) with %d worker(s)", len(docs), o.cfg.Workers)

feed:
	for i := range docs {
		select {
		case <-ctx.Done():
			log.Printf("pipeline.Orchestrator: cancellation requested, %d document(s) not claimed", len(docs)-i)
			break feed
		case jobs <- docs[i]:
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	report := &BatchReport{}
	for outcome := range outcomes {
		report.Outcomes = append(report.Outcomes, outcome)
		switch {
		case outcome.Skipped:
			report.Skipped++
		case outcome.Interrupted:
			report.Interrupted++
		case outcome.Status == domain.SessionStatusSucceeded:
			report.Processed++
			report.Succeeded++
			if outcome.Deduplicated {
				report.Deduplicated++
			}
		case outcome.Status == domain.SessionStatusFailed:
			report.Processed++
			report.Failed++
		default:
			report.Interrupted++
		}
	}

	log.Printf("pipeline.Orchestrator: batch done: processed=%d succeeded=%d failed=%d deduplicated=%d interrupted=%d skipped=%d",
		report.Processed, report.Succeeded, report.Failed, report.Deduplicated, report.Interrupted, report.Skipped)
	return report, nil
}

// processDocument takes one document to a terminal (or checkpointed) state.
// A panic or infrastructure error fails this document only; the batch
// continues.
func (o *Orchestrator) processDocument(ctx context.Context, workerID string, doc domain.Document, forceBypass bool) (outcome Outcome) {
	outcome = Outcome{DocumentID: doc.ID, SourcePath: doc.SourcePath}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("pipeline.Orchestrator: %s panicked on document %s: %v", workerID, doc.ID, r)
			outcome = o.failInfrastructure(ctx, &doc, fmt.Errorf("worker panic: %v", r))
		}
	}()

	unlock := o.lockHash(doc.ContentHash)
	defer unlock()

	claimed, err := o.store.Claim(ctx, doc.ID, workerID)
	if err != nil {
		return o.failInfrastructure(ctx, &doc, fmt.Errorf("claiming document: %w", err))
	}
	if !claimed {
		log.Printf("pipeline.Orchestrator: document %s already claimed, skipping", doc.ID)
		outcome.Skipped = true
		return outcome
	}
	defer func() {
		if err := o.store.Release(context.WithoutCancel(ctx), doc.ID, workerID); err != nil {
			log.Printf("pipeline.Orchestrator: releasing claim on %s: %v", doc.ID, err)
		}
	}()

	sess, err := o.store.Load(ctx, doc.ID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		sess = domain.NewSession(&doc)
	} else if err != nil {
		return o.failInfrastructure(ctx, &doc, fmt.Errorf("loading session: %w", err))
	}

	// A terminal session for the same content is final: it must never
	// re-enter the correction loop. Changed content supersedes the old
	// session with a fresh one whether or not it finished; resumed
	// attempts and their violations describe content that no longer
	// exists.
	if sess.Status.Terminal() && sess.ContentHash == doc.ContentHash {
		return outcomeFromSession(sess, doc.SourcePath)
	}
	if sess.ContentHash != "" && sess.ContentHash != doc.ContentHash {
		log.Printf("pipeline.Orchestrator: document %s content changed, superseding previous session", doc.ID)
		sess = domain.NewSession(&doc)
	}
	sess.ContentHash = doc.ContentHash

	// Dedup gate, before classification. Gate trouble is non-fatal: the
	// gate is a cost control, and a missed duplicate only costs inference.
	if ref, gateErr := o.gate.Check(ctx, &doc, forceBypass); gateErr != nil {
		log.Printf("pipeline.Orchestrator: dedup lookup failed for %s, proceeding without gate: %v", doc.ID, gateErr)
	} else if ref != nil && ref.DocumentID != doc.ID && ref.Result != nil {
		return o.copyExisting(ctx, &doc, sess, ref)
	}

	docCtx := ctx
	if timeout := o.cfg.DocumentTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if sess.Category == "" {
		sess.Status = domain.SessionStatusClassifying
		sess.UpdatedAt = time.Now().UTC()
		if err := o.store.Save(docCtx, sess); err != nil {
			return o.failInfrastructure(ctx, &doc, fmt.Errorf("checkpointing classification: %w", err))
		}
		sess.Category = o.classifier.Classify(docCtx, &doc)
	}

	sch := o.schemas.ForCategory(sess.Category)
	if err := o.extractor.Run(docCtx, &doc, sch, sess); err != nil {
		if ctx.Err() != nil && !sess.Status.Terminal() {
			outcome = outcomeFromSession(sess, doc.SourcePath)
			outcome.Interrupted = true
			return outcome
		}
		if errors.Is(err, context.DeadlineExceeded) && !sess.Status.Terminal() {
			return o.failInfrastructure(ctx, &doc, fmt.Errorf("document deadline exceeded after %d attempt(s)", len(sess.Attempts)))
		}
		log.Printf("pipeline.Orchestrator: document %s failed: %v", doc.ID, err)
		return outcomeFromSession(sess, doc.SourcePath)
	}

	if sess.Status == domain.SessionStatusSucceeded && sess.Result != nil &&
		sess.Result.Provenance == domain.ProvenanceExtracted {
		if err := o.gate.Register(context.WithoutCancel(ctx), &doc, sess.Result); err != nil {
			log.Printf("pipeline.Orchestrator: registering %s in dedup index: %v", doc.ID, err)
		}
	}

	return outcomeFromSession(sess, doc.SourcePath)
}

// copyExisting resolves a dedup hit: the prior result is copied with
// provenance marked deduplicated. Zero inference calls are made.
func (o *Orchestrator) copyExisting(ctx context.Context, doc *domain.Document, sess *domain.ExtractionSession, ref *port.ExistingResultRef) Outcome {
	source := ref.DocumentID
	copied := *ref.Result
	copied.Provenance = domain.ProvenanceDeduplicated
	copied.SourceDocumentID = &source

	sess.Result = &copied
	sess.Status = domain.SessionStatusSucceeded
	sess.UpdatedAt = time.Now().UTC()
	if err := o.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		log.Printf("pipeline.Orchestrator: checkpointing dedup result for %s: %v", doc.ID, err)
	}

	log.Printf("pipeline.Orchestrator: document %s deduplicated against %s (score %.3f)", doc.ID, source, ref.Score)
	outcome := outcomeFromSession(sess, doc.SourcePath)
	outcome.Deduplicated = true
	return outcome
}

// failInfrastructure records a per-document infrastructure failure without
// stopping the batch.
func (o *Orchestrator) failInfrastructure(ctx context.Context, doc *domain.Document, cause error) Outcome {
	sess := domain.NewSession(doc)
	if loaded, err := o.store.Load(context.WithoutCancel(ctx), doc.ID); err == nil {
		sess = loaded
	}
	sess.Status = domain.SessionStatusFailed
	sess.FailureReason = cause.Error()
	sess.AppendAttempt(domain.ExtractionAttempt{
		Violations: []domain.Violation{{
			FieldName: domain.GlobalField,
			RuleID:    domain.RuleInfrastructureError,
			Message:   cause.Error(),
			Severity:  domain.SeverityError,
		}},
		CompletedAt: time.Now().UTC(),
	})
	sess.UpdatedAt = time.Now().UTC()
	if err := o.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		log.Printf("pipeline.Orchestrator: checkpointing infrastructure failure for %s: %v", doc.ID, err)
	}
	return outcomeFromSession(sess, doc.SourcePath)
}

func (o *Orchestrator) lockHash(hash string) func() {
	muAny, _ := o.hashLocks.LoadOrStore(hash, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func outcomeFromSession(sess *domain.ExtractionSession, sourcePath string) Outcome {
	outcome := Outcome{
		DocumentID:   sess.DocumentID,
		SourcePath:   sourcePath,
		Status:       sess.Status,
		Result:       sess.Result,
		AttemptCount: len(sess.Attempts),
	}
	if sess.Status == domain.SessionStatusFailed {
		outcome.Violations = sess.LastViolations()
	}
	if sess.Result != nil && sess.Result.Provenance == domain.ProvenanceDeduplicated {
		outcome.Deduplicated = true
	}
	return outcome
}
