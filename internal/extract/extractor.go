package extract

import (
	"context"
	"fmt"
	"log"
	"time"

	"docpipe/internal/config"
	"docpipe/internal/domain"
	"docpipe/internal/port"
	"docpipe/internal/schema"
	"docpipe/internal/validator"
)

// Extractor drives one document's extract→validate→repair cycle as an
// explicit bounded state machine: extracting → validating → accepted,
// repairing, or exhausted. Worst-case cost is maxAttempts inference calls
// per document; the repair prompt carries the full prior violation set so
// the backend gets specific, incremental feedback rather than "try again".
//
// Identical violation sets across attempts do not exit early; the loop runs
// to its bound. A no-progress early exit would be a valid optimization but
// is deliberately left out for simplicity.
type Extractor struct {
	client      port.InferenceClient
	store       port.CheckpointStore
	scorer      *Scorer
	model       string
	maxAttempts int
	maxTokens   int
}

// New creates an Extractor.
func New(client port.InferenceClient, store port.CheckpointStore, scorer *Scorer, cfg *config.ExtractorConfig, model string) *Extractor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Extractor{
		client:      client,
		store:       store,
		scorer:      scorer,
		model:       model,
		maxAttempts: maxAttempts,
		maxTokens:   cfg.MaxTokens,
	}
}

// Run drives the session to a terminal state, checkpointing after every
// transition. A session that already carries attempts resumes from its last
// completed attempt: the prior violations seed the next repair prompt and
// completed rounds are never repeated.
//
// A cancelled ctx between attempts leaves the session checkpointed and
// resumable; it never interrupts an attempt that has started. A terminal
// validation failure (exhaustion) is a normal outcome and returns nil; only
// infrastructure failures return an error.
func (e *Extractor) Run(ctx context.Context, doc *domain.Document, sch *schema.ExtractionSchema, sess *domain.ExtractionSession) error {
	if sess.Status.Terminal() {
		return nil
	}
	sess.SchemaName = sch.Name
	sess.SchemaVersion = sch.Version

	for len(sess.Attempts) < e.maxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.transition(ctx, sess, domain.SessionStatusExtracting); err != nil {
			return err
		}

		prompt := BuildExtractionPrompt(doc, sch, sess.LastViolations())
		raw, err := e.client.Generate(ctx, port.GenerateRequest{
			Prompt:    prompt,
			Image:     doc.RawImage,
			Model:     e.model,
			MaxTokens: e.maxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-call: leave the session checkpointed at
				// extracting so a later run resumes it.
				return ctx.Err()
			}
			// Transport retries are already exhausted inside the client.
			return e.failInfrastructure(ctx, sess, prompt, err)
		}

		attempt := domain.ExtractionAttempt{
			PromptSent:  prompt,
			RawResponse: raw,
			CompletedAt: time.Now().UTC(),
		}

		if err := e.transition(ctx, sess, domain.SessionStatusValidating); err != nil {
			return err
		}

		env, parsed := decodeResponse(raw)
		if !parsed {
			attempt.Violations = []domain.Violation{{
				FieldName: domain.GlobalField,
				RuleID:    domain.RuleUnparseableResponse,
				Message:   "response was not a parseable JSON object",
				Severity:  domain.SeverityError,
			}}
		} else {
			attempt.Candidate = env.Fields
			attempt.Violations = validator.Validate(env.Fields, sch)
		}
		sess.AppendAttempt(attempt)

		if len(attempt.Violations) == 0 {
			rounds := len(sess.Attempts) - 1
			confidence, justifications := e.scorer.Score(env.Justifications, rounds, sch.FieldNames())
			sess.Result = &domain.ValidatedResult{
				Fields:           env.Fields,
				Confidence:       confidence,
				Justifications:   justifications,
				CorrectionRounds: rounds,
				Provenance:       domain.ProvenanceExtracted,
				Model:            e.model,
			}
			log.Printf("extract.Extractor: document %s accepted after %d attempt(s), confidence %.2f",
				sess.DocumentID, len(sess.Attempts), confidence)
			return e.transition(ctx, sess, domain.SessionStatusSucceeded)
		}

		if len(sess.Attempts) < e.maxAttempts {
			log.Printf("extract.Extractor: document %s attempt %d failed validation with %d violation(s), repairing",
				sess.DocumentID, len(sess.Attempts), len(attempt.Violations))
			if err := e.transition(ctx, sess, domain.SessionStatusRepairing); err != nil {
				return err
			}
			continue
		}

		// Exhausted: surface the last candidate and its unresolved
		// violations for manual review. Never silently dropped.
		sess.FailureReason = fmt.Sprintf("correction loop exhausted after %d attempts with %d unresolved violation(s)",
			len(sess.Attempts), len(attempt.Violations))
		log.Printf("extract.Extractor: document %s %s", sess.DocumentID, sess.FailureReason)
		return e.transition(ctx, sess, domain.SessionStatusFailed)
	}

	// Resumed session whose attempts were already spent.
	if !sess.Status.Terminal() {
		sess.FailureReason = fmt.Sprintf("correction loop exhausted after %d attempts", len(sess.Attempts))
		return e.transition(ctx, sess, domain.SessionStatusFailed)
	}
	return nil
}

// transition moves the session to the next state and checkpoints it. The
// save is detached from ctx cancellation: a completed attempt must reach the
// store even while the batch is shutting down.
func (e *Extractor) transition(ctx context.Context, sess *domain.ExtractionSession, status domain.SessionStatus) error {
	sess.Status = status
	sess.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		return fmt.Errorf("checkpointing session %s at %s: %w", sess.DocumentID, status, err)
	}
	return nil
}

// failInfrastructure marks the session failed with an infrastructure-error
// violation. The backend never answered, so this is not a correction-loop
// outcome; the error also propagates so the orchestrator counts it.
func (e *Extractor) failInfrastructure(ctx context.Context, sess *domain.ExtractionSession, prompt string, cause error) error {
	sess.AppendAttempt(domain.ExtractionAttempt{
		PromptSent: prompt,
		Violations: []domain.Violation{{
			FieldName: domain.GlobalField,
			RuleID:    domain.RuleInfrastructureError,
			Message:   cause.Error(),
			Severity:  domain.SeverityError,
		}},
		CompletedAt: time.Now().UTC(),
	})
	sess.FailureReason = fmt.Sprintf("inference backend unavailable: %v", cause)
	if err := e.transition(ctx, sess, domain.SessionStatusFailed); err != nil {
		log.Printf("extract.Extractor: failed to checkpoint infrastructure failure for %s: %v", sess.DocumentID, err)
	}
	return fmt.Errorf("generating extraction for %s: %w", sess.DocumentID, cause)
}
