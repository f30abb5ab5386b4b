package classify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"docpipe/internal/config"
	"docpipe/internal/domain"
	"docpipe/internal/port"
)

const defaultSampleRunes = 2000

// Classifier assigns a document one of the closed set of categories via a
// single cheap model call. Classification failures are non-fatal: the caller
// receives CategoryOther and the session proceeds on the generic schema.
type Classifier struct {
	client      port.InferenceClient
	cache       *lru.Cache[uuid.UUID, domain.DocumentCategory]
	model       string
	sampleRunes int
}

// New creates a Classifier. The cache keeps resumed batches from paying for
// a second classification call per document.
func New(client port.InferenceClient, cfg *config.ClassifierConfig) (*Classifier, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[uuid.UUID, domain.DocumentCategory](size)
	if err != nil {
		return nil, fmt.Errorf("creating classifier cache: %w", err)
	}
	sample := cfg.SampleRunes
	if sample <= 0 {
		sample = defaultSampleRunes
	}
	return &Classifier{
		client:      client,
		cache:       cache,
		model:       cfg.Model,
		sampleRunes: sample,
	}, nil
}

// Classify returns the document's category. A declared type short-circuits
// the model call; so does a cache hit.
func (c *Classifier) Classify(ctx context.Context, doc *domain.Document) domain.DocumentCategory {
	if doc.DeclaredType != "" {
		if cat, ok := domain.KnownCategories[strings.ToLower(doc.DeclaredType)]; ok {
			return cat
		}
	}
	if cat, ok := c.cache.Get(doc.ID); ok {
		return cat
	}

	resp, err := c.client.Generate(ctx, port.GenerateRequest{
		Prompt: buildPrompt(sample(doc.RawText, c.sampleRunes)),
		Model:  c.model,
	})
	if err != nil {
		log.Printf("classify.Classifier: document %s classification failed, using generic schema: %v", doc.ID, err)
		return domain.CategoryOther
	}

	category := normalize(resp)
	c.cache.Add(doc.ID, category)
	return category
}

func buildPrompt(textSample string) string {
	return `Classify the following document into exactly one category: invoice, receipt, resume, or other.
Respond with ONLY the single category word, lowercase, no punctuation.

Document:
---
` + textSample + `
---
Category:`
}

// normalize maps model output to the closed category set; anything
// unrecognized becomes "other".
func normalize(resp string) domain.DocumentCategory {
	word := strings.ToLower(strings.TrimSpace(resp))
	if idx := strings.IndexAny(word, " \n\t."); idx > 0 {
		word = word[:idx]
	}
	if cat, ok := domain.KnownCategories[word]; ok {
		return cat
	}
	return domain.CategoryOther
}

func sample(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
