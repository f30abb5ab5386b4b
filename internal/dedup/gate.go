package dedup

import (
	"context"
	"fmt"
	"log"

	gocache "github.com/patrickmn/go-cache"

	"docpipe/internal/config"
	"docpipe/internal/domain"
	"docpipe/internal/port"
)

// Gate is the short-circuit similarity check that runs before
// classification. Two tiers: an in-process content-hash fast path, then the
// vector index. A hit means the caller copies the existing result with
// provenance marked deduplicated instead of running extraction.
//
// The gate is a cost control, not a correctness requirement: a miss only
// costs inference time, and callers may always force-bypass it.
type Gate struct {
	index     port.DuplicateIndex
	embedder  port.Embedder
	hashCache *gocache.Cache
	threshold float64
	enabled   bool
}

// NewGate creates a Gate. embedder may be nil, in which case only exact
// content-hash matches are found.
func NewGate(index port.DuplicateIndex, embedder port.Embedder, cfg *config.DedupConfig) *Gate {
	ttl := cfg.CacheTTL()
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Gate{
		index:     index,
		embedder:  embedder,
		hashCache: gocache.New(ttl, 2*ttl),
		threshold: cfg.Threshold,
		enabled:   cfg.Enabled,
	}
}

// Check returns a reference to a previously processed near-identical
// document, or nil on a miss. Index errors are returned, not swallowed; the
// caller decides whether to proceed without the gate.
func (g *Gate) Check(ctx context.Context, doc *domain.Document, bypass bool) (*port.ExistingResultRef, error) {
	if !g.enabled || bypass {
		return nil, nil
	}

	if cached, ok := g.hashCache.Get(doc.ContentHash); ok {
		return cached.(*port.ExistingResultRef), nil
	}

	embedding, err := g.embed(ctx, doc)
	if err != nil {
		// Embedding trouble degrades to hash-only lookup.
		log.Printf("dedup.Gate: embedding failed for %s, falling back to hash lookup: %v", doc.ID, err)
		embedding = nil
	}

	ref, err := g.index.LookupSimilar(ctx, doc.ContentHash, embedding, g.threshold)
	if err != nil {
		return nil, fmt.Errorf("looking up similar documents: %w", err)
	}
	if ref != nil {
		g.hashCache.Set(doc.ContentHash, ref, gocache.DefaultExpiration)
	}
	return ref, nil
}

// Register records a successful result so future submissions of the same or
// near-identical content short-circuit.
func (g *Gate) Register(ctx context.Context, doc *domain.Document, result *domain.ValidatedResult) error {
	if !g.enabled {
		return nil
	}
	embedding, err := g.embed(ctx, doc)
	if err != nil {
		log.Printf("dedup.Gate: embedding failed for %s, registering hash only: %v", doc.ID, err)
		embedding = nil
	}
	if err := g.index.Register(ctx, doc.ContentHash, embedding, doc.ID, result); err != nil {
		return fmt.Errorf("registering result: %w", err)
	}
	docID := doc.ID
	g.hashCache.Set(doc.ContentHash, &port.ExistingResultRef{
		DocumentID:  docID,
		ContentHash: doc.ContentHash,
		Score:       1.0,
		Result:      result,
	}, gocache.DefaultExpiration)
	return nil
}

func (g *Gate) embed(ctx context.Context, doc *domain.Document) ([]float32, error) {
	if g.embedder == nil || doc.RawText == "" {
		return nil, nil
	}
	return g.embedder.Embed(ctx, doc.RawText)
}
