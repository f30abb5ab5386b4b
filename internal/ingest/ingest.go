package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"docpipe/internal/domain"
	"docpipe/internal/port"
)

// Build constructs immutable Documents for a list of source paths through
// the parser/OCR boundary. A path the reader cannot handle is logged and
// skipped rather than failing the batch.
func Build(ctx context.Context, paths []string, reader port.DocumentReader) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		content, err := reader.Read(ctx, p)
		if err != nil {
			log.Printf("ingest.Build: skipping %s: %v", p, err)
			continue
		}
		if content == nil || (content.Text == "" && len(content.Images) == 0) {
			log.Printf("ingest.Build: skipping %s: no content", p)
			continue
		}
		docs = append(docs, NewDocument(p, content))
	}
	if len(docs) == 0 && len(paths) > 0 {
		return nil, fmt.Errorf("no readable documents among %d path(s)", len(paths))
	}
	return docs, nil
}

// NewDocument creates a Document with a deterministic identity: the ID is
// derived from the source path, the content hash from the extracted text.
// Re-reading an unchanged file therefore yields the same identity, which is
// what lets the dedup gate and checkpoint store short-circuit reprocessing.
func NewDocument(path string, content *port.PageContent) domain.Document {
	doc := domain.Document{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)),
		SourcePath:  path,
		RawText:     content.Text,
		ContentHash: HashContent(content.Text),
		CreatedAt:   time.Now().UTC(),
	}
	if len(content.Images) > 0 {
		doc.RawImage = content.Images[0]
		if content.Text == "" {
			doc.ContentHash = hashBytes(content.Images[0])
		}
	}
	return doc
}

// HashContent returns the sha256 hex digest of document text.
func HashContent(text string) string {
	return hashBytes([]byte(text))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
