package port

import "context"

// PageContent is what the external parser/OCR collaborator yields for one
// source document: extracted text plus optional page images for
// vision-capable backends.
type PageContent struct {
	Text   string
	Images [][]byte
}

// DocumentReader is the parser/OCR boundary. The pipeline never re-derives
// text from raw bytes itself.
type DocumentReader interface {
	Read(ctx context.Context, path string) (*PageContent, error)
}
