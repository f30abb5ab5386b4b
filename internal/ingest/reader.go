package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"docpipe/internal/domain"
	"docpipe/internal/port"
)

// FileReader is a minimal DocumentReader for already-textual files and raw
// page images. Real PDF/DOCX parsing and OCR live behind the same boundary
// in an external collaborator; this reader exists so the pipeline can run
// end to end on plain-text corpora and pre-rendered page images.
type FileReader struct{}

// NewFileReader creates a FileReader.
func NewFileReader() *FileReader {
	return &FileReader{}
}

func (r *FileReader) Read(_ context.Context, path string) (*port.PageContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".csv", ".json":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrUnsupportedDocument)
		}
		return &port.PageContent{Text: string(data)}, nil
	case ".png", ".jpg", ".jpeg":
		return &port.PageContent{Images: [][]byte{data}}, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, domain.ErrUnsupportedDocument)
	}
}
