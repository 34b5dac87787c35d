// Package ingestion turns PDF files into stored, attributable chunks: load,
// split, stamp source metadata, persist as one batch.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/medyouin/docai/config"
	"github.com/medyouin/docai/store"
)

var (
	// ErrUnreadableDocument marks a file that is missing, corrupt, or not
	// parseable as its expected format.
	ErrUnreadableDocument = errors.New("unreadable document")
	// ErrUnsupportedFormat marks a file rejected before any processing
	// because of its extension.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

type Service struct {
	store        store.VectorStore
	loader       Loader
	chunkSize    int
	chunkOverlap int
	logger       *log.Logger
}

// NewService wires the processor. A nil loader selects the production PDF
// loader.
func NewService(vectors store.VectorStore, loader Loader, cfg config.Settings, logger *log.Logger) *Service {
	if loader == nil {
		loader = NewPDFLoader()
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		store:        vectors,
		loader:       loader,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		logger:       logger,
	}
}

// ProcessPDF loads and splits one PDF, stamps every chunk with
// source = path, and stores the chunks as a single batch. Returns the stored
// identifiers in chunk order.
func (s *Service) ProcessPDF(ctx context.Context, path string) ([]string, error) {
	if !IsPDF(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	text, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	chunks, err := Split(text, s.chunkSize, s.chunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}
	if len(chunks) == 0 {
		s.logger.Printf("skip empty document %s", path)
		return nil, nil
	}

	docs := make([]store.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = store.Document{
			Content:  chunk,
			Metadata: map[string]string{store.MetadataSource: path},
		}
	}

	ids, err := s.store.AddDocuments(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("store chunks for %s: %w", path, err)
	}

	s.logger.Printf("ingested %s (%d chunks)", path, len(ids))
	return ids, nil
}

// ProcessDirectory ingests every PDF directly inside dir. A single file's
// failure is logged and skipped; the returned identifiers are the
// concatenation of all successful files in directory order.
func (s *Service) ProcessDirectory(ctx context.Context, dir string) ([]string, error) {
	paths, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		s.logger.Printf("no pdf files found in %s", dir)
		return nil, nil
	}

	ids := make([]string, 0)
	for _, path := range paths {
		fileIDs, err := s.ProcessPDF(ctx, path)
		if err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
			continue
		}
		ids = append(ids, fileIDs...)
	}

	return ids, nil
}

// ListPDFs returns the PDF files directly inside dir (non-recursive), in
// directory order.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsPDF(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// IsPDF reports whether path has a PDF extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
