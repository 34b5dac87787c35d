// Package store persists embedded document chunks and serves similarity
// queries over them. Two backends are available: an embedded chromem index
// persisted under a filesystem path, and Postgres with the pgvector
// extension.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/medyouin/docai/config"
	"github.com/medyouin/docai/embeddings"
)

// ErrUnavailable marks a failed call against the embedding provider or the
// index backend.
var ErrUnavailable = errors.New("vector store unavailable")

// MetadataSource is the metadata key carrying the originating file path of a
// chunk. Every persisted chunk must have a non-empty value for it.
const MetadataSource = "source"

// Document is one retrievable unit of text. ID is assigned by the store on
// insertion when empty.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Source returns the document's source metadata, or "Unknown" when absent.
func (d Document) Source() string {
	if src := d.Metadata[MetadataSource]; src != "" {
		return src
	}
	return "Unknown"
}

// VectorStore is the process-wide adapter over the embedding provider and
// the persistent index. Implementations are safe for concurrent use; the
// underlying index owns consistency between concurrent inserts and queries.
type VectorStore interface {
	// AddDocuments embeds and durably persists docs as one batch, returning
	// one identifier per input document in input order.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)
	// SimilaritySearch returns at most k stored documents ranked
	// most-similar first. An empty index yields an empty slice, never an
	// error.
	SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error)
}

// New constructs the configured backend. The returned store is expensive to
// build and meant to be created once at startup and shared.
func New(ctx context.Context, cfg config.Settings, embedder embeddings.Embedder) (VectorStore, error) {
	switch cfg.StoreBackend {
	case config.BackendChromem:
		return NewChromemStore(cfg.StorePath, embedder)
	case config.BackendPgvector:
		return NewPostgresStore(ctx, cfg.PostgresDSN, embedder, cfg.EmbeddingDimension)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}
