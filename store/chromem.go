package store

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/medyouin/docai/embeddings"
)

const chromemCollection = "documents"

// ChromemStore keeps the vector index in an embedded chromem database
// persisted under a filesystem path, so the index survives process
// restarts without an external service.
type ChromemStore struct {
	collection *chromem.Collection
}

func NewChromemStore(path string, embedder embeddings.Embedder) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: open persistent index at %s: %w", ErrUnavailable, path, err)
	}

	collection, err := db.GetOrCreateCollection(chromemCollection, nil, embeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("%w: open collection: %w", ErrUnavailable, err)
	}

	return &ChromemStore{collection: collection}, nil
}

// embeddingFunc adapts the shared Embedder to chromem's per-text callback.
func embeddingFunc(embedder embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) == 0 {
			return nil, fmt.Errorf("embedder returned no vectors")
		}
		return vectors[0], nil
	}
}

func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(docs))
	converted := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id
		converted[i] = chromem.Document{
			ID:       id,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		}
	}

	if err := s.collection.AddDocuments(ctx, converted, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("%w: add documents: %w", ErrUnavailable, err)
	}

	return ids, nil
}

func (s *ChromemStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem rejects nResults above the collection size, so clamp; an
	// empty index is a valid no-results case, not an error.
	if count := s.collection.Count(); count == 0 {
		return []Document{}, nil
	} else if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity query: %w", ErrUnavailable, err)
	}

	docs := make([]Document, len(results))
	for i, res := range results {
		docs[i] = Document{
			ID:       res.ID,
			Content:  res.Content,
			Metadata: res.Metadata,
		}
	}
	return docs, nil
}

var _ VectorStore = (*ChromemStore)(nil)
