package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/medyouin/docai/database"
	"github.com/medyouin/docai/embeddings"
)

// PostgresStore keeps chunks in a pgvector-backed table. All chunks of one
// AddDocuments call are inserted inside a single transaction so a concurrent
// query never observes a half-ingested document.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
}

func NewPostgresStore(ctx context.Context, dsn string, embedder embeddings.Embedder, dimension int) (*PostgresStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	pool, err := database.NewPostgresPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := database.EnsureSchema(ctx, pool, dimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ensure schema: %w", ErrUnavailable, err)
	}

	return &PostgresStore{pool: pool, embedder: embedder}, nil
}

func (s *PostgresStore) AddDocuments(ctx context.Context, docs []Document) (ids []string, err error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed documents: %w", ErrUnavailable, err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: embedding count mismatch: have %d documents, %d vectors", ErrUnavailable, len(docs), len(vectors))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ids = make([]string, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id

		if _, err = tx.Exec(ctx, `
			INSERT INTO docai_chunks (id, source, content, embedding)
			VALUES ($1, $2, $3, $4)
		`, id, doc.Metadata[MetadataSource], doc.Content, pgvector.NewVector(vectors[i])); err != nil {
			return nil, fmt.Errorf("%w: insert chunk %d: %w", ErrUnavailable, i, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrUnavailable, err)
	}

	return ids, nil
}

func (s *PostgresStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrUnavailable, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vectors", ErrUnavailable)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source, content
		FROM docai_chunks
		ORDER BY embedding <-> $1::vector
		LIMIT $2
	`, pgvector.NewVector(vectors[0]), k)
	if err != nil {
		return nil, fmt.Errorf("%w: query similar chunks: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	docs := make([]Document, 0, k)
	for rows.Next() {
		var id, source, content string
		if err := rows.Scan(&id, &source, &content); err != nil {
			return nil, fmt.Errorf("%w: scan similar chunk: %w", ErrUnavailable, err)
		}
		docs = append(docs, Document{
			ID:       id,
			Content:  content,
			Metadata: map[string]string{MetadataSource: source},
		})
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, rows.Err())
	}

	return docs, nil
}

// Close releases the connection pool. Only the process owner calls this at
// shutdown.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

var _ VectorStore = (*PostgresStore)(nil)
