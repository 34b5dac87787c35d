// Package rag composes retrieval and generation into question answering:
// fetch the top-k chunks for a question, assemble them into a grounded
// prompt, and shape the model's reply with its source attributions.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/medyouin/docai/llm"
	"github.com/medyouin/docai/store"
)

// ErrQueryFailed wraps any failure during the retrieve-then-generate
// sequence of a single question.
var ErrQueryFailed = errors.New("query failed")

// FallbackAnswer is the exact sentence the prompt instructs the model to use
// when the context cannot support an answer.
const FallbackAnswer = "I don't know based on the provided documents."

// DefaultTopK is the number of chunks retrieved when the caller does not ask
// for a specific amount.
const DefaultTopK = 3

type Service struct {
	store  store.VectorStore
	llm    llm.Client
	logger *log.Logger
}

// Result is the shaped outcome of one query. Sources follow retrieval rank
// and may contain duplicates.
type Result struct {
	Answer      string
	Sources     []string
	ContextUsed bool
}

type Health struct {
	VectorStoreReady bool
	GenerationReady  bool
}

// Verification is the normalized diagnostic probe result: either no
// documents, or one arbitrary stored record's source and truncated excerpt.
type Verification struct {
	HasDocuments  bool
	SampleSource  string
	SampleExcerpt string
}

func NewService(vectors store.VectorStore, llmClient llm.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		store:  vectors,
		llm:    llmClient,
		logger: logger,
	}
}

// Query answers a question from up to k retrieved chunks. An empty index
// still invokes generation; the prompt's fallback instruction covers the
// no-context case.
func (s *Service) Query(ctx context.Context, question string, k int) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("%w: question cannot be empty", ErrQueryFailed)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	docs, err := s.store.SimilaritySearch(ctx, question, k)
	if err != nil {
		return Result{}, fmt.Errorf("%w: retrieve context: %w", ErrQueryFailed, err)
	}

	answer, err := s.llm.Generate(ctx, buildPrompt(question, formatContext(docs)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: generate answer: %w", ErrQueryFailed, err)
	}

	sources := make([]string, len(docs))
	for i, doc := range docs {
		sources[i] = doc.Source()
	}

	return Result{
		Answer:      strings.TrimSpace(answer),
		Sources:     sources,
		ContextUsed: len(docs) > 0,
	}, nil
}

// QueryAsync runs Query on its own goroutine for non-blocking callers. The
// returned channel is buffered and receives exactly one outcome.
func (s *Service) QueryAsync(ctx context.Context, question string, k int) <-chan QueryOutcome {
	out := make(chan QueryOutcome, 1)
	go func() {
		result, err := s.Query(ctx, question, k)
		out <- QueryOutcome{Result: result, Err: err}
		close(out)
	}()
	return out
}

type QueryOutcome struct {
	Result Result
	Err    error
}

// singleAttemptGenerator is satisfied by clients that can probe the provider
// with one attempt, bypassing retry backoff.
type singleAttemptGenerator interface {
	GenerateOnce(ctx context.Context, prompt string) (string, error)
}

// HealthCheck probes both adapters with trivial calls. It never returns an
// error; a failing adapter downgrades its flag. The generation probe uses a
// single attempt when the client supports it, so a down provider does not
// stall the health endpoint through the retry schedule.
func (s *Service) HealthCheck(ctx context.Context) Health {
	health := Health{VectorStoreReady: true, GenerationReady: true}

	if _, err := s.store.SimilaritySearch(ctx, "test", 1); err != nil {
		s.logger.Printf("vector store check failed: %v", err)
		health.VectorStoreReady = false
	}

	generate := s.llm.Generate
	if probe, ok := s.llm.(singleAttemptGenerator); ok {
		generate = probe.GenerateOnce
	}
	if _, err := generate(ctx, "test"); err != nil {
		s.logger.Printf("llm check failed: %v", err)
		health.GenerationReady = false
	}

	return health
}

// VerifyIndex returns one arbitrary stored record for operator
// sanity-checking.
func (s *Service) VerifyIndex(ctx context.Context) (Verification, error) {
	docs, err := s.store.SimilaritySearch(ctx, "test", 1)
	if err != nil {
		return Verification{}, fmt.Errorf("verify index: %w", err)
	}
	if len(docs) == 0 {
		return Verification{}, nil
	}

	return Verification{
		HasDocuments:  true,
		SampleSource:  docs[0].Source(),
		SampleExcerpt: excerpt(docs[0].Content, 100),
	}, nil
}

func formatContext(docs []store.Document) string {
	pairs := make([]string, len(docs))
	for i, doc := range docs {
		pairs[i] = fmt.Sprintf("Source: %s\nContent: %s", doc.Source(), doc.Content)
	}
	return strings.Join(pairs, "\n\n")
}

func buildPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("You are DocAI, an AI assistant for MedYouIN.\n\n")
	sb.WriteString("You must follow these rules:\n")
	sb.WriteString("- Do NOT include thoughts, reflections, or reasoning (no \"<think>\" or explanations).\n")
	sb.WriteString("- Only answer based on the context below.\n")
	sb.WriteString("- If the answer is not in the context, say: \"" + FallbackAnswer + "\"\n\n")
	sb.WriteString("Format your response exactly as follows:\n")
	sb.WriteString("1. A concise answer based strictly on the context\n")
	sb.WriteString("2. The exact source document reference (filename)\n")
	sb.WriteString("3. The relevant excerpt that supports your answer\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(question)
	return sb.String()
}

func excerpt(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
