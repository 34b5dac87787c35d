package embeddings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medyouin/docai/config"
)

func TestNewEmbedderRejectsBadSettings(t *testing.T) {
	if _, err := NewEmbedder(config.Settings{EmbeddingProvider: "cohere"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := NewEmbedder(config.Settings{EmbeddingProvider: config.ProviderOpenAI}); err == nil {
		t.Fatal("expected error for openai provider without api key")
	}
}

func TestOllamaEmbedderHonorsConfiguredTimeout(t *testing.T) {
	embedder := NewOllamaEmbedder(Options{Timeout: 5 * time.Second}).(*ollamaEmbedder)
	if embedder.client.Timeout != 5*time.Second {
		t.Fatalf("expected configured timeout on the http client, got %s", embedder.client.Timeout)
	}

	embedder = NewOllamaEmbedder(Options{}).(*ollamaEmbedder)
	if embedder.client.Timeout != defaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultTimeout, embedder.client.Timeout)
	}
}

func TestOllamaEmbedderTimeoutBoundsSlowRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"embedding":[0.1]}`))
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL, Timeout: 20 * time.Millisecond})

	if _, err := embedder.Embed(context.Background(), []string{"slow"}); err == nil {
		t.Fatal("expected timeout error from a provider slower than the configured timeout")
	}
}

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"embedding":[0.25,0.5,0.75]}`))
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL, Dimension: 3})

	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected one vector per input, got %d", len(vectors))
	}
	if vectors[0][1] != 0.5 {
		t.Fatalf("unexpected vector value: %v", vectors[0])
	}
}

func TestOllamaEmbedReportsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL})

	_, err := embedder.Embed(context.Background(), []string{"text"})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected provider error to surface, got %v", err)
	}
}

func TestOllamaEmbedRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[0.1,0.2]}`))
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL, Dimension: 1024})

	if _, err := embedder.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(Options{
		Model:         "text-embedding-3-small",
		Dimension:     2,
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: server.URL + "/v1",
	})

	vectors, err := embedder.Embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestOpenAIEmbedderTimeoutBoundsSlowRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(Options{
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: server.URL + "/v1",
		Timeout:       20 * time.Millisecond,
	})

	if _, err := embedder.Embed(context.Background(), []string{"slow"}); err == nil {
		t.Fatal("expected timeout error from a provider slower than the configured timeout")
	}
}
