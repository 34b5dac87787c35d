package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medyouin/docai/config"
	"github.com/medyouin/docai/ingestion"
	"github.com/medyouin/docai/rag"
	"github.com/medyouin/docai/store"
)

type stubStore struct {
	docs []store.Document
	err  error
}

func (s *stubStore) AddDocuments(ctx context.Context, docs []store.Document) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	return ids, nil
}

func (s *stubStore) SimilaritySearch(ctx context.Context, query string, k int) ([]store.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.docs) > k {
		return s.docs[:k], nil
	}
	return s.docs, nil
}

var _ store.VectorStore = (*stubStore)(nil)

type stubLLM struct {
	answer string
	err    error
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type stubLoader struct {
	text string
	err  error
}

func (l *stubLoader) Load(ctx context.Context, path string) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return l.text, nil
}

func newTestServer(t *testing.T, vectors store.VectorStore, model *stubLLM, loader ingestion.Loader) *Server {
	t.Helper()

	cfg := config.Settings{
		DataDir:      t.TempDir(),
		ChunkSize:    600,
		ChunkOverlap: 150,
	}
	logger := log.New(io.Discard, "", 0)
	ragSvc := rag.NewService(vectors, model, logger)
	ingestSvc := ingestion.NewService(vectors, loader, cfg, logger)

	srv := New(cfg, ragSvc, ingestSvc, logger)
	srv.streamDelay = 0
	return srv
}

func TestHealthDegradedWhenGenerationDown(t *testing.T) {
	srv := newTestServer(t, &stubStore{}, &stubLLM{err: errors.New("unreachable")}, &stubLoader{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Status)
	}
	if body.LLMReady {
		t.Fatal("expected llm_ready=false")
	}
	if !body.VectorStoreReady {
		t.Fatal("expected vector_store_ready=true")
	}
}

func TestQueryEndpoint(t *testing.T) {
	vectors := &stubStore{docs: []store.Document{
		{Content: "Paris is the capital.", Metadata: map[string]string{"source": "geo.pdf"}},
	}}
	srv := newTestServer(t, vectors, &stubLLM{answer: "Paris."}, &stubLoader{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"question":"capital of France?","max_sources":2}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Answer != "Paris." {
		t.Fatalf("unexpected answer: %q", body.Answer)
	}
	if !body.ContextUsed {
		t.Fatal("expected context_used=true")
	}
	if len(body.Sources) != 1 || body.Sources[0] != "geo.pdf" {
		t.Fatalf("unexpected sources: %v", body.Sources)
	}
}

func TestQueryEndpointRequiresQuestion(t *testing.T) {
	srv := newTestServer(t, &stubStore{}, &stubLLM{answer: "x"}, &stubLoader{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"question":"  "}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueryStreamEmitsSentencesAndEndMarker(t *testing.T) {
	srv := newTestServer(t, &stubStore{}, &stubLLM{answer: "First sentence. Second sentence."}, &stubLoader{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/stream?question=hello", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", got)
	}

	body := rec.Body.String()
	for _, fragment := range []string{"data: First sentence.\n\n", "data: Second sentence.\n\n", "data: [END]\n\n"} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("stream missing %q:\n%s", fragment, body)
		}
	}
}

func TestQueryStreamReportsErrorsInBand(t *testing.T) {
	srv := newTestServer(t, &stubStore{}, &stubLLM{err: errors.New("provider down")}, &stubLoader{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/stream?question=hello", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 (headers already sent), got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "data: Error:") {
		t.Fatalf("expected in-band error marker, got:\n%s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "data: [END]") {
		t.Fatal("did not expect end marker after error")
	}
}

func TestVerifyEndpointShapes(t *testing.T) {
	srv := newTestServer(t, &stubStore{}, &stubLLM{answer: "x"}, &stubLoader{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/verify", nil))

	var body verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "no_documents" {
		t.Fatalf("expected no_documents, got %q", body.Status)
	}

	vectors := &stubStore{docs: []store.Document{
		{Content: "Sample content here.", Metadata: map[string]string{"source": "sample.pdf"}},
	}}
	srv = newTestServer(t, vectors, &stubLLM{answer: "x"}, &stubLoader{})

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/verify", nil))

	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "sample_found" {
		t.Fatalf("expected sample_found, got %q", body.Status)
	}
	if body.Source != "sample.pdf" {
		t.Fatalf("unexpected source: %q", body.Source)
	}
	if body.Excerpt == "" {
		t.Fatal("expected a sample excerpt")
	}
}

func TestIngestDirectoryWithoutFiles(t *testing.T) {
	srv := newTestServer(t, &stubStore{}, &stubLLM{answer: "x"}, &stubLoader{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest/directory", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty data directory, got %d", rec.Code)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestSaveUploadRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.pdf")

	if err := saveUpload(path, failingReader{}); err == nil {
		t.Fatal("expected error from interrupted upload")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected partial file to be removed, stat returned %v", err)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &stubStore{}, &stubLLM{answer: "x"}, &stubLoader{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/query", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header, got %q", rec.Header().Get("Allow"))
	}
}
