// Package api exposes the HTTP service boundary: ingestion uploads, query,
// streaming query, health, and index verification.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/medyouin/docai/config"
	"github.com/medyouin/docai/ingestion"
	"github.com/medyouin/docai/rag"
)

const defaultStreamDelay = 300 * time.Millisecond

// Server maps HTTP requests onto the shared rag and ingestion services. The
// services are constructed once at startup and injected.
type Server struct {
	cfg     config.Settings
	rag     *rag.Service
	ingest  *ingestion.Service
	logger  *log.Logger
	handler http.Handler

	// streamDelay paces sentence emission on the streaming endpoint.
	streamDelay time.Duration
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Question   string `json:"question"`
	MaxSources int    `json:"max_sources"`
}

type queryResponse struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	ContextUsed bool     `json:"context_used"`
}

type ingestResponse struct {
	Message     string `json:"message"`
	ChunksAdded int    `json:"chunks_added"`
	FileName    string `json:"file_name"`
}

type healthResponse struct {
	Status           string `json:"status"`
	VectorStoreReady bool   `json:"vector_store_ready"`
	LLMReady         bool   `json:"llm_ready"`
}

type verifyResponse struct {
	Status  string `json:"status"`
	Source  string `json:"source,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

func New(cfg config.Settings, ragSvc *rag.Service, ingestSvc *ingestion.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:         cfg,
		rag:         ragSvc,
		ingest:      ingestSvc,
		logger:      logger,
		streamDelay: defaultStreamDelay,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/", s.handleIndex)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/query/stream", s.handleQueryStream)
	mux.HandleFunc("/api/v1/ingest/pdf", s.handleIngestPDF)
	mux.HandleFunc("/api/v1/ingest/directory", s.handleIngestDirectory)
	mux.HandleFunc("/api/v1/ingest/verify", s.handleVerify)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/" {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "DocAI RAG API",
		"endpoints": map[string]string{
			"health":           "/api/v1/health",
			"query":            "/api/v1/query",
			"query_stream":     "/api/v1/query/stream",
			"ingest_pdf":       "/api/v1/ingest/pdf",
			"ingest_directory": "/api/v1/ingest/directory",
			"ingest_verify":    "/api/v1/ingest/verify",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	health := s.rag.HealthCheck(r.Context())
	status := "ok"
	if !health.VectorStoreReady || !health.GenerationReady {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:           status,
		VectorStoreReady: health.VectorStoreReady,
		LLMReady:         health.GenerationReady,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	result, err := s.rag.Query(r.Context(), req.Question, req.MaxSources)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, queryResponse{
		Answer:      result.Answer,
		Sources:     result.Sources,
		ContextUsed: result.ContextUsed,
	})
}

// handleQueryStream delivers an already-generated answer incrementally,
// sentence by sentence, with a pacing delay. Generation failures after the
// stream has started are reported in-band since headers are already out.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	question := strings.TrimSpace(r.URL.Query().Get("question"))
	if question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	result, err := s.rag.Query(ctx, question, k)
	if err != nil {
		s.logger.Printf("stream query failed: %v", err)
		fmt.Fprintf(w, "data: Error: %v\n\n", err)
		flusher.Flush()
		return
	}

	for _, sentence := range splitSentences(result.Answer) {
		if err := sleepStream(ctx, s.streamDelay); err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", sentence)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [END]\n\n")
	flusher.Flush()
}

func (s *Server) handleIngestPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read uploaded file: %w", err))
		return
	}
	defer file.Close()

	if !ingestion.IsPDF(header.Filename) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("only PDF files are supported"))
		return
	}

	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("create data directory: %w", err))
		return
	}

	path := filepath.Join(s.cfg.DataDir, filepath.Base(header.Filename))
	if err := saveUpload(path, file); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}
	defer os.Remove(path)

	ids, err := s.ingest.ProcessPDF(r.Context(), path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ingestion.ErrUnreadableDocument) || errors.Is(err, ingestion.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, fmt.Errorf("process pdf: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, ingestResponse{
		Message:     "File processed successfully",
		ChunksAdded: len(ids),
		FileName:    header.Filename,
	})
}

func (s *Server) handleIngestDirectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("create data directory: %w", err))
		return
	}

	paths, err := ingestion.ListPDFs(s.cfg.DataDir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("list pdf files: %w", err))
		return
	}
	if len(paths) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no PDF files found in %s", s.cfg.DataDir))
		return
	}

	results := make([]ingestResponse, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		ids, err := s.ingest.ProcessPDF(r.Context(), path)
		if err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
			results = append(results, ingestResponse{
				Message:     fmt.Sprintf("Failed to process %s", name),
				ChunksAdded: 0,
				FileName:    name,
			})
			continue
		}
		results = append(results, ingestResponse{
			Message:     fmt.Sprintf("Processed %s", name),
			ChunksAdded: len(ids),
			FileName:    name,
		})
	}

	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	verification, err := s.rag.VerifyIndex(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if !verification.HasDocuments {
		s.writeJSON(w, http.StatusOK, verifyResponse{Status: "no_documents"})
		return
	}

	s.writeJSON(w, http.StatusOK, verifyResponse{
		Status:  "sample_found",
		Source:  verification.SampleSource,
		Excerpt: verification.SampleExcerpt,
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

// saveUpload writes src to path, removing the partial file on failure so an
// interrupted upload leaves nothing behind in the data directory.
func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// splitSentences slices a completed answer on sentence ends for paced
// delivery.
func splitSentences(answer string) []string {
	parts := strings.Split(answer, ". ")
	sentences := make([]string, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i < len(parts)-1 && !strings.HasSuffix(part, ".") {
			part += "."
		}
		sentences = append(sentences, part)
	}
	return sentences
}

func sleepStream(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("stream cancelled")
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("stream cancelled")
	case <-timer.C:
		return nil
	}
}
