package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medyouin/docai/api"
	"github.com/medyouin/docai/config"
	"github.com/medyouin/docai/embeddings"
	"github.com/medyouin/docai/ingestion"
	"github.com/medyouin/docai/llm"
	"github.com/medyouin/docai/rag"
	"github.com/medyouin/docai/store"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "verify":
		verifyCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// buildServices constructs the process-wide adapters once: embedder, vector
// store, llm client, and the services composed from them.
func buildServices(ctx context.Context, cfg config.Settings, logger *log.Logger) (*rag.Service, *ingestion.Service, error) {
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	vectors, err := store.New(ctx, cfg, embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("vector store setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}

	ragSvc := rag.NewService(vectors, llmClient, logger)
	ingestSvc := ingestion.NewService(vectors, nil, cfg, logger)
	return ragSvc, ingestSvc, nil
}

func serveCmd(cfg config.Settings, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "listen address")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ragSvc, ingestSvc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(cfg, ragSvc, ingestSvc, logger).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func ingestCmd(cfg config.Settings, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dir := flags.String("dir", cfg.DataDir, "directory containing PDF documents")
	file := flags.String("file", "", "single PDF file to ingest")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_, ingestSvc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	if *file != "" {
		ids, err := ingestSvc.ProcessPDF(ctx, *file)
		if err != nil {
			logger.Fatalf("ingest %s: %v", *file, err)
		}
		logger.Printf("added %d chunks from %s", len(ids), *file)
		return
	}

	ids, err := ingestSvc.ProcessDirectory(ctx, *dir)
	if err != nil {
		logger.Fatalf("ingest directory %s: %v", *dir, err)
	}
	logger.Printf("added %d chunks from %s", len(ids), *dir)
}

func askCmd(cfg config.Settings, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to answer")
	k := flags.Int("k", rag.DefaultTopK, "number of context chunks to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if *question == "" {
		logger.Fatal("a question is required (use -question)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ragSvc, _, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	result, err := ragSvc.Query(ctx, *question, *k)
	if err != nil {
		logger.Fatalf("query failed: %v", err)
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range result.Sources {
			fmt.Printf("%d. %s\n", idx+1, source)
		}
	}
}

func verifyCmd(cfg config.Settings, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("verify", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse verify flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ragSvc, _, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	verification, err := ragSvc.VerifyIndex(ctx)
	if err != nil {
		logger.Fatalf("verify failed: %v", err)
	}

	if !verification.HasDocuments {
		fmt.Println("No documents found. Ingest documents first.")
		return
	}
	fmt.Printf("Documents found.\nSample source: %s\nSample excerpt: %s\n", verification.SampleSource, verification.SampleExcerpt)
}

func printUsage() {
	fmt.Println("Usage: docai <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the HTTP API server")
	fmt.Println("  ingest   Ingest PDF documents into the vector store (-dir or -file)")
	fmt.Println("  ask      Answer a question from the ingested documents")
	fmt.Println("  verify   Show a sample stored record for sanity-checking")
}
