// Package llm talks to the configured text-generation provider. Every client
// returned by NewClient applies the shared system instruction and a bounded
// exponential-backoff retry policy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medyouin/docai/config"
)

// ErrGenerationUnavailable marks a generation call that failed after
// exhausting its retry budget. The last underlying error is wrapped
// alongside it.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// systemInstruction suppresses exposed reasoning so only final answer text
// ever reaches callers.
const systemInstruction = "You are a concise assistant. Never include thoughts, commentary, or <think> tags. Only provide final answers."

type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Timeout bounds a single generation attempt; exceeding it is a
	// retryable failure.
	Timeout time.Duration
}

// NewClient builds the provider client and wraps it in the retry decorator.
func NewClient(cfg config.Settings) (*RetryClient, error) {
	opts := Options{
		Provider:      cfg.LLMProvider,
		Model:         cfg.LLMModel,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		Timeout:       cfg.Timeout,
	}

	var base Client
	switch opts.Provider {
	case config.ProviderOllama:
		base = NewOllamaClient(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		base = NewOpenAIClient(opts)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}

	policy := BackoffPolicy{
		Min:        cfg.RetryWaitMin,
		Max:        cfg.RetryWaitMax,
		Multiplier: 2,
	}
	return NewRetryClient(base, cfg.MaxRetries, policy), nil
}
