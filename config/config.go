// Package config loads process-wide settings from the environment, with
// optional .env and YAML file sources. Settings are read once at startup and
// treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
)

type Settings struct {
	StorePath    string `yaml:"store_path"`
	StoreBackend string `yaml:"store_backend"`
	DataDir      string `yaml:"data_dir"`

	LLMProvider       string `yaml:"llm_provider"`
	LLMModel          string `yaml:"llm_model"`
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	// EmbeddingDimension guards against a model/schema mismatch in the
	// pgvector backend. Zero disables the check.
	EmbeddingDimension int `yaml:"embedding_dimension"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	MaxRetries   int           `yaml:"max_retries"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max"`

	PostgresDSN string `yaml:"postgres_dsn"`
	ListenAddr  string `yaml:"listen_addr"`
}

// Load resolves settings in increasing precedence: defaults, YAML config
// file (CONFIG_FILE or ./config.yaml if present), environment variables. A
// .env file, when present, backfills unset environment variables first.
// Loading twice under an identical environment yields identical values.
func Load() (Settings, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := configFilePath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s Settings) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", s.ChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be non-negative and smaller than chunk size %d", s.ChunkOverlap, s.ChunkSize)
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", s.MaxRetries)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	if s.RetryWaitMin <= 0 || s.RetryWaitMax < s.RetryWaitMin {
		return fmt.Errorf("retry waits must satisfy 0 < min <= max, got min=%s max=%s", s.RetryWaitMin, s.RetryWaitMax)
	}
	switch s.LLMProvider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider: %s", s.LLMProvider)
	}
	switch s.EmbeddingProvider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider: %s", s.EmbeddingProvider)
	}
	switch s.StoreBackend {
	case BackendChromem, BackendPgvector:
	default:
		return fmt.Errorf("unknown store backend: %s", s.StoreBackend)
	}
	return nil
}

func defaults() Settings {
	return Settings{
		StorePath:          "./vector_db",
		StoreBackend:       BackendChromem,
		DataDir:            "./data",
		LLMProvider:        ProviderOllama,
		LLMModel:           "deepseek-r1:7b",
		EmbeddingProvider:  ProviderOllama,
		EmbeddingModel:     "mxbai-embed-large",
		EmbeddingDimension: 1024,
		ChunkSize:          600,
		ChunkOverlap:       150,
		OllamaHost:         "http://localhost:11434",
		MaxRetries:         2,
		Timeout:            60 * time.Second,
		RetryWaitMin:       4 * time.Second,
		RetryWaitMax:       10 * time.Second,
		PostgresDSN:        "postgres://localhost:5432/docai?sslmode=disable",
		ListenAddr:         ":8000",
	}
}

func configFilePath() string {
	if path, ok := os.LookupEnv("CONFIG_FILE"); ok && path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func applyEnv(cfg *Settings) {
	setString(&cfg.StorePath, "VECTOR_DB_PATH")
	setString(&cfg.StoreBackend, "STORE_BACKEND")
	setString(&cfg.DataDir, "DATA_DIRECTORY")
	setString(&cfg.LLMProvider, "LLM_PROVIDER")
	setString(&cfg.LLMModel, "OLLAMA_MODEL")
	setString(&cfg.EmbeddingProvider, "EMBEDDINGS_PROVIDER")
	setString(&cfg.EmbeddingModel, "OLLAMA_EMBEDDING_MODEL")
	setInt(&cfg.EmbeddingDimension, "EMBEDDING_DIMENSION")
	setInt(&cfg.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.ChunkOverlap, "CHUNK_OVERLAP")
	setString(&cfg.OllamaHost, "OLLAMA_BASE_URL")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	setInt(&cfg.MaxRetries, "MAX_RETRIES")
	setSeconds(&cfg.Timeout, "TIMEOUT")
	setSeconds(&cfg.RetryWaitMin, "RETRY_WAIT_MIN")
	setSeconds(&cfg.RetryWaitMax, "RETRY_WAIT_MAX")
	setString(&cfg.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}

// setSeconds accepts either a bare number of seconds ("60") or a Go duration
// string ("1m30s").
func setSeconds(dst *time.Duration, key string) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return
	}
	if secs, err := strconv.Atoi(value); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}
