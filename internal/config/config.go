// Package config provides YAML-based configuration for cinerag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CINERAG_CONFIG environment variable
//  3. ~/.cinerag/config.yaml
//  4. ./cinerag.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider for RAG.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore selects and configures the vector store (qdrant or pgvector).
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Catalog configures the movie catalog service used for lexical search.
	Catalog CatalogConfig `yaml:"catalog"`

	// Generation configures the answer generation backend.
	Generation GenerationConfig `yaml:"generation"`

	// Pipeline tunes retrieval fan-out and context assembly.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Runs configures the pipeline run ledger.
	Runs RunsConfig `yaml:"runs"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL points at an OpenAI-compatible endpoint (e.g. a local proxy).
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint/model ID.
	Model string `yaml:"model"`
	// BaseURL overrides the regional Ark endpoint.
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings for RAG.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	// Backend is "qdrant" (default) or "pgvector".
	Backend string `yaml:"backend"`
	// Qdrant holds Qdrant settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
	// PgVector holds PostgreSQL + pgvector settings.
	PgVector PgVectorConfig `yaml:"pgvector"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// PgVectorConfig holds pgvector settings.
type PgVectorConfig struct {
	// DSN is the PostgreSQL connection string. Prefer env var PGVECTOR_DSN.
	DSN string `yaml:"dsn"`
	// Table holds the chunks (default: movie_chunks).
	Table string `yaml:"table"`
}

// CatalogConfig holds movie catalog service settings.
type CatalogConfig struct {
	// URL is the catalog base URL.
	URL string `yaml:"url"`
	// FetchLimit is how many records a lexical search pulls (default: 500).
	FetchLimit int `yaml:"fetch_limit"`
	// Timeout bounds each catalog request, as a Go duration string.
	Timeout string `yaml:"timeout"`
	// CacheTTL caches fetched records for this long. Empty disables caching.
	CacheTTL string `yaml:"cache_ttl"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	// Backend is "chat" (the model provider), "genai", "http" or "none".
	Backend string `yaml:"backend"`
	// Model overrides the provider's model for answers.
	Model string `yaml:"model"`
	// MaxTokens caps generated answers.
	MaxTokens int `yaml:"max_tokens"`
	// Endpoint is the URL used by the "http" backend.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds each generation call, as a Go duration string.
	Timeout string `yaml:"timeout"`
}

// PipelineConfig tunes retrieval and context assembly.
type PipelineConfig struct {
	// SemanticK is the number of vector-store passages requested.
	SemanticK int `yaml:"semantic_k"`
	// LexicalK is the number of catalog hits requested.
	LexicalK int `yaml:"lexical_k"`
	// ContextItems is how many reranked items feed the prompt.
	ContextItems int `yaml:"context_items"`
	// MaxContextTokens caps the assembled context.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// StageTimeout bounds each retrieval stage, as a Go duration string.
	StageTimeout string `yaml:"stage_timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CINERAG_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// RunsConfig holds run ledger settings.
type RunsConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"VECTOR_STORE", func(c *Config) string { return c.VectorStore.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.VectorStore.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.VectorStore.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.VectorStore.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.VectorStore.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.VectorStore.Qdrant.TLS) }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.VectorStore.PgVector.DSN }},
	{"PGVECTOR_TABLE", func(c *Config) string { return c.VectorStore.PgVector.Table }},
	{"CATALOG_URL", func(c *Config) string { return c.Catalog.URL }},
	{"CATALOG_FETCH_LIMIT", func(c *Config) string { return intStr(c.Catalog.FetchLimit) }},
	{"CATALOG_TIMEOUT", func(c *Config) string { return c.Catalog.Timeout }},
	{"CATALOG_CACHE_TTL", func(c *Config) string { return c.Catalog.CacheTTL }},
	{"GENERATION_BACKEND", func(c *Config) string { return c.Generation.Backend }},
	{"GENERATION_MODEL", func(c *Config) string { return c.Generation.Model }},
	{"GENERATION_MAX_TOKENS", func(c *Config) string { return intStr(c.Generation.MaxTokens) }},
	{"GENERATION_ENDPOINT", func(c *Config) string { return c.Generation.Endpoint }},
	{"GENERATION_TIMEOUT", func(c *Config) string { return c.Generation.Timeout }},
	{"PIPELINE_SEMANTIC_K", func(c *Config) string { return intStr(c.Pipeline.SemanticK) }},
	{"PIPELINE_LEXICAL_K", func(c *Config) string { return intStr(c.Pipeline.LexicalK) }},
	{"PIPELINE_CONTEXT_ITEMS", func(c *Config) string { return intStr(c.Pipeline.ContextItems) }},
	{"PIPELINE_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Pipeline.MaxContextTokens) }},
	{"PIPELINE_STAGE_TIMEOUT", func(c *Config) string { return c.Pipeline.StageTimeout }},
	{"CINERAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"CINERAG_RUNS_DB", func(c *Config) string { return c.Runs.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
//
// An explicit path that does not exist is an error. Unknown keys and
// out-of-range enum or duration values are rejected so a typo in the file
// does not silently fall back to a default.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	cfg, err := parseFile(path)
	if err != nil {
		return "", err
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env wins
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to apply %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// parseFile decodes and validates one config file.
func parseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// validate checks the enum and duration fields that the commands would
// otherwise interpret leniently.
func (c *Config) validate() error {
	enums := []struct {
		field, value string
		allowed      []string
	}{
		{"model.provider", c.Model.Provider, []string{"ollama", "openai", "azure", "ark", "gemini"}},
		{"embedding.provider", c.Embedding.Provider, []string{"ollama", "openai", "azure", "gemini"}},
		{"vector_store.backend", c.VectorStore.Backend, []string{"qdrant", "pgvector"}},
		{"generation.backend", c.Generation.Backend, []string{"chat", "genai", "http", "none"}},
		{"logging.level", c.Logging.Level, []string{"debug", "info", "warn", "warning", "error"}},
		{"logging.format", c.Logging.Format, []string{"json", "text"}},
	}
	for _, e := range enums {
		if e.value != "" && !slices.Contains(e.allowed, strings.ToLower(e.value)) {
			return fmt.Errorf("%s: unknown value %q (want one of %s)", e.field, e.value, strings.Join(e.allowed, ", "))
		}
	}

	durations := map[string]string{
		"catalog.timeout":        c.Catalog.Timeout,
		"catalog.cache_ttl":      c.Catalog.CacheTTL,
		"generation.timeout":     c.Generation.Timeout,
		"pipeline.stage_timeout": c.Pipeline.StageTimeout,
	}
	for field, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature: %v out of range [0, 2]", c.Model.Temperature)
	}
	return nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: --config %s: %w", explicit, err)
		}
		return explicit, nil
	}

	candidates := []string{os.Getenv("CINERAG_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".cinerag", "config.yaml"))
	}
	candidates = append(candidates, "cinerag.yaml")

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
