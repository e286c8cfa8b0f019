package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	path, err := Load("/nonexistent/path/config.yaml", slog.Default())
	if err == nil {
		t.Fatal("expected error for a --config path that does not exist")
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_NoFileFound(t *testing.T) {
	t.Setenv("CINERAG_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	path, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: azure
  max_tokens: 8192
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
vector_store:
  backend: pgvector
  qdrant:
    host: qdrant.internal
    port: 6334
    collection: movies
  pgvector:
    dsn: postgres://rag:rag@db:5432/movies
    table: plot_chunks
catalog:
  url: http://catalog.internal:8000
  fetch_limit: 250
  cache_ttl: 2m
generation:
  backend: http
  endpoint: http://llm.internal/generate
  max_tokens: 512
pipeline:
  semantic_k: 8
  stage_timeout: 3s
runs:
  db_path: disabled
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_API_VERSION",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"VECTOR_STORE", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"PGVECTOR_DSN", "PGVECTOR_TABLE",
		"CATALOG_URL", "CATALOG_FETCH_LIMIT", "CATALOG_CACHE_TTL",
		"GENERATION_BACKEND", "GENERATION_ENDPOINT", "GENERATION_MAX_TOKENS",
		"PIPELINE_SEMANTIC_K", "PIPELINE_STAGE_TIMEOUT", "CINERAG_RUNS_DB",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "8192",
		"AZURE_OPENAI_ENDPOINT":    "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION":        "movies",
		"VECTOR_STORE":             "pgvector",
		"PGVECTOR_DSN":             "postgres://rag:rag@db:5432/movies",
		"PGVECTOR_TABLE":           "plot_chunks",
		"CATALOG_URL":              "http://catalog.internal:8000",
		"CATALOG_FETCH_LIMIT":      "250",
		"CATALOG_CACHE_TTL":        "2m",
		"GENERATION_BACKEND":       "http",
		"GENERATION_ENDPOINT":      "http://llm.internal/generate",
		"GENERATION_MAX_TOKENS":    "512",
		"PIPELINE_SEMANTIC_K":      "8",
		"PIPELINE_STAGE_TIMEOUT":   "3s",
		"CINERAG_RUNS_DB":          "disabled",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading; it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown key":     "vector_store:\n  backnd: qdrant\n",
		"bad backend":     "vector_store:\n  backend: milvus\n",
		"bad generation":  "generation:\n  backend: bedrock\n",
		"bad duration":    "pipeline:\n  stage_timeout: soon\n",
		"bad temperature": "model:\n  temperature: 3.5\n",
		"bad log format":  "logging:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(cfgPath, slog.Default()); err == nil {
				t.Fatalf("expected error for %q", body)
			}
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("empty file: %v", err)
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
