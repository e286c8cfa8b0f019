// Package tracing wires Langfuse as a global eino callback handler so every
// chat-model call made while answering a query is traced.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// Config holds the Langfuse connection settings.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
	// Release tags every trace with the running build.
	Release string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY.
func ConfigFromEnv(release string) Config {
	return Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
		Release:   release,
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup builds the Langfuse handler and registers it globally. The returned
// flush function must be called before process exit so buffered traces are
// sent. When Langfuse is not configured it returns a no-op flush and false.
func Setup(cfg Config) (func(), bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}
	if cfg.Host == "" {
		cfg.Host = "http://localhost:3000"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "cinerag",
		Release:   cfg.Release,
	})
	callbacks.AppendGlobalHandlers(handler)

	return flusher, true
}
