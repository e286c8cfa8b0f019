// Package generator turns assembled context and a question into an answer.
// It owns the prompt template, calls a pluggable [Backend], and extracts text
// from whatever response shape the backend returns. Failures never escape
// [Generator.Generate]: they come back as an answer starting with
// [ErrorPrefix].
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/cinerag-go/internal/logging"
)

// PromptTemplate frames retrieved context and the question for the model.
const PromptTemplate = `
Answer the question based only on the following context:

{context}

---

Answer the question based on the above context: {question}
`

// ErrorPrefix marks an answer that is really a generation failure.
const ErrorPrefix = "(generation-error)"

// Default generation settings.
const (
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
)

// Config configures a Generator.
type Config struct {
	// Backend produces raw responses. Required.
	Backend Backend

	// Model is passed to the backend for pipeline answers. Empty uses the
	// backend's own default.
	Model string

	// MaxTokens caps pipeline answers (default: DefaultMaxTokens).
	MaxTokens int

	// Timeout bounds each backend call (default: DefaultTimeout).
	Timeout time.Duration

	// Extractors overrides DefaultExtractors.
	Extractors []Extractor
}

// Generator formats prompts and calls a Backend.
type Generator struct {
	backend    Backend
	model      string
	maxTokens  int
	timeout    time.Duration
	extractors []Extractor
}

// New constructs a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("generator: backend must not be nil")
	}
	g := &Generator{
		backend:    cfg.Backend,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		extractors: cfg.Extractors,
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if len(g.extractors) == 0 {
		g.extractors = DefaultExtractors
	}
	return g, nil
}

// BuildPrompt fills PromptTemplate. Placeholders inside contextText or
// question are not expanded again.
func BuildPrompt(contextText, question string) string {
	return strings.NewReplacer("{context}", contextText, "{question}", question).Replace(PromptTemplate)
}

// BackendName reports which backend answers are produced by.
func (g *Generator) BackendName() string { return g.backend.Name() }

// Available reports whether a real backend is configured.
func (g *Generator) Available() bool {
	_, stub := g.backend.(UnavailableBackend)
	return !stub
}

// Model returns the configured default model name.
func (g *Generator) Model() string { return g.model }

// Generate answers question from contextText. It always returns a string;
// on failure the string starts with ErrorPrefix followed by the cause.
func (g *Generator) Generate(ctx context.Context, contextText, question string) string {
	text, err := g.call(ctx, Request{
		Prompt:    BuildPrompt(contextText, question),
		Model:     g.model,
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("generator: generation failed",
			slog.String("backend", g.backend.Name()),
			slog.String("error", err.Error()),
		)
		return ErrorPrefix + " " + err.Error()
	}
	return text
}

// GenerateRaw sends prompt without the RAG template and returns the error
// instead of folding it into the answer. Empty model and non-positive
// maxTokens fall back to the configured defaults.
func (g *Generator) GenerateRaw(ctx context.Context, prompt, model string, maxTokens int) (string, error) {
	if model == "" {
		model = g.model
	}
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	text, err := g.call(ctx, Request{Prompt: prompt, Model: model, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("generator: %w", err)
	}
	return text, nil
}

// IsUnavailable reports whether err came from an unconfigured backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func (g *Generator) call(ctx context.Context, req Request) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("backend panic: %v", p)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.backend.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return ExtractText(resp, g.extractors), nil
}
