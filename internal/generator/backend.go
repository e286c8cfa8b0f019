package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/54b3r/cinerag-go/internal/budget"
	"github.com/54b3r/cinerag-go/internal/logging"
)

// ErrUnavailable marks a backend that was never configured.
var ErrUnavailable = errors.New("generation backend unavailable")

// Request is one generation call.
type Request struct {
	Prompt string
	// Model overrides the backend's default model when non-empty.
	Model string
	// MaxTokens caps the answer length when > 0.
	MaxTokens int
}

// Backend produces a raw response for a prompt. The response shape is
// backend-specific; the Generator extracts text from it.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (any, error)
}

// ---------------------------------------------------------------------------
// eino chat model
// ---------------------------------------------------------------------------

// ChatModelBackend sends the prompt as a single user message to an eino
// chat model and returns the *schema.Message reply.
type ChatModelBackend struct {
	name  string
	model model.BaseChatModel
}

// NewChatModelBackend wraps m. name identifies the provider in logs.
func NewChatModelBackend(name string, m model.BaseChatModel) *ChatModelBackend {
	return &ChatModelBackend{name: name, model: m}
}

func (b *ChatModelBackend) Name() string { return b.name }

func (b *ChatModelBackend) Generate(ctx context.Context, req Request) (any, error) {
	msgs := []*schema.Message{schema.UserMessage(req.Prompt)}

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	logging.FromContext(ctx).Debug("generator: calling chat model",
		slog.String("backend", b.name),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
	)
	return b.model.Generate(ctx, msgs, opts...)
}

// ---------------------------------------------------------------------------
// Gemini (genai SDK)
// ---------------------------------------------------------------------------

// GenAIBackend calls Gemini directly through the genai SDK and returns the
// *genai.GenerateContentResponse.
type GenAIBackend struct {
	client       *genai.Client
	defaultModel string
}

// NewGenAIBackend wraps client. defaultModel is used when a request does not
// name one.
func NewGenAIBackend(client *genai.Client, defaultModel string) *GenAIBackend {
	return &GenAIBackend{client: client, defaultModel: defaultModel}
}

func (b *GenAIBackend) Name() string { return "genai" }

func (b *GenAIBackend) Generate(ctx context.Context, req Request) (any, error) {
	name := req.Model
	if name == "" {
		name = b.defaultModel
	}
	var cfg *genai.GenerateContentConfig
	if req.MaxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	}
	return b.client.Models.GenerateContent(ctx, name, genai.Text(req.Prompt), cfg)
}

// ---------------------------------------------------------------------------
// Raw HTTP JSON endpoint
// ---------------------------------------------------------------------------

// HTTPBackend posts {"prompt","model","max_tokens"} to a JSON endpoint, such
// as a model-serving sidecar, and returns the response body as
// json.RawMessage.
type HTTPBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPBackend constructs an HTTPBackend. apiKey is sent as a bearer token
// when non-empty.
func NewHTTPBackend(endpoint, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBackend{endpoint: endpoint, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (b *HTTPBackend) Name() string { return "http" }

type httpGenerateRequest struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

func (b *HTTPBackend) Generate(ctx context.Context, req Request) (any, error) {
	payload, err := json.Marshal(httpGenerateRequest{Prompt: req.Prompt, Model: req.Model, MaxTokens: req.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !json.Valid(body) {
		return string(body), nil
	}
	return json.RawMessage(body), nil
}

// ---------------------------------------------------------------------------
// Unconfigured
// ---------------------------------------------------------------------------

// UnavailableBackend stands in when no backend could be configured. Every
// call fails with ErrUnavailable and the recorded reason.
type UnavailableBackend struct {
	Reason string
}

func (b UnavailableBackend) Name() string { return "unavailable" }

func (b UnavailableBackend) Generate(context.Context, Request) (any, error) {
	if b.Reason == "" {
		return nil, ErrUnavailable
	}
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, b.Reason)
}
