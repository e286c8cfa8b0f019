package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Probe performs a zero-token reachability check against the configured
// backend: a model listing for Ollama, OpenAI, Azure and Gemini. Ark has no
// cheap listing endpoint, so only its configuration is validated.
func Probe(ctx context.Context, cfg *Config, client *http.Client) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if client == nil {
		client = http.DefaultClient
	}

	var (
		target  string
		headers = map[string]string{}
	)
	switch cfg.Backend {
	case BackendOllama:
		target = strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags"
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		target = strings.TrimRight(base, "/") + "/models"
		headers["Authorization"] = "Bearer " + cfg.OpenAI.APIKey
	case BackendAzure:
		target = strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/") +
			"/openai/models?api-version=" + url.QueryEscape(cfg.AzureOpenAI.APIVersion)
		headers["api-key"] = cfg.AzureOpenAI.APIKey
	case BackendGemini:
		target = "https://generativelanguage.googleapis.com/v1beta/models/" + url.PathEscape(cfg.Gemini.Model)
		headers["x-goog-api-key"] = cfg.Gemini.APIKey
	default:
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("provider: probe request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: %s unreachable: %w", cfg.Backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: %s probe returned HTTP %d", cfg.Backend, resp.StatusCode)
	}
	return nil
}
