// Package embedder provides implementations of the rag.Embedder interface for
// converting movie plots and queries into dense vector embeddings. Ollama and
// OpenAI/Azure are reached over plain HTTP; Gemini goes through the genai SDK.
// [Fallback] wraps any of them so query embedding never fails outward.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response body is quoted in errors.
const maxErrorBody = 512

// postJSON sends body as JSON to url and decodes a 2xx response into out.
// Non-2xx responses are returned as an error quoting errMsg(out) when it is
// non-empty, otherwise the status and a prefix of the raw body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, errMsg func() string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	decodeErr := json.Unmarshal(raw, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil {
			if msg := errMsg(); msg != "" {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
			}
		}
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}
