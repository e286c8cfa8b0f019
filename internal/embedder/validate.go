package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"gemini-",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel reports whether model resembles a chat model rather than
// a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check run before the semantic retriever is
// built. Missing credentials are reported as an error so the operator sees
// them at startup; the server still runs with semantic retrieval degraded.
// A chat-looking EMBEDDING_MODEL or an inherited backend only warns.
func Validate(log *slog.Logger) error {
	backend := Backend()

	if backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure/gemini) to be explicit"),
		)
	}

	var missing []string
	switch backend {
	case "openai":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("OPENAI_API_KEY")) == "" {
			missing = append(missing, "OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("AZURE_OPENAI_API_KEY")) == "" {
			missing = append(missing, "AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), os.Getenv("AZURE_OPENAI_ENDPOINT")) == "" {
			missing = append(missing, "AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "gemini":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("GOOGLE_API_KEY")) == "" {
			missing = append(missing, "GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("embedder: %s backend is missing %s", backend, strings.Join(missing, ", "))
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-004"),
		)
	}

	return nil
}
