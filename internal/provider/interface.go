// Package provider selects and constructs the eino chat model that backs
// answer generation. Supported backends: Ollama, OpenAI, Azure OpenAI,
// Volcengine Ark and Google Gemini.
package provider

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL (OLLAMA_HOST).
	Host string
	// Model is the chat model name (OLLAMA_MODEL).
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the bearer token (OPENAI_API_KEY).
	APIKey string
	// Model is the chat model name (OPENAI_MODEL).
	Model string
	// BaseURL overrides the API root for OpenAI-compatible servers (OPENAI_BASE_URL).
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the resource key (AZURE_OPENAI_API_KEY).
	APIKey string
	// Endpoint is the resource URL (AZURE_OPENAI_ENDPOINT).
	Endpoint string
	// Deployment is the deployment name (AZURE_OPENAI_DEPLOYMENT).
	Deployment string
	// APIVersion is the REST API version (AZURE_OPENAI_API_VERSION).
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is the Ark key (ARK_API_KEY).
	APIKey string
	// Model is the endpoint or model id (ARK_MODEL).
	Model string
	// BaseURL is the regional API root (ARK_BASE_URL).
	BaseURL string
}

// ProviderGemini holds Gemini settings.
type ProviderGemini struct {
	// APIKey is the AI Studio key (GOOGLE_API_KEY).
	APIKey string
	// Model is the model name (GEMINI_MODEL, default gemini-2.5-flash).
	Model string
}

// SharedTuning applies to every backend that accepts it.
type SharedTuning struct {
	// MaxTokens caps generated tokens per response (MODEL_MAX_TOKENS).
	MaxTokens int
	// Temperature controls randomness (MODEL_TEMPERATURE).
	Temperature float32
}

// Config holds all provider-level configuration. Only the block matching
// Backend is read.
type Config struct {
	Backend     Backend
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// ModelName returns the model or deployment the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}
