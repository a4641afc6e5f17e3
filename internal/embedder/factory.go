package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/d8vjr/docqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel  = "nomic-embed-text"
	defaultOpenAIModel  = "text-embedding-3-small"
	defaultBedrockModel = "amazon.titan-embed-text-v2"
	defaultGeminiModel  = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with DOCQA_EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the correct default embedding vector size for the
// given backend name. Callers that need to pre-configure a vector index (the
// SQLite model pin, Qdrant collection creation) should use this rather than
// hardcoding a value. DOCQA_EMBEDDING_DIMENSIONS always takes precedence when
// set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("DOCQA_EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ResolveBackend returns the effective embedding backend name, inheriting the
// chat provider when no embedding-specific override is set.
func ResolveBackend() string {
	backend := getEnv("DOCQA_EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("DOCQA_MODEL_PROVIDER", "ollama")
	}
	return backend
}

// ResolveModel returns the effective embedding model name for the given
// backend, honoring the DOCQA_EMBEDDING_MODEL override.
func ResolveModel(backend string) string {
	fallback := defaultOpenAIModel
	if backend == "ollama" {
		fallback = defaultOllamaModel
	}
	return getEnvOrDefault("DOCQA_EMBEDDING_MODEL", fallback)
}

// NewFromEnv constructs a rag.Embedder using cascading defaults that inherit
// from the chat provider configuration when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. DOCQA_EMBEDDING_PROVIDER; if unset, inherits DOCQA_MODEL_PROVIDER (default: ollama)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. DOCQA_EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. DOCQA_EMBEDDING_API_KEY overrides the inherited API key
//  5. DOCQA_EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. DOCQA_EMBEDDING_DIMENSIONS overrides the default dimensions (ollama: 768, openai/azure: 1536)
func NewFromEnv() (rag.Embedder, error) {
	backend := ResolveBackend()

	switch backend {
	case "ollama":
		host := getEnv("DOCQA_EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: ResolveModel(backend),
		}), nil

	case "openai":
		dims := getEnvInt("DOCQA_EMBEDDING_DIMENSIONS", defaultOpenAIDimensions)
		apiKey := getEnv("DOCQA_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or DOCQA_EMBEDDING_API_KEY")
		}
		baseURL := getEnv("DOCQA_EMBEDDING_ENDPOINT")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      ResolveModel(backend),
			Dimensions: dims,
		}), nil

	case "azure":
		dims := getEnvInt("DOCQA_EMBEDDING_DIMENSIONS", defaultOpenAIDimensions)
		apiKey := getEnv("DOCQA_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or DOCQA_EMBEDDING_API_KEY")
		}
		endpoint := getEnv("DOCQA_EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or DOCQA_EMBEDDING_ENDPOINT")
		}
		apiVersion := getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      ResolveModel(backend),
			Dimensions: dims,
			Azure:      true,
			APIVersion: apiVersion,
		}), nil

	case "bedrock":
		// Future: implement BedrockEmbedder. For now, return an error.
		return nil, fmt.Errorf("embedder: bedrock embedding support is not yet implemented (model: %s)", defaultBedrockModel)

	case "gemini":
		// Future: implement GeminiEmbedder. For now, return an error.
		return nil, fmt.Errorf("embedder: gemini embedding support is not yet implemented (model: %s)", defaultGeminiModel)

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure, bedrock, gemini", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
