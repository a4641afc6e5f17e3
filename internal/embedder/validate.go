package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If DOCQA_EMBEDDING_MODEL
// matches any of these, a warning is emitted so the operator knows they may
// have misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateForRAG checks that the embedding configuration is usable before any
// ingestion or query work starts. It returns an error if the configuration is
// clearly broken (an azure embedder with no API key), and logs a warning if
// DOCQA_EMBEDDING_MODEL looks like a chat model rather than an embedding
// model.
//
// This is a pre-flight check. Call it at startup so operators get a clear
// error immediately rather than a cryptic failure during the first embed
// call.
func ValidateForRAG(log *slog.Logger) error {
	backend := ResolveBackend()

	// Warn if the resolved backend is a remote chat provider with no explicit
	// embedding override, since the inheritance may be accidental.
	if backend != "ollama" && os.Getenv("DOCQA_EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: DOCQA_EMBEDDING_PROVIDER is not set, inheriting chat provider as embedding backend",
			slog.String("backend", backend),
			slog.String("hint", "set DOCQA_EMBEDDING_PROVIDER=ollama (or openai/azure) to be explicit"),
		)
	}

	switch backend {
	case "openai":
		apiKey := os.Getenv("DOCQA_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or DOCQA_EMBEDDING_API_KEY")
		}

	case "azure":
		apiKey := os.Getenv("DOCQA_EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or DOCQA_EMBEDDING_API_KEY")
		}
		endpoint := os.Getenv("DOCQA_EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or DOCQA_EMBEDDING_ENDPOINT")
		}

	case "bedrock":
		return fmt.Errorf("embedder: bedrock embedding is not yet implemented, set DOCQA_EMBEDDING_PROVIDER to ollama, openai, or azure")

	case "gemini":
		return fmt.Errorf("embedder: gemini embedding is not yet implemented, set DOCQA_EMBEDDING_PROVIDER to ollama, openai, or azure")
	}

	// Warn if the chosen model looks like a chat model.
	model := os.Getenv("DOCQA_EMBEDDING_MODEL")
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: DOCQA_EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	return nil
}
