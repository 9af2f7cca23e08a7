package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output size of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output size of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Provider returns the configured embedding backend name, defaulting to local.
func Provider() string {
	return strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", "local"))
}

// DefaultDimensions returns the default vector size for backend.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "openai", "azure":
		return defaultOpenAIDimensions
	default:
		return DefaultLocalDimensions
	}
}

// NewFromEnv constructs the configured rag.Embedder. It is meant to be called
// once at startup; the returned instance is shared by every consumer.
//
// Resolution:
//
//  1. EMBEDDING_PROVIDER selects local (default), ollama, openai or azure
//  2. EMBEDDING_MODEL overrides the backend's default model
//  3. EMBEDDING_API_KEY / EMBEDDING_ENDPOINT override the chat provider's
//     credentials (OPENAI_API_KEY, AZURE_OPENAI_*, OLLAMA_HOST)
//  4. EMBEDDING_DIMENSIONS overrides the default vector size
//  5. EMBEDDING_SERIALIZE=true wraps the embedder in Serialized
func NewFromEnv() (rag.Embedder, error) {
	e, err := newBackendFromEnv(Provider())
	if err != nil {
		return nil, err
	}
	if getEnvBool("EMBEDDING_SERIALIZE") {
		return NewSerialized(e), nil
	}
	return e, nil
}

func newBackendFromEnv(backend string) (rag.Embedder, error) {
	switch backend {
	case "local":
		return NewLocal(DefaultDimensions(backend)), nil

	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		dims := 0
		if getEnv("EMBEDDING_MODEL") == "" || getEnv("EMBEDDING_DIMENSIONS") != "" {
			dims = DefaultDimensions(backend)
		}
		return NewOllama(OllamaConfig{
			Host:       host,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
			Dimensions: dims,
		}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: DefaultDimensions(backend),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:    strings.TrimRight(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: DefaultDimensions(backend),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: local, ollama, openai, azure)", backend)
	}
}

func getEnv(key string) string {
	return os.Getenv(key)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
