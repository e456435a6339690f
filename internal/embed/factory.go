package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

// ProviderType identifies an embedding provider
type ProviderType string

const (
	// ProviderJina uses an OpenAI-compatible embeddings API (default).
	// Any compatible endpoint works via embedding.base_url.
	ProviderJina ProviderType = "jina"

	// ProviderOllama uses a local Ollama server's /api/embed
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline runs and tests)
	ProviderStatic ProviderType = "static"
)

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ParseProvider converts a provider name to a ProviderType. An empty
// name selects the default provider.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jina", "":
		return ProviderJina, nil
	case "ollama":
		return ProviderOllama, nil
	case "static":
		return ProviderStatic, nil
	default:
		return "", errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider: %q", s), nil).
			WithSuggestion(fmt.Sprintf("Valid providers: %s", strings.Join(ValidProviders(), ", ")))
	}
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderJina),
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// New creates an embedder from the embedding section of the config.
// The Jina path reads its API key from the environment variable named
// by api_key_env; the key never lives in the config file.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	timeout := DefaultTimeout
	if cfg.RequestTimeout != "" {
		d, err := time.ParseDuration(cfg.RequestTimeout)
		if err != nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid embedding.request_timeout: %q", cfg.RequestTimeout), err)
		}
		timeout = d
	}

	switch provider {
	case ProviderJina:
		jcfg := DefaultJinaConfig()
		if cfg.BaseURL != "" {
			jcfg.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			jcfg.Model = cfg.Model
		}
		if cfg.Dimensions > 0 {
			jcfg.Dimensions = cfg.Dimensions
		}
		if cfg.BatchSize > 0 {
			jcfg.BatchSize = cfg.BatchSize
		}
		jcfg.Timeout = timeout

		keyEnv := cfg.APIKeyEnv
		if keyEnv == "" {
			keyEnv = DefaultJinaAPIKeyEnv
		}
		jcfg.APIKey = os.Getenv(keyEnv)
		if jcfg.APIKey == "" {
			return nil, errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("embedding api key not set: %s is empty", keyEnv), nil).
				WithSuggestion(fmt.Sprintf("export %s=<key>, or switch embedding.provider to ollama or static", keyEnv))
		}
		return NewJinaEmbedder(jcfg)

	case ProviderOllama:
		ocfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ocfg.Host = cfg.OllamaHost
		}
		// The stock config carries the Jina model name; that never names
		// an Ollama model, so fall through to the Ollama default.
		if cfg.Model != "" && cfg.Model != DefaultJinaModel {
			ocfg.Model = cfg.Model
		}
		if cfg.Dimensions > 0 {
			ocfg.Dimensions = cfg.Dimensions
		}
		if cfg.BatchSize > 0 {
			ocfg.BatchSize = cfg.BatchSize
		}
		ocfg.Timeout = timeout

		e, err := NewOllamaEmbedder(ctx, ocfg)
		if err != nil {
			return nil, errors.New(errors.ErrCodeNetworkUnavailable, "ollama unavailable", err).
				WithSuggestion("Start Ollama with 'ollama serve', or switch embedding.provider to static")
		}
		return e, nil

	case ProviderStatic:
		return NewStaticEmbedder(), nil
	}

	return nil, errors.New(errors.ErrCodeInternal,
		fmt.Sprintf("unhandled embedding provider: %s", provider), nil)
}

// EmbedderInfo describes a constructed embedder
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// Info reports provider, model, dimensions, and availability for an
// embedder. The status and check commands print this.
func Info(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	// Unwrap the cache decorator to see the provider type
	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.Inner()
	}

	switch inner.(type) {
	case *JinaEmbedder:
		info.Provider = ProviderJina
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}

	return info
}
