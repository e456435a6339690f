package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

// Jina API constants
const (
	// DefaultJinaBaseURL is Jina's OpenAI-compatible endpoint
	DefaultJinaBaseURL = "https://api.jina.ai/v1"

	// DefaultJinaModel is the multilingual embedding model used for
	// entity passages and queries
	DefaultJinaModel = "jina-embeddings-v3"

	// DefaultJinaDimensions for jina-embeddings-v3
	DefaultJinaDimensions = 1024

	// DefaultJinaAPIKeyEnv names the environment variable read for the
	// API key when the config does not name one
	DefaultJinaAPIKeyEnv = "JINA_API_KEY"
)

// JinaConfig configures the Jina embedder
type JinaConfig struct {
	// BaseURL is the OpenAI-compatible endpoint (default: https://api.jina.ai/v1).
	// Any endpoint speaking the same protocol works.
	BaseURL string

	// APIKey authenticates requests; required
	APIKey string

	// Model is the embedding model (default: jina-embeddings-v3)
	Model string

	// Dimensions requested from the API (default: 1024)
	Dimensions int

	// BatchSize for batch embedding requests (default: 32)
	BatchSize int

	// Timeout per API request (default: 60s)
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int
}

// DefaultJinaConfig returns sensible defaults
func DefaultJinaConfig() JinaConfig {
	return JinaConfig{
		BaseURL:    DefaultJinaBaseURL,
		Model:      DefaultJinaModel,
		Dimensions: DefaultJinaDimensions,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// JinaEmbedder generates embeddings through an OpenAI-compatible
// embeddings API. jina-embeddings-v3 is task-asymmetric, but the
// OpenAI-compatible request schema carries no task field, so passages
// and queries both use the model's default adapter.
type JinaEmbedder struct {
	client     *openai.Client
	httpClient *http.Client
	config     JinaConfig
	breaker    *errors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*JinaEmbedder)(nil)

// NewJinaEmbedder creates a new Jina embedder. The API key is required;
// the factory resolves it from the environment so it never lives in a
// config file.
func NewJinaEmbedder(cfg JinaConfig) (*JinaEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJinaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultJinaModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultJinaDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "embedding api key is empty", nil).
			WithSuggestion("Export the key named by embedding.api_key_env, or switch embedding.provider")
	}

	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	openaiCfg.BaseURL = cfg.BaseURL
	httpClient := &http.Client{Timeout: cfg.Timeout}
	openaiCfg.HTTPClient = httpClient

	return &JinaEmbedder{
		client:     openai.NewClientWithConfig(openaiCfg),
		httpClient: httpClient,
		config:     cfg,
		breaker:    errors.NewCircuitBreaker("jina"),
	}, nil
}

// Embed generates an embedding for a single text
func (e *JinaEmbedder) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, task)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *JinaEmbedder) EmbedBatch(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// The API rejects empty inputs; those become zero vectors locally
	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.config.Dimensions)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.embedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// embedWithRetry wraps the API call with jittered exponential backoff.
// Each attempt goes through the circuit breaker: while the circuit is
// open the attempts fail immediately, so a dead endpoint costs backoff
// waits instead of stacked HTTP timeouts.
func (e *JinaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := errors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	return errors.RetryWithResult(ctx, retryCfg, func() (out [][]float32, err error) {
		cbErr := e.breaker.Execute(func() error {
			out, err = e.doEmbed(ctx, texts)
			return err
		})
		if err == nil && cbErr != nil {
			err = errors.New(errors.ErrCodeNetworkUnavailable, "embedding service circuit open", cbErr)
		}
		return out, err
	})
}

// doEmbed performs a single embeddings request.
func (e *JinaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: e.config.Dimensions,
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errors.New(errors.ErrCodeNetworkUnavailable, "embedding request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)), nil)
	}

	out := make([][]float32, len(resp.Data))
	for i, row := range resp.Data {
		if len(row.Embedding) != e.config.Dimensions {
			return nil, errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.config.Dimensions, len(row.Embedding)), nil).
				WithSuggestion("Check that embedding.dimensions matches a size the model supports")
		}
		out[i] = normalizeVector(row.Embedding)
	}
	return out, nil
}

// Dimensions returns the embedding dimension
func (e *JinaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier
func (e *JinaEmbedder) ModelName() string {
	return e.config.Model
}

// Available probes the endpoint with a single short embedding request.
// It verifies the key and the model, not just TCP reachability.
func (e *JinaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil
}

// Close releases resources
func (e *JinaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.httpClient.CloseIdleConnections()
	return nil
}
