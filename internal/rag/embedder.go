package rag

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedding backends accepted by embeddingType.
const (
	EmbeddingOllama = "ollama"
	EmbeddingOpenAI = "openai"
)

// ErrUnknownEmbeddingType is returned for an embeddingType outside the supported set.
var ErrUnknownEmbeddingType = errors.New("unknown embedding type")

// NewEmbedder builds the embedder named by cfg.EmbeddingType.
func NewEmbedder(cfg *appconfig.Config) (embeddings.Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	model := strings.TrimSpace(cfg.EmbeddingModel)

	switch strings.ToLower(strings.TrimSpace(cfg.EmbeddingType)) {
	case "", EmbeddingOllama:
		if model == "" {
			model = appconfig.DefaultEmbeddingModel
		}
		client, err := ollama.New(
			ollama.WithModel(model),
			ollama.WithServerURL(cfg.OllamaURL),
			ollama.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("create Ollama embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	case EmbeddingOpenAI:
		key, err := appconfig.LoadAPIKey(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts := []openai.Option{
			openai.WithToken(key),
			openai.WithHTTPClient(httpClient),
		}
		// The default embedding model only exists on Ollama.
		if model != "" && model != appconfig.DefaultEmbeddingModel {
			opts = append(opts, openai.WithEmbeddingModel(model))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create OpenAI embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	default:
		return nil, fmt.Errorf("%w %q (expected %s or %s)", ErrUnknownEmbeddingType, cfg.EmbeddingType, EmbeddingOllama, EmbeddingOpenAI)
	}
}
