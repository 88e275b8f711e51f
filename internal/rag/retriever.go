package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrNoDocuments is returned when the context directory holds no usable Markdown files.
var ErrNoDocuments = errors.New("no markdown documents found")

// Option adjusts how a retriever is built.
type Option func(*builder)

type builder struct {
	embedder embeddings.Embedder
}

// WithEmbedder replaces the embedder that would otherwise be built from the config.
func WithEmbedder(e embeddings.Embedder) Option {
	return func(b *builder) {
		b.embedder = e
	}
}

// BuildRetriever indexes the Markdown files under dir into a MemoryStore and returns a top-k
// retriever over it. An empty dir yields a nil retriever and no error.
func BuildRetriever(ctx context.Context, cfg *appconfig.Config, dir string, opts ...Option) (schema.Retriever, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	b := builder{}
	for _, opt := range opts {
		opt(&b)
	}
	if b.embedder == nil {
		e, err := NewEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		b.embedder = e
	}

	docs, err := LoadDocuments(ctx, dir, cfg.ExcludeGlobs)
	if err != nil {
		return nil, err
	}
	chunks, err := SplitDocuments(docs, cfg.ChunkSizeOrDefault(), cfg.ChunkOverlapOrDefault())
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w under %s: no chunks produced", ErrNoDocuments, dir)
	}

	store := NewMemoryStore(b.embedder)
	if _, err := store.AddDocuments(ctx, chunks); err != nil {
		return nil, err
	}
	logging.Info("indexed %d chunks from %d documents", store.Len(), len(docs))

	return vectorstores.ToRetriever(store, cfg.TopKOrDefault()), nil
}

// AugmentedData builds the retriever for dir, reporting progress to the log and console. Any failure is logged and
// yields nil so the run can continue without grounding.
func AugmentedData(ctx context.Context, cfg *appconfig.Config, dir string, opts ...Option) schema.Retriever {
	if strings.TrimSpace(dir) == "" {
		return nil
	}

	logging.Status("Loading and processing augmenting data from %s", dir)
	retriever, err := BuildRetriever(ctx, cfg, dir, opts...)
	if err != nil {
		logging.StatusError(err, "Error loading augmenting data")
		return nil
	}
	logging.Status("Augmenting data loaded")
	return retriever
}
