package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrNoEmbedder is returned when neither the store nor the call options supply an embedder.
var ErrNoEmbedder = errors.New("rag: no embedder configured")

// entry is a stored chunk and its embedding.
type entry struct {
	id        string
	doc       schema.Document
	embedding []float32
	norm      float64
}

// MemoryStore is an in-memory vectorstores.VectorStore ranked by cosine similarity.
type MemoryStore struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries []entry
}

var _ vectorstores.VectorStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store that embeds with embedder.
func NewMemoryStore(embedder embeddings.Embedder) *MemoryStore {
	return &MemoryStore{embedder: embedder}
}

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// AddDocuments embeds docs and stores them, returning their ids.
func (s *MemoryStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.options(options)
	embedder := s.embedderFor(opts)
	if embedder == nil {
		return nil, ErrNoEmbedder
	}

	if opts.Deduplicater != nil {
		kept := docs[:0:0]
		for _, doc := range docs {
			if !opts.Deduplicater(ctx, doc) {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id := strconv.Itoa(len(s.entries))
		s.entries = append(s.entries, entry{
			id:        id,
			doc:       doc,
			embedding: vectors[i],
			norm:      vectorNorm(vectors[i]),
		})
		ids[i] = id
	}
	return ids, nil
}

// SimilaritySearch embeds query and returns up to numDocuments chunks, best first. Each
// returned document carries its cosine score.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := s.options(options)
	if opts.ScoreThreshold < 0 || opts.ScoreThreshold > 1 {
		return nil, fmt.Errorf("score threshold must be between 0 and 1, got %v", opts.ScoreThreshold)
	}
	embedder := s.embedderFor(opts)
	if embedder == nil {
		return nil, ErrNoEmbedder
	}

	queryVec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	scored := scoreEntries(s.entries, queryVec)
	s.mu.RUnlock()

	if numDocuments <= 0 || numDocuments > len(scored) {
		numDocuments = len(scored)
	}
	out := make([]schema.Document, 0, numDocuments)
	for _, c := range scored {
		if len(out) == numDocuments {
			break
		}
		if opts.ScoreThreshold > 0 && c.Score < float64(opts.ScoreThreshold) {
			break
		}
		doc := c.Entry.doc
		doc.Score = float32(c.Score)
		out = append(out, doc)
	}
	return out, nil
}

func (s *MemoryStore) options(options []vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func (s *MemoryStore) embedderFor(opts vectorstores.Options) embeddings.Embedder {
	if opts.Embedder != nil {
		return opts.Embedder
	}
	return s.embedder
}

// scoredEntry is a stored chunk plus its similarity to the query.
type scoredEntry struct {
	Entry entry
	Score float64
}

func scoreEntries(entries []entry, queryVec []float32) []scoredEntry {
	chunks := make([]scoredEntry, 0, len(entries))
	queryNorm := vectorNorm(queryVec)
	for _, e := range entries {
		if len(e.embedding) != len(queryVec) {
			continue
		}
		chunks = append(chunks, scoredEntry{
			Entry: e,
			Score: cosineSimilarity(queryVec, e.embedding, queryNorm, e.norm),
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})

	return chunks
}

func cosineSimilarity(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float32) float64 {
	sum := 0.0
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}
