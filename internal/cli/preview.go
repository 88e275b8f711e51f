// internal/cli/preview.go
package ragask

import (
	"fmt"
	"strings"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/mwiater/ragask/internal/rag"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"
)

// newPreviewEmbedder is swapped out in tests.
var newPreviewEmbedder = func(cfg *appconfig.Config) (embeddings.Embedder, error) {
	return rag.NewEmbedder(cfg)
}

// previewCmd shows which chunks the retriever would stuff into the prompt for a query,
// without calling a model.
var previewCmd = &cobra.Command{
	Use:   "preview <query>",
	Short: "Preview retrieval for a query against --contextDirectory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("query is required")
		}

		cfg := getConfig()
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		if !cfg.HasContext() {
			return fmt.Errorf("--contextDirectory is required for preview")
		}

		out := cmd.OutOrStdout()
		status := func(format string, args ...any) {
			msg := fmt.Sprintf(format, args...)
			logging.Info("%s", msg)
			fmt.Fprintln(out, msg)
		}

		status("[RAG] Preview query: %s", query)
		status("[RAG] corpus: %s", cfg.ContextDirectory)
		status("[RAG] embedding: %s (%s)", cfg.EmbeddingModel, cfg.EmbeddingType)
		status("[RAG] chunk size: %d, overlap: %d", cfg.ChunkSizeOrDefault(), cfg.ChunkOverlapOrDefault())
		status("[RAG] topK: %d", cfg.TopKOrDefault())

		embedder, err := newPreviewEmbedder(cfg)
		if err != nil {
			return err
		}
		retriever, err := rag.BuildRetriever(cmd.Context(), cfg, cfg.ContextDirectory, rag.WithEmbedder(embedder))
		if err != nil {
			return err
		}
		docs, err := retriever.GetRelevantDocuments(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}

		maxTokens, _ := cmd.Flags().GetInt("maxTokens")
		text, sources := rag.FormatPreview(docs, maxTokens)
		status("[RAG] chunks: %d", len(docs))
		status("[RAG] source_coverage: %d", sources)
		if text != "" {
			fmt.Fprintln(out, text)
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().Int("maxTokens", 80, "words shown per chunk (0 shows the whole chunk)")
	rootCmd.AddCommand(previewCmd)
}
