package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"
)

// Source returns the corpus-relative path recorded on doc, or "unknown".
func Source(doc schema.Document) string {
	if doc.Metadata != nil {
		if s, ok := doc.Metadata[SourceKey].(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

// FormatPreview renders retrieved chunks for the preview command and returns the text plus the
// number of distinct sources. maxTokens caps each chunk's excerpt; zero disables the cap.
func FormatPreview(docs []schema.Document, maxTokens int) (string, int) {
	if len(docs) == 0 {
		return "", 0
	}
	if maxTokens < 0 {
		maxTokens = 0
	}

	var b strings.Builder
	sourceSet := make(map[string]struct{})

	for i, doc := range docs {
		text := strings.TrimSpace(doc.PageContent)
		if text == "" {
			continue
		}
		if maxTokens > 0 && estimateTokens(text) > maxTokens {
			text = truncateToTokens(text, maxTokens) + " ..."
		}

		source := Source(doc)
		fmt.Fprintf(&b, "[RAG] chunk %d score=%.6f source=%s\n", i+1, doc.Score, source)
		b.WriteString(text)
		b.WriteString("\n\n")
		sourceSet[source] = struct{}{}
	}

	return strings.TrimRight(b.String(), "\n"), len(sourceSet)
}

func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

func truncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	parts := strings.Fields(text)
	if len(parts) <= maxTokens {
		return text
	}
	return strings.Join(parts[:maxTokens], " ")
}
