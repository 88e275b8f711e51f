package rag

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"
)

// SourceKey is the document metadata key holding the file path relative to the corpus root.
const SourceKey = "source"

// markdownExtensions are the corpus file types the retriever indexes.
var markdownExtensions = []string{".md"}

// LoadDocuments reads every Markdown file under root, one document per file.
func LoadDocuments(ctx context.Context, root string, exclude []string) ([]schema.Document, error) {
	files, err := discoverCorpusFiles(root, markdownExtensions, exclude)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoDocuments, root)
	}

	docs := make([]schema.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range files {
		g.Go(func() error {
			doc, err := loadFile(gctx, root, path)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := docs[:0]
	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) != "" {
			out = append(out, doc)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w under %s: all files are empty", ErrNoDocuments, root)
	}
	return out, nil
}

// SplitDocuments chunks docs with the Markdown splitter. Chunks keep their source metadata.
func SplitDocuments(docs []schema.Document, chunkSize, chunkOverlap int) ([]schema.Document, error) {
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	chunks, err := textsplitter.SplitDocuments(splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("split documents: %w", err)
	}
	return chunks, nil
}

func loadFile(ctx context.Context, root, path string) (schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return schema.Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	loaded, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return schema.Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	if len(loaded) == 0 {
		return schema.Document{}, nil
	}

	doc := loaded[0]
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	doc.Metadata[SourceKey] = filepath.ToSlash(rel)
	return doc, nil
}

func discoverCorpusFiles(root string, allowed []string, exclude []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	allowedMap := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		allowedMap[strings.ToLower(ext)] = struct{}{}
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if shouldExclude(path, exclude) && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if shouldExclude(path, exclude) {
			return nil
		}

		if len(allowedMap) > 0 {
			ext := strings.ToLower(filepath.Ext(path))
			if _, ok := allowedMap[ext]; !ok {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func shouldExclude(path string, patterns []string) bool {
	normalized := filepath.ToSlash(path)
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		pattern = filepath.ToSlash(pattern)
		if strings.Contains(pattern, "**") {
			trimmed := strings.ReplaceAll(pattern, "**", "")
			if trimmed != "" && strings.Contains(normalized, trimmed) {
				return true
			}
		}
		if ok, _ := filepath.Match(pattern, normalized); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(normalized)); ok {
			return true
		}
	}
	return false
}
