package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/mwiater/ragask/internal/prompt"
	"github.com/mwiater/ragask/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// fakeModel records every prompt it is asked to complete.
type fakeModel struct {
	mu      sync.Mutex
	prompts []string
	temps   []float64
	reply   string
	err     error
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				b.WriteString(text.Text)
			}
		}
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, b.String())
	m.temps = append(m.temps, opts.Temperature)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, p string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, p, options...)
}

func (m *fakeModel) lastPrompt(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.prompts, "model was never called")
	return m.prompts[len(m.prompts)-1]
}

type fakeRetriever struct {
	docs    []schema.Document
	err     error
	queries []string
}

func (r *fakeRetriever) GetRelevantDocuments(_ context.Context, query string) ([]schema.Document, error) {
	r.queries = append(r.queries, query)
	return r.docs, r.err
}

func corpusRetriever() *fakeRetriever {
	return &fakeRetriever{docs: []schema.Document{
		{PageContent: "Use a slim base image.", Score: 0.9, Metadata: map[string]any{rag.SourceKey: "images.md"}},
		{PageContent: "Run as a non-root user.", Score: 0.7, Metadata: map[string]any{rag.SourceKey: "security.md"}},
	}}
}

func initTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragask.log")
	require.NoError(t, logging.Init(path))
	t.Cleanup(func() { _ = logging.Close() })
	return path
}

func captureConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(logging.SetConsole(&buf))
	return &buf
}

func TestBuildChainWithoutRetriever(t *testing.T) {
	model := &fakeModel{reply: "Use multi-stage builds."}

	chain, err := BuildChain(prompt.Build(false, prompt.DefaultIntro), model, nil)
	require.NoError(t, err)
	assert.False(t, chain.Grounded())
	assert.Equal(t, "question", chain.InputKey())

	res, err := chain.Invoke(context.Background(), "How do I build a container?")
	require.NoError(t, err)
	assert.Equal(t, "Use multi-stage builds.", res.Answer)
	assert.Empty(t, res.Sources)

	sent := model.lastPrompt(t)
	assert.True(t, strings.HasPrefix(sent, prompt.DefaultIntro))
	assert.NotContains(t, sent, "<context>")
	assert.True(t, strings.HasSuffix(sent, "Question: How do I build a container?"))
}

func TestBuildChainWithRetriever(t *testing.T) {
	model := &fakeModel{reply: "Slim image, non-root user."}
	retriever := corpusRetriever()

	chain, err := BuildChain(prompt.Build(true, prompt.DefaultIntro), model, retriever)
	require.NoError(t, err)
	assert.True(t, chain.Grounded())
	assert.Equal(t, "query", chain.InputKey())

	res, err := chain.Invoke(context.Background(), "How should I run node?")
	require.NoError(t, err)
	assert.Equal(t, "Slim image, non-root user.", res.Answer)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "images.md", rag.Source(res.Sources[0]))
	assert.Equal(t, []string{"How should I run node?"}, retriever.queries)

	sent := model.lastPrompt(t)
	assert.Contains(t, sent, "<context>\nUse a slim base image.\n\nRun as a non-root user.\n</context>")
	assert.Contains(t, sent, "Question: How should I run node?")
}

func TestBuildChainPassesTemperature(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	chain, err := BuildChain(prompt.Build(false, prompt.DefaultIntro), model, nil)
	require.NoError(t, err)

	_, err = chain.Invoke(context.Background(), "Why?", chains.WithTemperature(0.3))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, model.temps[0], 1e-9)
}

func TestBuildChainRejectsMismatchedPrompt(t *testing.T) {
	model := &fakeModel{}

	_, err := BuildChain(prompt.Build(true, prompt.DefaultIntro), model, nil)
	require.Error(t, err)

	_, err = BuildChain(prompt.Build(false, prompt.DefaultIntro), model, corpusRetriever())
	require.Error(t, err)

	_, err = BuildChain(prompt.Build(false, prompt.DefaultIntro), nil, nil)
	require.Error(t, err)
}

func TestBuildChainPropagatesRetrieverError(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("index unavailable")}
	chain, err := BuildChain(prompt.Build(true, prompt.DefaultIntro), &fakeModel{}, retriever)
	require.NoError(t, err)

	_, err = chain.Invoke(context.Background(), "Why?")
	require.ErrorContains(t, err, "index unavailable")
}

func TestGetChainDropsContextWithoutRetriever(t *testing.T) {
	model := &fakeModel{reply: "ungrounded"}

	chain, err := GetChain(prompt.Build(true, prompt.DefaultIntro), model, nil)
	require.NoError(t, err)
	assert.False(t, chain.Grounded())

	_, err = chain.Invoke(context.Background(), "Why?")
	require.NoError(t, err)
	sent := model.lastPrompt(t)
	assert.NotContains(t, sent, "<context>")
	assert.NotContains(t, sent, "{{")
}

func TestGetChainFallsBackAndLogs(t *testing.T) {
	logPath := initTestLog(t)
	console := captureConsole(t)
	model := &fakeModel{reply: "fallback"}

	chain, err := GetChain(prompt.Build(false, prompt.DefaultIntro), model, corpusRetriever())
	require.NoError(t, err)
	assert.False(t, chain.Grounded())

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[ERROR] Error creating chain")
	assert.Contains(t, console.String(), "Error creating chain\n")
}

func TestGetChainFailsWithoutModel(t *testing.T) {
	_, err := GetChain(prompt.Build(false, prompt.DefaultIntro), nil, nil)
	require.Error(t, err)
}

func newTestPipeline(cfg *appconfig.Config, out *bytes.Buffer, model *fakeModel, retriever *fakeRetriever, statuses *[]string) *Pipeline {
	return New(cfg, out,
		WithModelFactory(func(context.Context, *appconfig.Config) (llms.Model, error) { return model, nil }),
		WithRetrieverFactory(func(context.Context, *appconfig.Config, string) schema.Retriever {
			if retriever == nil {
				return nil
			}
			return retriever
		}),
		WithStatus(func(s string) { *statuses = append(*statuses, s) }),
	)
}

func TestPipelineRunUngrounded(t *testing.T) {
	logPath := initTestLog(t)
	cfg := appconfig.Default()
	cfg.Question = "How do I cache npm installs?"
	cfg.Temperature = 0.2

	var out bytes.Buffer
	var statuses []string
	model := &fakeModel{reply: "Mount the cache."}

	res, err := newTestPipeline(&cfg, &out, model, nil, &statuses).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Mount the cache.\n", out.String())
	assert.Equal(t, []string{"Loading model", "Thinking"}, statuses)
	assert.InDelta(t, 0.2, model.temps[0], 1e-9)
	assert.Contains(t, model.lastPrompt(t), "Question: How do I cache npm installs?")
	assert.Empty(t, res.Sources)

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[INFO] Loading model")
	assert.Contains(t, string(raw), `result {"answer":"Mount the cache."}`)
}

func TestPipelineRunGrounded(t *testing.T) {
	logPath := initTestLog(t)
	cfg := appconfig.Default()
	cfg.ContextDirectory = "docs"

	var out bytes.Buffer
	var statuses []string
	model := &fakeModel{reply: "Grounded answer"}

	res, err := newTestPipeline(&cfg, &out, model, corpusRetriever(), &statuses).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "Grounded answer\n", out.String())
	assert.Contains(t, model.lastPrompt(t), "<context>\nUse a slim base image.")
	assert.Equal(t, []string{"Loading model", "Loading augmenting data", "Thinking"}, statuses)

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"source":"images.md"`)
	assert.Contains(t, string(raw), `"source":"security.md"`)
}

func TestPipelineRunDegradesWithoutRetriever(t *testing.T) {
	initTestLog(t)
	cfg := appconfig.Default()
	cfg.ContextDirectory = "missing"

	var out bytes.Buffer
	var statuses []string
	model := &fakeModel{reply: "Best effort"}

	_, err := newTestPipeline(&cfg, &out, model, nil, &statuses).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Best effort\n", out.String())
	assert.NotContains(t, model.lastPrompt(t), "<context>")
}

func TestPipelineRunReportsUnusableCorpusOnConsole(t *testing.T) {
	initTestLog(t)
	console := captureConsole(t)
	cfg := appconfig.Default()
	cfg.ContextDirectory = t.TempDir()

	var out bytes.Buffer
	model := &fakeModel{reply: "Best effort"}
	p := New(&cfg, &out, WithModelFactory(func(context.Context, *appconfig.Config) (llms.Model, error) {
		return model, nil
	}))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Best effort\n", out.String())
	assert.Contains(t, console.String(), "Loading and processing augmenting data from "+cfg.ContextDirectory)
	assert.Contains(t, console.String(), "Error loading augmenting data\n")
	assert.NotContains(t, model.lastPrompt(t), "<context>")
}

func TestPipelineRunModelError(t *testing.T) {
	initTestLog(t)
	cfg := appconfig.Default()
	var out bytes.Buffer

	p := New(&cfg, &out, WithModelFactory(func(context.Context, *appconfig.Config) (llms.Model, error) {
		return nil, errors.New("model file not found")
	}))
	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "model file not found")
	assert.Empty(t, out.String())
}

func TestPipelineRunInvokeError(t *testing.T) {
	initTestLog(t)
	cfg := appconfig.Default()
	var out bytes.Buffer
	var statuses []string
	model := &fakeModel{err: errors.New("server overloaded")}

	_, err := newTestPipeline(&cfg, &out, model, nil, &statuses).Run(context.Background())
	require.ErrorContains(t, err, "server overloaded")
}

func TestPipelineRunRendersAnswer(t *testing.T) {
	initTestLog(t)
	cfg := appconfig.Default()
	var out bytes.Buffer
	model := &fakeModel{reply: "plain"}

	p := New(&cfg, &out,
		WithModelFactory(func(context.Context, *appconfig.Config) (llms.Model, error) { return model, nil }),
		WithRenderer(strings.ToUpper),
	)
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PLAIN\n", out.String())
}

func TestPipelineRunEmptyAnswerPrintsRaw(t *testing.T) {
	initTestLog(t)
	cfg := appconfig.Default()
	var out bytes.Buffer
	var statuses []string
	model := &fakeModel{reply: ""}

	_, err := newTestPipeline(&cfg, &out, model, nil, &statuses).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"text": ""`)
}

func TestRunRequiresConfig(t *testing.T) {
	err := Run(context.Background(), nil, &bytes.Buffer{})
	require.Error(t, err)
}
