package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/mwiater/ragask/internal/prompt"
	"github.com/mwiater/ragask/internal/providerfactory"
	"github.com/mwiater/ragask/internal/rag"
	"github.com/mwiater/ragask/internal/util"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// ModelFactory builds the language model for a run.
type ModelFactory func(ctx context.Context, cfg *appconfig.Config) (llms.Model, error)

// RetrieverFactory builds the retriever for dir. A nil result means the run is ungrounded.
type RetrieverFactory func(ctx context.Context, cfg *appconfig.Config, dir string) schema.Retriever

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithModelFactory replaces providerfactory.NewModel.
func WithModelFactory(f ModelFactory) Option {
	return func(p *Pipeline) { p.newModel = f }
}

// WithRetrieverFactory replaces rag.AugmentedData.
func WithRetrieverFactory(f RetrieverFactory) Option {
	return func(p *Pipeline) { p.newRetriever = f }
}

// WithStatus receives short progress messages such as "Loading model" and "Thinking".
func WithStatus(f func(string)) Option {
	return func(p *Pipeline) { p.status = f }
}

// WithRenderer styles the answer before it is written.
func WithRenderer(f func(string) string) Option {
	return func(p *Pipeline) { p.render = f }
}

// Pipeline runs one question through prompt, model, retriever and chain.
type Pipeline struct {
	cfg *appconfig.Config
	out io.Writer

	newModel     ModelFactory
	newRetriever RetrieverFactory
	status       func(string)
	render       func(string) string
}

// New returns a Pipeline that writes its answer to out.
func New(cfg *appconfig.Config, out io.Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:          cfg,
		out:          out,
		newModel:     providerfactory.NewModel,
		newRetriever: defaultRetriever,
		status:       func(string) {},
		render:       func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultRetriever(ctx context.Context, cfg *appconfig.Config, dir string) schema.Retriever {
	return rag.AugmentedData(ctx, cfg, dir)
}

// Run answers cfg.Question with the default collaborators and writes the answer to out.
func Run(ctx context.Context, cfg *appconfig.Config, out io.Writer) error {
	_, err := New(cfg, out).Run(ctx)
	return err
}

// Run performs the whole flow. Model construction and chain invocation errors are returned;
// retriever and chain construction failures degrade to an ungrounded answer.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	if p.cfg == nil {
		return Result{}, fmt.Errorf("config is nil")
	}
	cfg := p.cfg

	p.status("Loading model")
	logging.Info("Loading model")
	logging.Info("modelType=%s question=%q", cfg.ModelType, util.TruncateRunes(cfg.Question, 200))

	tmpl := prompt.Build(cfg.HasContext(), prompt.DefaultIntro)

	model, err := p.newModel(ctx, cfg)
	if err != nil {
		logging.Error(err, "Error loading model")
		return Result{}, fmt.Errorf("load model: %w", err)
	}

	var retriever schema.Retriever
	if cfg.HasContext() {
		p.status("Loading augmenting data")
		retriever = p.newRetriever(ctx, cfg, cfg.ContextDirectory)
	}

	chain, err := GetChain(tmpl, model, retriever)
	if err != nil {
		return Result{}, fmt.Errorf("create chain: %w", err)
	}

	p.status("Thinking")
	logging.Info("invoking chain input=%s grounded=%t temperature=%.2f", chain.InputKey(), chain.Grounded(), cfg.Temperature)
	res, err := chain.Invoke(ctx, cfg.Question, chains.WithTemperature(cfg.Temperature))
	if err != nil {
		logging.Error(err, "Error invoking chain")
		return Result{}, err
	}

	answer := strings.TrimSpace(res.Answer)
	if answer == "" {
		answer = rawText(res.Raw)
	}
	fmt.Fprintln(p.out, p.render(answer))

	logging.InfoPayload("result", resultPayload(res))
	return res, nil
}

type sourcePayload struct {
	Source string  `json:"source"`
	Score  float32 `json:"score,omitempty"`
}

type logPayload struct {
	Answer  string          `json:"answer"`
	Sources []sourcePayload `json:"sources,omitempty"`
}

func resultPayload(res Result) logPayload {
	payload := logPayload{Answer: res.Answer}
	for _, doc := range res.Sources {
		payload.Sources = append(payload.Sources, sourcePayload{Source: rag.Source(doc), Score: doc.Score})
	}
	return payload
}

func rawText(raw map[string]any) string {
	if len(raw) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(b)
}
