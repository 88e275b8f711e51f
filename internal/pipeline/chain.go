// Package pipeline composes the prompt, model and optional retriever into a single
// question-answering run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mwiater/ragask/internal/logging"
	"github.com/mwiater/ragask/internal/prompt"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
)

const (
	questionKey        = "question"
	queryKey           = "query"
	sourceDocumentsKey = "source_documents"
)

// Result is the outcome of one chain invocation.
type Result struct {
	Answer  string
	Sources []schema.Document
	Raw     map[string]any
}

// Chain wraps a langchaingo chain with the input key it expects.
type Chain struct {
	chain     chains.Chain
	inputKey  string
	outputKey string
	grounded  bool
}

// Grounded reports whether the chain retrieves context before answering.
func (c *Chain) Grounded() bool {
	return c.grounded
}

// InputKey is the key the question is passed under.
func (c *Chain) InputKey() string {
	return c.inputKey
}

// Invoke runs the chain once with question.
func (c *Chain) Invoke(ctx context.Context, question string, opts ...chains.ChainCallOption) (Result, error) {
	out, err := chains.Call(ctx, c.chain, map[string]any{c.inputKey: question}, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("invoke chain: %w", err)
	}

	res := Result{Raw: out}
	res.Answer, _ = out[c.outputKey].(string)
	res.Sources, _ = out[sourceDocumentsKey].([]schema.Document)
	return res, nil
}

// BuildChain returns an LLM chain over tmpl when retriever is nil, otherwise a retrieval QA chain
// that stuffs the retrieved documents into the context variable.
func BuildChain(tmpl prompts.PromptTemplate, model llms.Model, retriever schema.Retriever) (*Chain, error) {
	if model == nil {
		return nil, errors.New("model is nil")
	}
	vars := tmpl.GetInputVariables()
	if !slices.Contains(vars, prompt.QuestionVar) {
		return nil, fmt.Errorf("prompt is missing the %q variable", prompt.QuestionVar)
	}

	llmChain := chains.NewLLMChain(model, tmpl)

	if retriever == nil {
		if slices.Contains(vars, prompt.ContextVar) {
			return nil, fmt.Errorf("prompt expects %q but no retriever is available", prompt.ContextVar)
		}
		return &Chain{chain: llmChain, inputKey: questionKey, outputKey: llmChain.OutputKey}, nil
	}

	if !slices.Contains(vars, prompt.ContextVar) {
		return nil, fmt.Errorf("prompt is missing the %q variable", prompt.ContextVar)
	}
	stuff := chains.NewStuffDocuments(llmChain)
	stuff.DocumentVariableName = prompt.ContextVar
	qa := chains.NewRetrievalQA(stuff, retriever)
	qa.ReturnSourceDocuments = true

	return &Chain{chain: qa, inputKey: queryKey, outputKey: llmChain.OutputKey, grounded: true}, nil
}

// GetChain builds the chain for tmpl. When construction fails the error is logged and a
// prompt-plus-model chain without the context block is returned instead.
func GetChain(tmpl prompts.PromptTemplate, model llms.Model, retriever schema.Retriever) (*Chain, error) {
	if retriever == nil && slices.Contains(tmpl.GetInputVariables(), prompt.ContextVar) {
		logging.Info("no retriever available, answering without context")
		tmpl = prompt.Build(false, prompt.DefaultIntro)
	}

	chain, err := BuildChain(tmpl, model, retriever)
	if err == nil {
		return chain, nil
	}
	logging.StatusError(err, "Error creating chain")

	chain, fallbackErr := BuildChain(prompt.Build(false, prompt.DefaultIntro), model, nil)
	if fallbackErr != nil {
		return nil, errors.Join(err, fallbackErr)
	}
	return chain, nil
}
