// Package prompt builds the question-answering prompt template.
package prompt

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// DefaultIntro opens every prompt.
const DefaultIntro = "Answer the following question based only on the provided context, if you don't know the answer say so: "

const (
	// ContextVar is filled with the stuffed retrieval documents.
	ContextVar = "context"
	// QuestionVar is filled with the user's question.
	QuestionVar = "question"
)

const contextBlock = `
<context>
{{.context}}
</context>
`

// Build returns the prompt template. The context block is only present when withContext is
// true, so an ungrounded prompt never carries an unfilled placeholder.
func Build(withContext bool, intro string) prompts.PromptTemplate {
	if strings.TrimSpace(intro) == "" {
		intro = DefaultIntro
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n")
	vars := []string{QuestionVar}
	if withContext {
		b.WriteString(contextBlock)
		vars = []string{ContextVar, QuestionVar}
	}
	b.WriteString("\nQuestion: {{.question}}")

	return prompts.NewPromptTemplate(b.String(), vars)
}
