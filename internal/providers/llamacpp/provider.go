// internal/providers/llamacpp/provider.go
// Package llamacpp provides a langchaingo llms.Model backed by a local GGUF model file served
// through llama.cpp's OpenAI-compatible HTTP API.
package llamacpp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/tmc/langchaingo/llms"
)

// ErrModelFileNotFound is returned when the configured GGUF file is not on disk.
var ErrModelFileNotFound = errors.New("llama.cpp: model file not found")

// Provider implements llms.Model against a llama.cpp server.
type Provider struct {
	client    *http.Client
	timeout   time.Duration
	baseURL   string
	model     string
	modelPath string
	debug     bool

	// temperature is sent when a call leaves CallOptions.Temperature at zero, so a
	// configured 0 reaches the server instead of its own default.
	temperature float64
}

var _ llms.Model = (*Provider)(nil)

// New resolves the model file under root and returns a Provider for it. The file must exist.
func New(cfg *appconfig.Config, root string) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llama.cpp: nil config")
	}
	modelPath := cfg.ModelPath(root)
	info, err := os.Stat(modelPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelFileNotFound, modelPath)
		}
		return nil, fmt.Errorf("llama.cpp: stat model file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrModelFileNotFound, modelPath)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.LlamaServerURL), "/")
	if baseURL == "" {
		baseURL = appconfig.DefaultLlamaServerURL
	}

	timeout := cfg.RequestTimeout()
	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		timeout:     timeout,
		baseURL:     baseURL,
		model:       filepath.Base(modelPath),
		modelPath:   modelPath,
		debug:       cfg.Debug,
		temperature: cfg.Temperature,
	}, nil
}

// ModelPath is the resolved GGUF file.
func (p *Provider) ModelPath() string {
	return p.modelPath
}

// Model is the name the server knows the model file by.
func (p *Provider) Model() string {
	return p.model
}

type modelsResponse struct {
	Data   []llamaModel `json:"data"`
	Models []llamaModel `json:"models"`
}

type llamaModel struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Model  string      `json:"model"`
	Path   string      `json:"path"`
	Status statusField `json:"status"`
}

// Call implements the single-prompt form of llms.Model.
func (p *Provider) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p, prompt, options...)
}

// GenerateContent sends messages to /v1/chat/completions. When a streaming function is set the
// response is consumed as server-sent events and each delta is forwarded to it.
func (p *Provider) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	model := p.model
	if strings.TrimSpace(opts.Model) != "" {
		model = opts.Model
	}

	if err := p.EnsureModelReady(ctx, model); err != nil {
		return nil, err
	}

	streaming := opts.StreamingFunc != nil
	payload := map[string]any{
		"model":    model,
		"messages": toOpenAIMessages(messages),
		"stream":   streaming,
	}
	payload["temperature"] = p.temperature
	applyCallOptions(payload, opts)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	logging.LogRequest("RAGASK->LLM", p.baseURL, model, "", body)

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		logging.LogRequest("LLM->RAGASK", p.baseURL, model, "", raw)
		return nil, fmt.Errorf("llama.cpp: /v1/chat/completions returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	if streaming {
		return p.handleStreaming(ctx, resp, model, opts.StreamingFunc)
	}
	return p.handleNonStreaming(resp, model)
}

// EnsureModelReady asks the server router to load model. Servers without router endpoints load
// their model at startup, so a 404 or 405 is accepted.
func (p *Provider) EnsureModelReady(ctx context.Context, model string) error {
	payload := map[string]any{"model": model}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := p.baseURL + "/models/load"
	logging.LogRequest("RAGASK->LLM", p.baseURL, model, "", body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logging.LogRequest("LLM->RAGASK", p.baseURL, model, "", respBody)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	if resp.StatusCode >= 400 {
		if isAlreadyLoadedError(resp.StatusCode, respBody) {
			return p.waitForModelLoaded(ctx, model)
		}
		return fmt.Errorf("llama.cpp: /models/load returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return p.waitForModelLoaded(ctx, model)
}

func (p *Provider) handleNonStreaming(resp *http.Response, model string) (*llms.ContentResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logging.LogRequest("LLM->RAGASK", p.baseURL, model, "", body)

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llama.cpp: chat response contained no choices")
	}

	choice := parsed.Choices[0]
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        choice.Message.Content,
			StopReason:     choice.FinishReason,
			GenerationInfo: parsed.Usage.generationInfo(),
		}},
	}, nil
}

func (p *Provider) handleStreaming(ctx context.Context, resp *http.Response, model string, fn func(ctx context.Context, chunk []byte) error) (*llms.ContentResponse, error) {
	reader := bufio.NewReader(resp.Body)
	var content strings.Builder
	var stopReason string
	var usage usageField
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		if p.debug {
			logging.LogRequest("LLM->RAGASK", p.baseURL, model, "", data)
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, err
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			stopReason = choice.FinishReason
		}
		delta := choice.Delta.Content
		if delta == "" && choice.Message.Content != "" {
			delta = choice.Message.Content
		}
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if err := fn(ctx, []byte(delta)); err != nil {
			return nil, err
		}
	}
	logging.LogRequest("LLM->RAGASK", p.baseURL, model, "", content.String())

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        content.String(),
			StopReason:     stopReason,
			GenerationInfo: usage.generationInfo(),
		}},
	}, nil
}

type usageField struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u usageField) generationInfo() map[string]any {
	return map[string]any{
		"PromptTokens":     u.PromptTokens,
		"CompletionTokens": u.CompletionTokens,
		"TotalTokens":      u.TotalTokens,
	}
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage usageField `json:"usage"`
}

type chatStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usageField `json:"usage"`
}

func parseModels(body []byte) ([]llamaModel, error) {
	var wrapped modelsResponse
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if len(wrapped.Models) > 0 {
			return wrapped.Models, nil
		}
		if len(wrapped.Data) > 0 {
			return wrapped.Data, nil
		}
	}

	var direct []llamaModel
	if err := json.Unmarshal(body, &direct); err == nil && len(direct) > 0 {
		return direct, nil
	}

	var names struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal(body, &names); err == nil && len(names.Models) > 0 {
		out := make([]llamaModel, 0, len(names.Models))
		for _, name := range names.Models {
			out = append(out, llamaModel{Name: name})
		}
		return out, nil
	}

	return nil, fmt.Errorf("llama.cpp: unrecognized /models response")
}

func modelDisplayName(model llamaModel) string {
	if strings.TrimSpace(model.ID) != "" {
		return strings.TrimSpace(model.ID)
	}
	if strings.TrimSpace(model.Name) != "" {
		return strings.TrimSpace(model.Name)
	}
	if strings.TrimSpace(model.Model) != "" {
		return strings.TrimSpace(model.Model)
	}
	return strings.TrimSpace(model.Path)
}

type statusField struct {
	Value string
}

func (s *statusField) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		s.Value = ""
		return nil
	}
	if trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		s.Value = v
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.Value = obj.Value
	return nil
}

func (p *Provider) fetchModels(ctx context.Context) ([]llamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama.cpp: /models returned %s", resp.Status)
	}

	return parseModels(body)
}

func (p *Provider) waitForModelLoaded(ctx context.Context, model string) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		loaded, err := p.isModelLoaded(ctx, model)
		if err != nil {
			return err
		}
		if loaded {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("llama.cpp: model %s did not load before timeout", model)
		case <-ticker.C:
		}
	}
}

func (p *Provider) isModelLoaded(ctx context.Context, model string) (bool, error) {
	models, err := p.fetchModels(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range models {
		if strings.EqualFold(modelDisplayName(item), model) {
			return strings.EqualFold(strings.TrimSpace(item.Status.Value), "loaded"), nil
		}
	}
	return false, nil
}

func isAlreadyLoadedError(statusCode int, body []byte) bool {
	if statusCode != http.StatusBadRequest {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(string(body)))
	if strings.Contains(text, "already loaded") {
		return true
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.Contains(strings.ToLower(payload.Error.Message), "already loaded") {
			return true
		}
	}
	return false
}

func applyCallOptions(payload map[string]any, opts llms.CallOptions) {
	if opts.Temperature != 0 {
		payload["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if opts.TopK > 0 {
		payload["top_k"] = opts.TopK
	}
	if opts.TopP > 0 {
		payload["top_p"] = opts.TopP
	}
	if opts.Seed != 0 {
		payload["seed"] = opts.Seed
	}
	if opts.RepetitionPenalty != 0 {
		payload["repeat_penalty"] = opts.RepetitionPenalty
	}
	if opts.PresencePenalty != 0 {
		payload["presence_penalty"] = opts.PresencePenalty
	}
	if opts.FrequencyPenalty != 0 {
		payload["frequency_penalty"] = opts.FrequencyPenalty
	}
	if len(opts.StopWords) > 0 {
		payload["stop"] = opts.StopWords
	}
	if opts.JSONMode {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toOpenAIMessages(messages []llms.MessageContent) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		var text strings.Builder
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				text.WriteString(tc.Text)
			}
		}
		content := strings.TrimSpace(text.String())
		role := openAIRole(msg.Role)
		if role != "assistant" && content == "" {
			continue
		}
		out = append(out, openAIMessage{Role: role, Content: content})
	}
	return out
}

func openAIRole(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeSystem:
		return "system"
	case llms.ChatMessageTypeAI:
		return "assistant"
	case llms.ChatMessageTypeTool:
		return "tool"
	default:
		return "user"
	}
}
