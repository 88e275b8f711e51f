// internal/providerfactory/factory.go
package providerfactory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/mwiater/ragask/internal/providers/llamacpp"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model type tags accepted by --modelType.
const (
	TypeLlamaCpp  = "llama-cpp"
	TypeOpenAI    = "openAI"
	TypeOpenShift = "Openshift.ai"
	TypeOllama    = "ollama"
)

// openShiftToken is sent to the in-cluster vLLM endpoint, which does not check credentials.
const openShiftToken = "EMPTY"

// ErrUnknownModelType is returned for a --modelType outside the supported set.
var ErrUnknownModelType = errors.New("unknown model type")

// NormalizeType maps a user-supplied tag onto one of the canonical model types.
func NormalizeType(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "llama-cpp", "llamacpp", "llama.cpp":
		return TypeLlamaCpp
	case "openai":
		return TypeOpenAI
	case "openshift.ai", "openshift", "openshiftai":
		return TypeOpenShift
	case "ollama":
		return TypeOllama
	default:
		return strings.TrimSpace(value)
	}
}

// NewModel selects and configures the language model named by cfg.ModelType. For the
// OpenShift AI endpoint it also starts the keep-alive ticker, which stops with ctx.
func NewModel(ctx context.Context, cfg *appconfig.Config) (llms.Model, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	modelType := NormalizeType(cfg.ModelType)

	switch modelType {
	case TypeLlamaCpp:
		root, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		provider, err := llamacpp.New(cfg, root)
		if err != nil {
			return nil, err
		}
		logging.Info("llama.cpp model %s via %s", provider.ModelPath(), cfg.LlamaServerURL)
		return provider, nil

	case TypeOpenAI:
		key, err := appconfig.LoadAPIKey(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts := []openai.Option{
			openai.WithToken(key),
			openai.WithHTTPClient(httpClient),
		}
		if m := strings.TrimSpace(cfg.OpenAIModel); m != "" {
			opts = append(opts, openai.WithModel(m))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create OpenAI client: %w", err)
		}
		logging.Info("OpenAI model ready")
		return model, nil

	case TypeOpenShift:
		model, err := openai.New(
			openai.WithToken(openShiftToken),
			openai.WithModel(cfg.OpenShiftModel),
			openai.WithBaseURL(cfg.OpenShiftURL),
			openai.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("create OpenShift AI client: %w", err)
		}
		logging.Info("OpenShift AI model %s via %s", cfg.OpenShiftModel, cfg.OpenShiftURL)
		StartKeepAlive(ctx, cfg.KeepAliveInterval(), func() {
			logging.Status("keep-alive")
		})
		return model, nil

	case TypeOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.OllamaModel),
			ollama.WithServerURL(cfg.OllamaURL),
			ollama.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("create Ollama client: %w", err)
		}
		logging.Info("Ollama model %s via %s", cfg.OllamaModel, cfg.OllamaURL)
		return model, nil

	default:
		return nil, fmt.Errorf("%w %q (expected %s, %s, %s or %s)", ErrUnknownModelType, cfg.ModelType, TypeLlamaCpp, TypeOpenAI, TypeOpenShift, TypeOllama)
	}
}
