// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultQuestion is asked when no --question flag is supplied.
	DefaultQuestion = "How do I build a good container for a Node.js application"
	// DefaultModelType selects the local llama.cpp backend.
	DefaultModelType = "llama-cpp"
	// DefaultTemperature is the sampling temperature used when none is configured.
	DefaultTemperature = 0.9
	// DefaultModelDirectory holds local GGUF model files, relative to the working directory.
	DefaultModelDirectory = "models"
	// DefaultLlamaModel is the quantized model file served by llama.cpp.
	DefaultLlamaModel = "mistral-7b-instruct-v0.1.Q5_K_M.gguf"
	// DefaultLlamaServerURL is the llama.cpp server that serves the local model file.
	DefaultLlamaServerURL = "http://127.0.0.1:8080"
	// DefaultOpenShiftModel is the model name exposed by the in-cluster vLLM endpoint.
	DefaultOpenShiftModel = "mistralai/Mistral-7B-Instruct-v0.2"
	// DefaultOpenShiftURL is the in-cluster vLLM OpenAI-compatible endpoint.
	DefaultOpenShiftURL = "http://vllm.llm-hosting.svc.cluster.local:8000/v1"
	// DefaultOllamaURL is the local Ollama server.
	DefaultOllamaURL = "http://127.0.0.1:11434"
	// DefaultOllamaModel is the chat model requested from Ollama.
	DefaultOllamaModel = "mistral"
	// DefaultKeyFile stores the OpenAI API key as {"apiKey": "..."}.
	DefaultKeyFile = "key.json"
	// DefaultEmbeddingType selects the embedding backend for the retriever.
	DefaultEmbeddingType = "ollama"
	// DefaultEmbeddingModel is the embedding model requested from the embedding backend.
	DefaultEmbeddingModel = "nomic-embed-text"
	// DefaultChunkSize is the Markdown splitter chunk size in characters.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the Markdown splitter chunk overlap in characters.
	DefaultChunkOverlap = 50
	// DefaultTopK is the number of chunks handed to the model as context.
	DefaultTopK = 4
	// DefaultLogFile is the append-only log written on every run.
	DefaultLogFile = "node-rag.log"

	// defaultRequestTimeout is the default timeout for HTTP requests.
	defaultRequestTimeout = 600 * time.Second
	// defaultKeepAlive is the interval between keep-alive lines for hosted endpoints.
	defaultKeepAlive = 5 * time.Second
)

// Config represents the merged application configuration (flags > config file > defaults).
type Config struct {
	Question         string   `json:"question" mapstructure:"question"`
	ContextDirectory string   `json:"contextDirectory,omitempty" mapstructure:"contextDirectory"`
	ModelType        string   `json:"modelType" mapstructure:"modelType"`
	Temperature      float64  `json:"temperature" mapstructure:"temperature"`
	ModelDirectory   string   `json:"modelDirectory,omitempty" mapstructure:"modelDirectory"`
	LlamaModel       string   `json:"llamaModel,omitempty" mapstructure:"llamaModel"`
	LlamaServerURL   string   `json:"llamaServerURL,omitempty" mapstructure:"llamaServerURL"`
	OpenAIModel      string   `json:"openAIModel,omitempty" mapstructure:"openAIModel"`
	OpenShiftModel   string   `json:"openshiftModel,omitempty" mapstructure:"openshiftModel"`
	OpenShiftURL     string   `json:"openshiftURL,omitempty" mapstructure:"openshiftURL"`
	OllamaURL        string   `json:"ollamaURL,omitempty" mapstructure:"ollamaURL"`
	OllamaModel      string   `json:"ollamaModel,omitempty" mapstructure:"ollamaModel"`
	KeyFile          string   `json:"keyFile,omitempty" mapstructure:"keyFile"`
	EmbeddingType    string   `json:"embeddingType,omitempty" mapstructure:"embeddingType"`
	EmbeddingModel   string   `json:"embeddingModel,omitempty" mapstructure:"embeddingModel"`
	ChunkSize        int      `json:"chunkSize,omitempty" mapstructure:"chunkSize"`
	ChunkOverlap     int      `json:"chunkOverlap,omitempty" mapstructure:"chunkOverlap"`
	TopK             int      `json:"topK,omitempty" mapstructure:"topK"`
	ExcludeGlobs     []string `json:"excludeGlobs,omitempty" mapstructure:"excludeGlobs"`
	KeepAliveSeconds int      `json:"keepAliveSeconds,omitempty" mapstructure:"keepAliveSeconds"`
	TimeoutSeconds   int      `json:"timeout,omitempty" mapstructure:"timeout"`
	LogFile          string   `json:"logFile,omitempty" mapstructure:"logFile"`
	Debug            bool     `json:"debug" mapstructure:"debug"`
	ConfigPath       string   `json:"-" mapstructure:"-"`
}

// Default returns a Config populated with every default value.
func Default() Config {
	return Config{
		Question:         DefaultQuestion,
		ModelType:        DefaultModelType,
		Temperature:      DefaultTemperature,
		ModelDirectory:   DefaultModelDirectory,
		LlamaModel:       DefaultLlamaModel,
		LlamaServerURL:   DefaultLlamaServerURL,
		OpenShiftModel:   DefaultOpenShiftModel,
		OpenShiftURL:     DefaultOpenShiftURL,
		OllamaURL:        DefaultOllamaURL,
		OllamaModel:      DefaultOllamaModel,
		KeyFile:          DefaultKeyFile,
		EmbeddingType:    DefaultEmbeddingType,
		EmbeddingModel:   DefaultEmbeddingModel,
		ChunkSize:        DefaultChunkSize,
		ChunkOverlap:     DefaultChunkOverlap,
		TopK:             DefaultTopK,
		KeepAliveSeconds: int(defaultKeepAlive.Seconds()),
		TimeoutSeconds:   int(defaultRequestTimeout.Seconds()),
		LogFile:          DefaultLogFile,
	}
}

// SetDefaults registers every default with v so that unset flags and config keys resolve.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("question", d.Question)
	v.SetDefault("modelType", d.ModelType)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("modelDirectory", d.ModelDirectory)
	v.SetDefault("llamaModel", d.LlamaModel)
	v.SetDefault("llamaServerURL", d.LlamaServerURL)
	v.SetDefault("openshiftModel", d.OpenShiftModel)
	v.SetDefault("openshiftURL", d.OpenShiftURL)
	v.SetDefault("ollamaURL", d.OllamaURL)
	v.SetDefault("ollamaModel", d.OllamaModel)
	v.SetDefault("keyFile", d.KeyFile)
	v.SetDefault("embeddingType", d.EmbeddingType)
	v.SetDefault("embeddingModel", d.EmbeddingModel)
	v.SetDefault("chunkSize", d.ChunkSize)
	v.SetDefault("chunkOverlap", d.ChunkOverlap)
	v.SetDefault("topK", d.TopK)
	v.SetDefault("keepAliveSeconds", d.KeepAliveSeconds)
	v.SetDefault("timeout", d.TimeoutSeconds)
	v.SetDefault("logFile", d.LogFile)
}

// FromViper materializes the merged viper state into a validated Config.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature))
	}
	if c.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("chunkSize must be zero (default) or greater, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunkOverlap must be zero or greater, got %d", c.ChunkOverlap))
	}
	if c.ChunkOverlap >= c.ChunkSizeOrDefault() {
		errs = append(errs, fmt.Errorf("chunkOverlap (%d) must be smaller than chunkSize (%d)", c.ChunkOverlap, c.ChunkSizeOrDefault()))
	}
	if c.TopK < 0 {
		errs = append(errs, fmt.Errorf("topK must be zero (default) or greater, got %d", c.TopK))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// HasContext reports whether a context directory was requested.
func (c Config) HasContext() bool {
	return strings.TrimSpace(c.ContextDirectory) != ""
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// KeepAliveInterval returns the interval between keep-alive lines.
func (c Config) KeepAliveInterval() time.Duration {
	if c.KeepAliveSeconds <= 0 {
		return defaultKeepAlive
	}
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return DefaultLogFile
}

// ModelPath resolves the local model file. Relative model directories are joined to root.
func (c Config) ModelPath(root string) string {
	dir := strings.TrimSpace(c.ModelDirectory)
	if dir == "" {
		dir = DefaultModelDirectory
	}
	name := strings.TrimSpace(c.LlamaModel)
	if name == "" {
		name = DefaultLlamaModel
	}
	if filepath.IsAbs(dir) {
		return filepath.Join(dir, name)
	}
	return filepath.Join(root, dir, name)
}

// ChunkSizeOrDefault returns the configured chunk size or the default.
func (c Config) ChunkSizeOrDefault() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

// ChunkOverlapOrDefault returns the configured chunk overlap. Zero is a valid overlap.
func (c Config) ChunkOverlapOrDefault() int {
	if c.ChunkOverlap < 0 {
		return 0
	}
	return c.ChunkOverlap
}

// TopKOrDefault returns the number of chunks to retrieve.
func (c Config) TopKOrDefault() int {
	if c.TopK <= 0 {
		return DefaultTopK
	}
	return c.TopK
}
