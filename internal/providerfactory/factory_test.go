// internal/providerfactory/factory_test.go
package providerfactory

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/logging"
	"github.com/mwiater/ragask/internal/providers/llamacpp"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

func TestNormalizeType(t *testing.T) {
	tests := map[string]string{
		"":               TypeLlamaCpp,
		"llama-cpp":      TypeLlamaCpp,
		"llamacpp":       TypeLlamaCpp,
		" LLAMA.CPP ":    TypeLlamaCpp,
		"openAI":         TypeOpenAI,
		"OPENAI":         TypeOpenAI,
		"Openshift.ai":   TypeOpenShift,
		"openshift":      TypeOpenShift,
		"Ollama":         TypeOllama,
		" custom-model ": "custom-model",
	}

	for input, want := range tests {
		if got := NormalizeType(input); got != want {
			t.Fatalf("NormalizeType(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewModelErrorsOnNilConfig(t *testing.T) {
	if _, err := NewModel(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewModelRejectsUnknownType(t *testing.T) {
	cfg := appconfig.Default()
	cfg.ModelType = "gpt-neo"

	_, err := NewModel(context.Background(), &cfg)
	if !errors.Is(err, ErrUnknownModelType) {
		t.Fatalf("expected ErrUnknownModelType, got %v", err)
	}
}

func TestNewModelLlamaCpp(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.gguf"), []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	cfg := appconfig.Default()
	cfg.ModelDirectory = dir
	cfg.LlamaModel = "tiny.gguf"

	model, err := NewModel(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewModel returned error: %v", err)
	}
	if _, ok := model.(*llamacpp.Provider); !ok {
		t.Fatalf("expected llamacpp.Provider, got %T", model)
	}
}

func TestNewModelLlamaCppMissingFile(t *testing.T) {
	cfg := appconfig.Default()
	cfg.ModelDirectory = t.TempDir()

	_, err := NewModel(context.Background(), &cfg)
	if !errors.Is(err, llamacpp.ErrModelFileNotFound) {
		t.Fatalf("expected ErrModelFileNotFound, got %v", err)
	}
}

func TestNewModelOpenAI(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.json")
	if err := os.WriteFile(keyPath, []byte(`{"apiKey":"sk-test"}`), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	cfg := appconfig.Default()
	cfg.ModelType = "openAI"
	cfg.KeyFile = keyPath

	model, err := NewModel(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewModel returned error: %v", err)
	}
	if _, ok := model.(*openai.LLM); !ok {
		t.Fatalf("expected openai.LLM, got %T", model)
	}
}

func TestNewModelOpenAIMissingKey(t *testing.T) {
	t.Setenv(appconfig.APIKeyEnv, "")
	cfg := appconfig.Default()
	cfg.ModelType = "openAI"
	cfg.KeyFile = filepath.Join(t.TempDir(), "absent.json")

	_, err := NewModel(context.Background(), &cfg)
	if !errors.Is(err, appconfig.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewModelOpenShift(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := appconfig.Default()
	cfg.ModelType = "Openshift.ai"

	model, err := NewModel(ctx, &cfg)
	if err != nil {
		t.Fatalf("NewModel returned error: %v", err)
	}
	if _, ok := model.(*openai.LLM); !ok {
		t.Fatalf("expected openai.LLM, got %T", model)
	}
}

func TestNewModelOllama(t *testing.T) {
	cfg := appconfig.Default()
	cfg.ModelType = "ollama"

	model, err := NewModel(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewModel returned error: %v", err)
	}
	if _, ok := model.(*ollama.LLM); !ok {
		t.Fatalf("expected ollama.LLM, got %T", model)
	}
}

func initKeepAliveLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragask.log")
	if err := logging.Init(path); err != nil {
		t.Fatalf("init log: %v", err)
	}
	t.Cleanup(func() { _ = logging.Close() })
	t.Cleanup(logging.SetConsole(io.Discard))
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestNewModelStartsKeepAliveOnlyForOpenShift(t *testing.T) {
	cfg := appconfig.Default()
	cfg.KeepAliveSeconds = 1

	// ollama first so no OpenShift ticker can still be running.
	logPath := initKeepAliveLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cfg.ModelType = "ollama"
	if _, err := NewModel(ctx, &cfg); err != nil {
		t.Fatalf("NewModel(ollama) returned error: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	cancel()
	if strings.Contains(readLog(t, logPath), "keep-alive") {
		t.Fatalf("ollama should not start keep-alive:\n%s", readLog(t, logPath))
	}

	logPath = initKeepAliveLog(t)
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	cfg.ModelType = "Openshift.ai"
	if _, err := NewModel(ctx, &cfg); err != nil {
		t.Fatalf("NewModel(Openshift.ai) returned error: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(readLog(t, logPath), "[INFO] keep-alive") {
		if time.Now().After(deadline) {
			t.Fatalf("expected keep-alive line for Openshift.ai:\n%s", readLog(t, logPath))
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestStartKeepAliveTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int32
	done := StartKeepAlive(ctx, 5*time.Millisecond, func() { ticks.Add(1) })

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least two ticks, got %d", ticks.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive did not stop after cancel")
	}

	stopped := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != stopped {
		t.Fatalf("expected no ticks after stop, got %d more", ticks.Load()-stopped)
	}
}

func TestStartKeepAliveDisabled(t *testing.T) {
	done := StartKeepAlive(context.Background(), 0, func() { t.Fatal("tick should not run") })
	select {
	case <-done:
	default:
		t.Fatal("expected closed channel for disabled keep-alive")
	}
}
