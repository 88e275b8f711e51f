package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		d := Default()
		cfg = &d
	}

	fmt.Fprintf(out, "  Question:          %s\n", cfg.Question)
	fmt.Fprintf(out, "  Context Directory: %s\n", orNone(cfg.ContextDirectory))
	fmt.Fprintf(out, "  Model Type:        %s\n", cfg.ModelType)
	fmt.Fprintf(out, "  Temperature:       %v\n", cfg.Temperature)
	fmt.Fprintf(out, "  Debug:             %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Log File:          %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Request Timeout:   %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Llama Model:       %s\n", cfg.LlamaModel)
	fmt.Fprintf(out, "  Llama Server:      %s\n", cfg.LlamaServerURL)
	fmt.Fprintf(out, "  Model Directory:   %s\n", cfg.ModelDirectory)
	fmt.Fprintf(out, "  OpenShift Model:   %s\n", cfg.OpenShiftModel)
	fmt.Fprintf(out, "  OpenShift URL:     %s\n", cfg.OpenShiftURL)
	fmt.Fprintf(out, "  Keep-alive:        %s\n", cfg.KeepAliveInterval())
	fmt.Fprintf(out, "  Ollama URL:        %s\n", cfg.OllamaURL)
	fmt.Fprintf(out, "  Ollama Model:      %s\n", cfg.OllamaModel)
	fmt.Fprintf(out, "  Key File:          %s\n", cfg.KeyFile)
	if cfg.HasContext() {
		fmt.Fprintf(out, "  Embedding Type:    %s\n", cfg.EmbeddingType)
		fmt.Fprintf(out, "  Embedding Model:   %s\n", cfg.EmbeddingModel)
		fmt.Fprintf(out, "  Chunk Size:        %d\n", cfg.ChunkSizeOrDefault())
		fmt.Fprintf(out, "  Chunk Overlap:     %d\n", cfg.ChunkOverlapOrDefault())
		fmt.Fprintf(out, "  Top K:             %d\n", cfg.TopKOrDefault())
		fmt.Fprintf(out, "  Exclude Globs:     %v\n", cfg.ExcludeGlobs)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
