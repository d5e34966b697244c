package main

import (
	"context"
	"testing"

	"github.com/nachoal/urban-quest/config"
	"github.com/nachoal/urban-quest/llm"
	"github.com/nachoal/urban-quest/vision"
)

func TestModelName(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"explicit model", config.Config{Provider: "groq", Model: "llama-3.1-8b-instant"}, "llama-3.1-8b-instant"},
		{"preset default", config.Config{Provider: "ollama"}, "llama3.2"},
		{"gemini default", config.Config{Provider: "gemini"}, geminiDefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := modelName(tt.cfg); got != tt.want {
				t.Fatalf("modelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsKnownProvider(t *testing.T) {
	for _, name := range []string{"gemini", "google", "openai", "deepseek", "groq", "moonshot", "lmstudio", "ollama"} {
		if !isKnownProvider(name) {
			t.Errorf("expected %s to be known", name)
		}
	}
	if isKnownProvider("anthropic") {
		t.Error("anthropic should not be a known provider")
	}
}

func TestCreateLLMClient_UnknownProvider(t *testing.T) {
	_, err := createLLMClient(context.Background(), config.Config{Provider: "nope"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCreateLLMClient_KeylessPreset(t *testing.T) {
	client, err := createLLMClient(context.Background(), config.Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("createLLMClient() error = %v", err)
	}
	defer client.Close()
}

func TestCreateAnalyzer(t *testing.T) {
	analyzer, err := createAnalyzer(context.Background(), config.Config{Vision: config.VisionStub})
	if err != nil {
		t.Fatalf("createAnalyzer() error = %v", err)
	}
	if _, ok := analyzer.(*vision.StubAnalyzer); !ok {
		t.Fatalf("expected stub analyzer, got %T", analyzer)
	}

	if _, err := createAnalyzer(context.Background(), config.Config{Vision: "opencv"}); err == nil {
		t.Fatal("expected error for unknown vision backend")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := config.Config{
		Model:        "gpt-4o-mini",
		SystemPrompt: "guide",
		MaxTokens:    128,
		Organization: "org-quest",
		Headers:      map[string]string{"x-quest-client": "terminal"},
	}

	var opts llm.ClientOptions
	for _, opt := range clientOptions(cfg) {
		opt(&opts)
	}

	if opts.DefaultModel != "gpt-4o-mini" || opts.SystemPrompt != "guide" {
		t.Fatalf("model options not applied: %+v", opts)
	}
	if opts.MaxTokens != 128 {
		t.Fatalf("MaxTokens = %d, want 128", opts.MaxTokens)
	}
	if opts.Organization != "org-quest" {
		t.Fatalf("Organization = %q", opts.Organization)
	}
	if opts.Headers["x-quest-client"] != "terminal" {
		t.Fatalf("headers not applied: %v", opts.Headers)
	}
}
