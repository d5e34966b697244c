package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nachoal/urban-quest/config"
	"github.com/nachoal/urban-quest/llm"
	"github.com/nachoal/urban-quest/llm/gemini"
	"github.com/nachoal/urban-quest/llm/openai"
	"github.com/nachoal/urban-quest/session"
	"github.com/nachoal/urban-quest/vision"
)

const geminiDefaultModel = "gemini-1.5-flash-002"

// buildSession wires the model client and image analyzer into an orchestrator
func buildSession(ctx context.Context, cfg config.Config, logger *zap.Logger) (*session.Orchestrator, func(), error) {
	client, err := createLLMClient(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	analyzer, err := createAnalyzer(ctx, cfg)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create image analyzer: %w", err)
	}

	logger.Debug("Session configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", modelName(cfg)),
		zap.String("vision", cfg.Vision))

	orchestrator := session.New(client, analyzer,
		session.WithLogger(logger),
		session.WithTimeout(cfg.Timeout),
		session.WithMaxTurns(cfg.MaxTurns),
	)

	cleanup := func() {
		orchestrator.Close()
		client.Close()
	}
	return orchestrator, cleanup, nil
}

func createLLMClient(ctx context.Context, cfg config.Config) (llm.Client, error) {
	opts := clientOptions(cfg)

	switch cfg.Provider {
	case "gemini", "google":
		return gemini.NewClient(ctx, opts...)
	default:
		if _, ok := openai.Presets[cfg.Provider]; ok {
			return openai.NewPresetClient(cfg.Provider, opts...)
		}
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func clientOptions(cfg config.Config) []llm.ClientOption {
	opts := []llm.ClientOption{
		llm.WithModel(cfg.Model),
		llm.WithSystemPrompt(cfg.SystemPrompt),
		llm.WithTemperature(0.7),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithHeaders(cfg.Headers),
	}
	if cfg.Organization != "" {
		opts = append(opts, llm.WithOrganization(cfg.Organization))
	}
	return opts
}

func createAnalyzer(ctx context.Context, cfg config.Config) (vision.Analyzer, error) {
	switch cfg.Vision {
	case config.VisionStub, "":
		return vision.NewStubAnalyzer(), nil
	case config.VisionGemini:
		sdk, err := gemini.NewGenAIClient(ctx)
		if err != nil {
			return nil, err
		}
		return vision.NewGeminiAnalyzer(sdk.Models, cfg.VisionModel), nil
	default:
		return nil, fmt.Errorf("unknown vision backend: %s", cfg.Vision)
	}
}

func isKnownProvider(name string) bool {
	if name == "gemini" || name == "google" {
		return true
	}
	_, ok := openai.Presets[name]
	return ok
}

func modelName(cfg config.Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	if preset, ok := openai.Presets[cfg.Provider]; ok {
		return preset.DefaultModel
	}
	return geminiDefaultModel
}

func listProviders(cmd *cobra.Command, args []string) {
	fmt.Println("Available providers:")
	fmt.Printf("  %-10s %-28s %s\n", "gemini", geminiDefaultModel, "GEMINI_API_KEY or GOOGLE_API_KEY")

	names := make([]string, 0, len(openai.Presets))
	for name := range openai.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		preset := openai.Presets[name]
		key := preset.APIKeyEnv
		if preset.KeyOptional {
			key += " (optional)"
		}
		fmt.Printf("  %-10s %-28s %s\n", name, preset.DefaultModel, key)
	}
}
