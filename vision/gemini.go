package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultVisionModel = "gemini-1.5-flash-002"

	// DescribePrompt asks the vision model for a one sentence caption
	DescribePrompt = "Describe what this photo shows in one short sentence. Mention landmarks, places or objects a traveler could ask about."
)

// ContentGenerator is the subset of *genai.Models used for analysis
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAnalyzer describes images with a Gemini vision model
type GeminiAnalyzer struct {
	models ContentGenerator
	model  string
	prompt string
}

// NewGeminiAnalyzer creates an analyzer on top of a genai Models service
func NewGeminiAnalyzer(models ContentGenerator, model string) *GeminiAnalyzer {
	if model == "" {
		model = defaultVisionModel
	}
	return &GeminiAnalyzer{
		models: models,
		model:  model,
		prompt: DescribePrompt,
	}
}

// Analyze implements Analyzer
func (g *GeminiAnalyzer) Analyze(ctx context.Context, img *Image) (string, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, "image/jpeg"),
			genai.NewPartFromText(g.prompt),
		}, genai.RoleUser),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", NewBackendError(fmt.Errorf("vision request failed: %w", err))
	}
	if resp == nil {
		return "", NewBackendError(errors.New("vision request returned no response"))
	}

	description := strings.TrimSpace(resp.Text())
	description = strings.TrimRight(description, ".")
	if description == "" {
		return "", NewBackendError(errors.New("vision model returned an empty description"))
	}

	return description, nil
}
