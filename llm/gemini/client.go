package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/nachoal/urban-quest/llm"
)

const (
	defaultModel   = "gemini-1.5-flash-002"
	defaultTimeout = 60 * time.Second
	providerName   = "Gemini"
)

// Models is the subset of *genai.Models used by the client
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements the LLM client interface for Google Gemini
type Client struct {
	options llm.ClientOptions
	models  Models
}

// NewGenAIClient creates the underlying SDK client. The API key falls back
// to GEMINI_API_KEY and then GOOGLE_API_KEY.
func NewGenAIClient(ctx context.Context, opts ...llm.ClientOption) (*genai.Client, error) {
	options := resolveOptions(opts)
	if options.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not provided")
	}

	config := &genai.ClientConfig{
		APIKey:  options.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if options.BaseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: options.BaseURL}
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, opts ...llm.ClientOption) (*Client, error) {
	sdk, err := NewGenAIClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewClientWithModels(sdk.Models, opts...), nil
}

// NewClientWithModels creates a client on top of an existing models service
func NewClientWithModels(models Models, opts ...llm.ClientOption) *Client {
	return &Client{
		options: resolveOptions(opts),
		models:  models,
	}
}

// GenerateContent sends the prompt as a single user turn
func (c *Client) GenerateContent(ctx context.Context, prompt string) (*llm.Response, error) {
	if c.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.Timeout)
		defer cancel()
	}

	resp, err := c.models.GenerateContent(ctx, c.options.DefaultModel, genai.Text(prompt), c.buildConfig())
	if err != nil {
		return nil, toModelError(err)
	}

	response := &llm.Response{Model: c.options.DefaultModel}
	if resp == nil {
		return response, nil
	}

	if text := resp.Text(); text != "" {
		response.Text = llm.StringPtr(text)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		response.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.ModelVersion != "" {
		response.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		response.Usage = &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return response, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	// The SDK client holds no resources beyond its HTTP client
	return nil
}

func (c *Client) buildConfig() *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if c.options.Temperature > 0 {
		config.Temperature = genai.Ptr(c.options.Temperature)
	}
	if c.options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.options.MaxTokens)
	}
	if c.options.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(c.options.SystemPrompt, genai.RoleUser)
	}
	return config
}

func resolveOptions(opts []llm.ClientOption) llm.ClientOptions {
	options := llm.ClientOptions{
		Timeout:      defaultTimeout,
		DefaultModel: defaultModel,
		Headers:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.DefaultModel == "" {
		options.DefaultModel = defaultModel
	}
	if options.APIKey == "" {
		options.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if options.APIKey == "" {
		options.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	return options
}

func toModelError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.ModelError{
			Provider:   providerName,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &llm.ModelError{
			Provider:   providerName,
			StatusCode: apiErrPtr.Code,
			Message:    apiErrPtr.Message,
			Err:        err,
		}
	}
	return &llm.ModelError{Provider: providerName, Err: err}
}
