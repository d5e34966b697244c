package llm

import (
	"context"
)

// Client defines the interface for generative model providers
type Client interface {
	// GenerateContent sends a single prompt and waits for the full response
	GenerateContent(ctx context.Context, prompt string) (*Response, error)

	// Close cleans up any resources
	Close() error
}

// Response is the answer to a GenerateContent call
type Response struct {
	Text         *string `json:"text,omitempty"` // nil when the model produced no text
	Model        string  `json:"model,omitempty"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Usage        *Usage  `json:"usage,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ClientFunc adapts a function to the Client interface
type ClientFunc func(ctx context.Context, prompt string) (*Response, error)

// GenerateContent calls f(ctx, prompt)
func (f ClientFunc) GenerateContent(ctx context.Context, prompt string) (*Response, error) {
	return f(ctx, prompt)
}

// Close does nothing
func (f ClientFunc) Close() error {
	return nil
}
