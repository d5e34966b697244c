package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nachoal/urban-quest/llm"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
	defaultModel   = "gpt-4o-mini"
)

// retryDelay is the base backoff between attempts
var retryDelay = time.Second

// Preset describes an OpenAI-compatible provider
type Preset struct {
	Name         string
	BaseURL      string
	APIKeyEnv    string
	DefaultModel string
	KeyOptional  bool
}

// Presets lists the providers that speak the chat completions protocol
var Presets = map[string]Preset{
	"openai":   {Name: "OpenAI", BaseURL: defaultBaseURL, APIKeyEnv: "OPENAI_API_KEY", DefaultModel: defaultModel},
	"deepseek": {Name: "DeepSeek", BaseURL: "https://api.deepseek.com/v1", APIKeyEnv: "DEEPSEEK_API_KEY", DefaultModel: "deepseek-chat"},
	"groq":     {Name: "Groq", BaseURL: "https://api.groq.com/openai/v1", APIKeyEnv: "GROQ_API_KEY", DefaultModel: "llama-3.1-8b-instant"},
	"moonshot": {Name: "Moonshot", BaseURL: "https://api.moonshot.ai/v1", APIKeyEnv: "MOONSHOT_API_KEY", DefaultModel: "moonshot-v1-8k"},
	"lmstudio": {Name: "LM Studio", BaseURL: "http://localhost:1234/v1", APIKeyEnv: "LM_STUDIO_API_KEY", DefaultModel: "local-model", KeyOptional: true},
	"ollama":   {Name: "Ollama", BaseURL: "http://localhost:11434/v1", APIKeyEnv: "OLLAMA_API_KEY", DefaultModel: "llama3.2", KeyOptional: true},
}

// Client implements the LLM client interface for OpenAI-compatible APIs
type Client struct {
	preset     Preset
	options    llm.ClientOptions
	httpClient *http.Client
}

// NewClient creates a new OpenAI client
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	return NewPresetClient("openai", opts...)
}

// NewPresetClient creates a client for one of the known compatible providers
func NewPresetClient(name string, opts ...llm.ClientOption) (*Client, error) {
	preset, ok := Presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown OpenAI-compatible provider: %s", name)
	}

	options := llm.ClientOptions{
		BaseURL:      preset.BaseURL,
		Timeout:      defaultTimeout,
		MaxRetries:   3,
		DefaultModel: preset.DefaultModel,
		Headers:      make(map[string]string),
	}

	// Apply options
	for _, opt := range opts {
		opt(&options)
	}
	if options.DefaultModel == "" {
		options.DefaultModel = preset.DefaultModel
	}

	// Get API key from environment if not provided
	if options.APIKey == "" {
		options.APIKey = os.Getenv(preset.APIKeyEnv)
		if options.APIKey == "" && !preset.KeyOptional {
			return nil, fmt.Errorf("%s API key not provided (set %s)", preset.Name, preset.APIKeyEnv)
		}
	}

	return &Client{
		preset:  preset,
		options: options,
		httpClient: &http.Client{
			Timeout: options.Timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.Usage `json:"usage,omitempty"`
}

// GenerateContent sends the prompt as a single user message
func (c *Client) GenerateContent(ctx context.Context, prompt string) (*llm.Response, error) {
	body, err := json.Marshal(c.buildRequest(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var response *llm.Response
	err = c.doWithRetries(ctx, func() error {
		// A fresh request per attempt, the body reader is consumed by Do
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &llm.ModelError{Provider: c.preset.Name, Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &llm.ModelError{Provider: c.preset.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp.StatusCode, respBody)
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return &llm.ModelError{Provider: c.preset.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
		}

		response = &llm.Response{Model: parsed.Model, Usage: parsed.Usage}
		if len(parsed.Choices) > 0 {
			response.Text = parsed.Choices[0].Message.Content
			response.FinishReason = parsed.Choices[0].FinishReason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	// Nothing to clean up for HTTP client
	return nil
}

func (c *Client) buildRequest(prompt string) chatRequest {
	req := chatRequest{
		Model:       c.options.DefaultModel,
		Temperature: c.options.Temperature,
		MaxTokens:   c.options.MaxTokens,
	}
	if c.options.SystemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: c.options.SystemPrompt})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})
	return req
}

func (c *Client) statusError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &llm.ModelError{Provider: c.preset.Name, StatusCode: status, Message: errResp.Error.Message}
	}
	return &llm.ModelError{
		Provider:   c.preset.Name,
		StatusCode: status,
		Message:    fmt.Sprintf("status %d, body: %s", status, strings.TrimSpace(string(body))),
	}
}

// setHeaders sets common headers for requests
func (c *Client) setHeaders(req *http.Request) {
	if c.options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	}
	req.Header.Set("User-Agent", "urban-quest/1.0")

	if c.options.Organization != "" {
		req.Header.Set("OpenAI-Organization", c.options.Organization)
	}

	// Add custom headers
	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

// doWithRetries executes a function with retries
func (c *Client) doWithRetries(ctx context.Context, fn func() error) error {
	var lastErr error

	for i := 0; i <= c.options.MaxRetries; i++ {
		if i > 0 {
			// Linear backoff
			delay := time.Duration(i) * retryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			if llm.IsRetryable(err) {
				continue
			}
			return err
		}

		return nil
	}

	var me *llm.ModelError
	if errors.As(lastErr, &me) {
		return &llm.ModelError{
			Provider:   me.Provider,
			StatusCode: me.StatusCode,
			Message:    "max retries exceeded: " + me.Error(),
			Err:        lastErr,
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
