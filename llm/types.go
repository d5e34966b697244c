package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ModelError is returned by providers when content generation fails
type ModelError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ModelError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s API error: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	case e.Message != "":
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s request failed", e.Provider)
	}
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request may succeed when sent again
func (e *ModelError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable ModelError
func IsRetryable(err error) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Retryable()
}

// ClientOptions contains options for creating an LLM client
type ClientOptions struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	DefaultModel string
	Organization string
	Headers      map[string]string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// ClientOption is a functional option for configuring clients
type ClientOption func(*ClientOptions)

// WithAPIKey sets the API key
func WithAPIKey(key string) ClientOption {
	return func(o *ClientOptions) {
		o.APIKey = key
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		o.BaseURL = url
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.Timeout = timeout
	}
}

// WithModel sets the default model
func WithModel(model string) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultModel = model
	}
}

// WithMaxRetries sets the maximum number of retries
func WithMaxRetries(retries int) ClientOption {
	return func(o *ClientOptions) {
		o.MaxRetries = retries
	}
}

// WithOrganization sets the organization ID
func WithOrganization(org string) ClientOption {
	return func(o *ClientOptions) {
		o.Organization = org
	}
}

// WithHeaders sets additional headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temp float32) ClientOption {
	return func(o *ClientOptions) {
		o.Temperature = temp
	}
}

// WithMaxTokens caps the response length
func WithMaxTokens(max int) ClientOption {
	return func(o *ClientOptions) {
		o.MaxTokens = max
	}
}

// WithSystemPrompt sets the system instruction sent with every prompt
func WithSystemPrompt(prompt string) ClientOption {
	return func(o *ClientOptions) {
		o.SystemPrompt = prompt
	}
}

// StringPtr is a helper function to get a pointer to a string
func StringPtr(s string) *string {
	return &s
}

// GetStringValue safely gets string value from pointer
func GetStringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
