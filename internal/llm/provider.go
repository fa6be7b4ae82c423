// Package llm holds thin chat-completion clients used to grade open-ended
// task submissions. Providers are single-turn: the rubric scorer folds the
// task transcript into one prompt, so streaming is not needed.
package llm

import (
	"context"
	"fmt"
)

// Provider performs one completion request against a hosted or local model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single-turn completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is the model's completion plus token accounting.
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage tracks token usage for logging.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // "claude", "openai", or "ollama"
	Model    string
	APIKey   string
	BaseURL  string
}

// New builds the configured provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "claude":
		return NewClaudeProvider(ClaudeConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	case "ollama":
		return NewOllamaProvider(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
