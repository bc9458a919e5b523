// Package openai provides the completion collaborator backed by an
// OpenAI-compatible chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"rentbot/internal/domain"
	"rentbot/internal/llm"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second
)

var _ domain.Completer = (*Client)(nil)

// Config configures the chat completions client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Client sends prompts to a chat completions endpoint.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewClient creates a client using the API key found in cfg.APIKeyEnv.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	oc := openai.DefaultConfig(key)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// ModelName returns the configured model.
func (c *Client) ModelName() string { return c.model }

// Complete sends the prompt and returns the first choice verbatim. Every
// failure, including context cancellation, is reported as a GenerationError.
func (c *Client) Complete(ctx context.Context, prompt domain.Prompt, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.Instruction},
			{Role: openai.ChatMessageRoleUser, Content: llm.UserMessage(prompt)},
		},
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			err = fmt.Errorf("status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		return "", &domain.GenerationError{Model: c.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.GenerationError{Model: c.model, Err: errors.New("no response choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}
