// Package explain asks an OpenAI-compatible chat endpoint to explain code.
package explain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "kwaipilot/kat-coder-pro:free"

	// DefaultTimeout bounds one explanation request.
	DefaultTimeout = 60 * time.Second

	promptPrefix = "Explain the given code:\n "
)

var (
	// ErrDisabled indicates no API key is configured.
	ErrDisabled = errors.New("code explanation is disabled")

	// ErrEmptyCode indicates a request without code.
	ErrEmptyCode = errors.New("code cannot be empty")

	// ErrNoAnswer indicates the endpoint returned no choices.
	ErrNoAnswer = errors.New("no explanation returned")
)

// Config configures the explanation client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// Client explains code snippets.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a client. It fails with ErrDisabled when no API key is set.
func New(cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Prompt returns the user message sent for a code snippet.
func Prompt(code string) string {
	return promptPrefix + code
}

// Explain returns a natural-language explanation of code.
func (c *Client) Explain(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", ErrEmptyCode
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: Prompt(code)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("explanation request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoAnswer
	}

	return resp.Choices[0].Message.Content, nil
}
