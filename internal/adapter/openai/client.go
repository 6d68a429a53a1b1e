// Package openai provides an HTTP client for OpenAI-compatible chat
// completion APIs, implementing the llm.Completer port.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/port/llm"
	"github.com/quillhq/quill/internal/resilience"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	breaker     *resilience.Breaker
}

var _ llm.Completer = (*Client)(nil)

// NewClient builds a completion client from configuration.
func NewClient(cfg config.OpenAI) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one system+user exchange and returns the model's reply.
// A single attempt is made; callers decide what a failure means.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai client misconfigured: api key is empty")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	var content string
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("openai API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("unmarshal completion: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("openai API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("openai returned no choices")
		}

		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(ctx, call); err != nil {
			return "", err
		}
		return content, nil
	}

	if err := call(ctx); err != nil {
		return "", err
	}
	return content, nil
}
