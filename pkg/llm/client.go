// Package llm is a thin text-completion client for chat-completions
// compatible endpoints. Callers treat the response as unstructured text and
// parse it themselves.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ghuser/procureflow/pkg/config"
)

// ErrEmptyCompletion is returned when the endpoint answers without any text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Options tune a single completion call.
type Options struct {
	System      string
	MaxTokens   int
	Temperature float64
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
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls POST {base}/v1/chat/completions.
type Client struct {
	http  *resty.Client
	model string
}

// NewClient builds a Client from config.
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.HTTPClientTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := resty.New().
		SetBaseURL(strings.TrimRight(cfg.LLMBaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0)
	if cfg.LLMAPIKey != "" {
		h.SetAuthToken(cfg.LLMAPIKey)
	}
	return &Client{http: h, model: cfg.LLMModel}
}

// Complete sends prompt and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	req := chatRequest{
		Model:       c.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: opts.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})

	var out chatResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}
