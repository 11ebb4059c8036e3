// Package llm adapts the Anthropic API to the memory engine's
// Completer interface. The engine treats completion as an opaque,
// bounded call: the classifier's semantic importance check and episode
// summarization are its only consumers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/mnemo-ai/mnemo-go/memory"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 256
	defaultTimeout   = 2 * time.Second
)

// Completer implements memory.Completer on the Anthropic Messages API.
type Completer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// Option configures the completer.
type Option func(*Completer)

// WithModel overrides the Claude model.
func WithModel(model string) Option {
	return func(c *Completer) { c.model = model }
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(c *Completer) { c.maxTokens = n }
}

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Completer) { c.timeout = d }
}

// NewCompleter wraps an Anthropic client.
func NewCompleter(client *anthropic.Client, opts ...Option) *Completer {
	c := &Completer{
		client:    client,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one prompt and returns the concatenated text blocks
// of the response. Errors are mapped onto the engine's taxonomy so
// callers can distinguish retryable from fatal failures.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyErr(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// classifyErr maps API failures onto the engine's error taxonomy:
// auth problems are fatal, rate limits and timeouts are retryable.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", memory.ErrProviderTimeout, err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return fmt.Errorf("%w: %v", memory.ErrProviderAuth, err)
		case 408, 429, 500, 502, 503, 529:
			return fmt.Errorf("%w: %v", memory.ErrProviderTimeout, err)
		}
	}
	return fmt.Errorf("complete: %w", err)
}
