// Package client wraps an LLM provider with model configuration, retry, and
// rate limiting. It is the module's model engine: it marshals requests and
// responses and knows nothing about sessions or tool semantics.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
)

const (
	defaultMaxTokens = 16000

	maxRetries     = 3
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 60 * time.Second
)

// TokenUsage tracks token consumption for a conversation.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Client wraps an LLM provider with model and token configuration.
type Client struct {
	Provider    provider.LLMProvider
	Model       string
	MaxTokens   int     // custom override; 0 means defaultMaxTokens
	Temperature float64

	// Limiter optionally throttles request starts across a process.
	Limiter *rate.Limiter

	// tokensMu guards tokens; one Client is shared by every session's turns.
	tokensMu sync.Mutex
	tokens   TokenUsage
}

// AddUsage accumulates token usage from a completion response. Safe for
// concurrent turns.
func (c *Client) AddUsage(usage message.Usage) {
	c.tokensMu.Lock()
	defer c.tokensMu.Unlock()
	c.tokens.InputTokens += usage.InputTokens
	c.tokens.OutputTokens += usage.OutputTokens
	c.tokens.TotalTokens = c.tokens.InputTokens + c.tokens.OutputTokens
}

// Tokens returns the accumulated token usage.
func (c *Client) Tokens() TokenUsage {
	c.tokensMu.Lock()
	defer c.tokensMu.Unlock()
	return c.tokens
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.Provider.Name()
}

// ModelID returns the model identifier.
func (c *Client) ModelID() string {
	return c.Model
}

// Send sends a non-streaming completion request and returns the full response.
func (c *Client) Send(ctx context.Context, msgs []message.Message, tools []provider.Tool,
	toolChoice provider.ToolChoice, sysPrompt string) (message.CompletionResponse, error) {
	var resp message.CompletionResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = provider.Complete(ctx, c.Provider, c.opts(msgs, tools, toolChoice, sysPrompt))
		return err
	})
	return resp, err
}

// Stream starts a streaming completion request and returns a chunk channel.
// Transient failures that occur before any chunk is forwarded are retried
// with backoff; once output has flowed downstream, errors propagate as-is so
// already-delivered partial content is never duplicated.
func (c *Client) Stream(ctx context.Context, msgs []message.Message, tools []provider.Tool,
	toolChoice provider.ToolChoice, sysPrompt string) <-chan message.StreamChunk {
	out := make(chan message.StreamChunk)

	go func() {
		defer close(out)

		opts := c.opts(msgs, tools, toolChoice, sysPrompt)

		for attempt := 0; ; attempt++ {
			if err := c.wait(ctx); err != nil {
				out <- message.StreamChunk{Type: message.ChunkTypeError, Error: err}
				return
			}

			upstream := c.Provider.Stream(ctx, opts)

			first, ok := <-upstream
			if !ok {
				return
			}

			if first.Type == message.ChunkTypeError && attempt < maxRetries && IsTransient(first.Error) {
				if err := sleepBackoff(ctx, attempt); err != nil {
					out <- message.StreamChunk{Type: message.ChunkTypeError, Error: err}
					return
				}
				continue
			}

			out <- first
			for chunk := range upstream {
				out <- chunk
			}
			return
		}
	}()

	return out
}

// withRetry runs fn, retrying classified transient errors with exponential
// backoff plus jitter. Non-transient errors and cancellation return immediately.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt-1); err != nil {
				return err
			}
		}
		if err := c.wait(ctx); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// wait blocks on the rate limiter when one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

// sleepBackoff sleeps for the attempt's backoff delay, jittered to avoid a
// thundering herd, honoring ctx cancellation.
func sleepBackoff(ctx context.Context, attempt int) error {
	delay := float64(retryBaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	if delay > float64(retryMaxDelay) {
		delay = float64(retryMaxDelay)
	}
	delay = delay*0.75 + rand.Float64()*delay*0.5

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delay)):
		return nil
	}
}

// IsTransient classifies an error as retryable: rate limits, timeouts,
// connection resets, and upstream 5xx responses. Cancellation is never
// transient — a disconnected client must not trigger retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "429",
		"timeout", "timed out",
		"connection", "network",
		"502", "503", "504",
		"service unavailable", "internal server error", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// opts builds CompletionOptions from the client's configuration.
func (c *Client) opts(msgs []message.Message, tools []provider.Tool,
	toolChoice provider.ToolChoice, sysPrompt string) provider.CompletionOptions {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return provider.CompletionOptions{
		Model:        c.Model,
		Messages:     msgs,
		MaxTokens:    maxTokens,
		Temperature:  c.Temperature,
		Tools:        tools,
		ToolChoice:   toolChoice,
		SystemPrompt: sysPrompt,
	}
}
