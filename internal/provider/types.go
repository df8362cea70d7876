// Package provider defines the seam between the model engine and concrete
// LLM SDKs. Providers only marshal requests and responses; they know nothing
// about sessions or tool semantics.
package provider

import (
	"context"

	"github.com/tyrz939/dehum-assistant/internal/message"
)

// ToolChoice controls whether the model may request tool calls.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call tools.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone disables tool calls for the request.
	ToolChoiceNone ToolChoice = "none"
)

// CompletionOptions contains options for a completion request.
type CompletionOptions struct {
	Model        string
	Messages     []message.Message
	MaxTokens    int
	Temperature  float64
	Tools        []Tool
	ToolChoice   ToolChoice
	SystemPrompt string
}

// Tool represents a tool definition exposed to the model.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"` // JSON Schema
}

// LLMProvider is the interface that all providers must implement.
type LLMProvider interface {
	// Stream sends a completion request and returns a channel of streaming chunks.
	// The channel is always terminated by a done or error chunk and then closed.
	Stream(ctx context.Context, opts CompletionOptions) <-chan message.StreamChunk

	// Name returns the provider name.
	Name() string
}

// Complete collects stream chunks into a complete response. This provides
// non-streaming output from any LLMProvider.
func Complete(ctx context.Context, p LLMProvider, opts CompletionOptions) (message.CompletionResponse, error) {
	var response message.CompletionResponse
	acc := message.NewToolCallAccumulator()

	for chunk := range p.Stream(ctx, opts) {
		switch chunk.Type {
		case message.ChunkTypeText:
			response.Content += chunk.Text
		case message.ChunkTypeToolStart, message.ChunkTypeToolInput:
			acc.Add(chunk)
		case message.ChunkTypeDone:
			if chunk.Response != nil {
				return *chunk.Response, nil
			}
			response.ToolCalls = acc.Calls()
			return response, nil
		case message.ChunkTypeError:
			return response, chunk.Error
		}
	}

	response.ToolCalls = acc.Calls()
	return response, nil
}
