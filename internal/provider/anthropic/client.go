// Package anthropic implements the LLMProvider interface using the Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tyrz939/dehum-assistant/internal/log"
	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/provider"
)

// Client implements the LLMProvider interface using the Anthropic SDK.
type Client struct {
	client anthropic.Client
	name   string
}

// NewClient creates a new Anthropic client with the given SDK client.
func NewClient(client anthropic.Client, name string) *Client {
	return &Client{client: client, name: name}
}

// NewClientFromEnv creates a client from an API key.
func NewClientFromEnv(apiKey, name string) *Client {
	return &Client{client: anthropic.NewClient(option.WithAPIKey(apiKey)), name: name}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Stream sends a completion request and returns a channel of streaming chunks.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk)

	go func() {
		defer close(ch)

		params := buildParams(opts)

		log.LogRequest(c.name, opts.Model, opts)

		stream := c.client.Messages.NewStreaming(ctx, params)

		// Anthropic addresses tool calls by content block; map each
		// tool_use block to a monotonically increasing stream index so
		// downstream accumulation matches the OpenAI delta shape.
		var response message.CompletionResponse
		toolIndex := -1
		var currentToolID, currentToolName, currentToolInput string

		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			event := stream.Current()
			chunkCount++

			switch event.Type {
			case "content_block_start":
				block := event.AsContentBlockStart()
				if block.ContentBlock.Type == "tool_use" {
					toolIndex++
					currentToolID = block.ContentBlock.ID
					currentToolName = block.ContentBlock.Name
					currentToolInput = ""
					ch <- message.StreamChunk{
						Type:     message.ChunkTypeToolStart,
						Index:    toolIndex,
						ToolID:   currentToolID,
						ToolName: currentToolName,
					}
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				switch delta.Delta.Type {
				case "text_delta":
					if delta.Delta.Text != "" {
						ch <- message.StreamChunk{
							Type: message.ChunkTypeText,
							Text: delta.Delta.Text,
						}
						response.Content += delta.Delta.Text
					}
				case "input_json_delta":
					if delta.Delta.PartialJSON != "" {
						ch <- message.StreamChunk{
							Type:  message.ChunkTypeToolInput,
							Index: toolIndex,
							Text:  delta.Delta.PartialJSON,
						}
						currentToolInput += delta.Delta.PartialJSON
					}
				}

			case "content_block_stop":
				if currentToolID != "" && currentToolName != "" {
					response.ToolCalls = append(response.ToolCalls, message.ToolCall{
						ID:    currentToolID,
						Name:  currentToolName,
						Input: currentToolInput,
					})
					currentToolID, currentToolName, currentToolInput = "", "", ""
				}

			case "message_delta":
				msgDelta := event.AsMessageDelta()
				switch msgDelta.Delta.StopReason {
				case "end_turn", "stop_sequence":
					response.StopReason = "end_turn"
				case "tool_use":
					response.StopReason = "tool_use"
				case "max_tokens":
					response.StopReason = "max_tokens"
				default:
					response.StopReason = string(msgDelta.Delta.StopReason)
				}
				response.Usage.OutputTokens = int(msgDelta.Usage.OutputTokens)

			case "message_start":
				msgStart := event.AsMessageStart()
				response.Usage.InputTokens = int(msgStart.Message.Usage.InputTokens)
			}
		}

		log.LogStreamDone(c.name, time.Since(streamStart), chunkCount)

		if err := stream.Err(); err != nil {
			log.LogError(c.name, err)
			ch <- message.StreamChunk{
				Type:  message.ChunkTypeError,
				Error: err,
			}
			return
		}

		log.LogResponse(c.name, response)

		ch <- message.StreamChunk{
			Type:     message.ChunkTypeDone,
			Response: &response,
		}
	}()

	return ch
}

// buildParams maps CompletionOptions to the Anthropic Messages API shape.
// System prompts and tool results are positional content blocks there, not roles.
func buildParams(opts provider.CompletionOptions) anthropic.MessageNewParams {
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(opts.Messages))
	for _, msg := range opts.Messages {
		switch msg.Role {
		case message.RoleUser:
			anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case message.RoleTool:
			anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case message.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input any
					if tc.Input != "" {
						if err := json.Unmarshal([]byte(tc.Input), &input); err != nil {
							input = tc.Input
						}
					} else {
						input = map[string]any{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
				}
				anthropicMsgs = append(anthropicMsgs, anthropic.NewAssistantMessage(blocks...))
			} else {
				anthropicMsgs = append(anthropicMsgs, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		case message.RoleSystem:
			// Mid-conversation context injections ride along as user text;
			// the Messages API accepts system content only up front.
			anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: int64(opts.MaxTokens),
		Messages:  anthropicMsgs,
	}

	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	if len(opts.Tools) > 0 && opts.ToolChoice != provider.ToolChoiceNone {
		tools := make([]anthropic.ToolUnionParam, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			inputSchema := anthropic.ToolInputSchemaParam{}
			if props, ok := t.Parameters.(map[string]any); ok {
				if properties, ok := props["properties"]; ok {
					inputSchema.Properties = properties
				}
				switch required := props["required"].(type) {
				case []string:
					inputSchema.Required = required
				case []any:
					for _, r := range required {
						if s, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
			tools = append(tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        t.Name,
					Description: anthropic.String(t.Description),
					InputSchema: inputSchema,
				},
			})
		}
		params.Tools = tools
	}

	return params
}

// Ensure Client implements LLMProvider.
var _ provider.LLMProvider = (*Client)(nil)
